package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// InviteEditorRequest invites a registered editor by id.
type InviteEditorRequest struct {
	EditorID string `json:"editor_id" validate:"required,uuid4"`
}

// InviteEditor creates a pending (creator, editor) relationship. A pair can
// have at most one row: an existing row is refused with a message naming its
// current state.
func (h *ApplicationHandler) InviteEditor(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(InviteEditorRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}
	editorID, err := uuid.Parse(payload.EditorID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid editor ID format")
	}
	if editorID == authUser.ID {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "You cannot invite yourself")
	}

	caller, err := h.fetchUser(authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify caller")
	}
	if caller == nil || caller.Role != models.RoleCreator {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only creators can invite editors")
	}

	editor, err := h.fetchUser(editorID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not look up editor")
	}
	if editor == nil || editor.Role != models.RoleEditor {
		return utils.RespondWithError(c, fiber.StatusNotFound, "No editor found with that ID")
	}

	// Defensive duplicate check; the pair is not DB-constrained.
	var existing []models.EditorRelationship
	body, _, err := h.DB.From("youtuber_editors").Select("*", "", false).
		Eq("creator_id", authUser.ID.String()).
		Eq("editor_id", editorID.String()).
		Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not check existing relationship")
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode relationship")
	}
	if len(existing) > 0 {
		switch existing[0].Status {
		case models.RelationshipPending:
			return utils.RespondWithError(c, fiber.StatusConflict, "An invitation to this editor is already pending")
		case models.RelationshipActive:
			return utils.RespondWithError(c, fiber.StatusConflict, "This editor already works with you")
		default:
			return utils.RespondWithError(c, fiber.StatusConflict, "This editor declined a previous invitation")
		}
	}

	now := time.Now()
	row := map[string]interface{}{
		"creator_id": authUser.ID.String(),
		"editor_id":  editorID.String(),
		"status":     models.RelationshipPending,
		"created_at": now,
		"updated_at": now,
	}
	var created []models.EditorRelationship
	body, _, err = h.DB.From("youtuber_editors").Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not create invitation")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create invitation")
	}
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm invitation")
	}

	h.notify(editorID, models.NotificationEditorInvite,
		fmt.Sprintf("%s invited you to join their team", caller.Name),
		map[string]interface{}{"relationship_id": created[0].ID.String()})

	h.Logger.WithFields(map[string]interface{}{"creator_id": authUser.ID, "editor_id": editorID}).Info("Editor invited")
	return utils.RespondWithJSON(c, fiber.StatusCreated, created[0])
}

// RespondInvitation accepts or rejects a pending invitation. Only the invited
// editor may respond, and only while the row is pending: the update is
// filtered on id + pending so a double submission matches zero rows instead
// of double-transitioning.
func (h *ApplicationHandler) RespondInvitation(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	relationshipID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid invitation ID format")
	}

	action := c.Params("action")
	var newStatus string
	switch action {
	case "accept":
		newStatus = models.RelationshipActive
	case "reject":
		newStatus = models.RelationshipRejected
	default:
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Action must be accept or reject")
	}

	var rels []models.EditorRelationship
	body, _, err := h.DB.From("youtuber_editors").Select("*", "", false).Eq("id", relationshipID.String()).Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve invitation")
	}
	if err := json.Unmarshal(body, &rels); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode invitation")
	}
	if len(rels) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Invitation not found")
	}
	if rels[0].EditorID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only the invited editor can respond")
	}

	update := map[string]interface{}{"status": newStatus, "updated_at": time.Now()}
	var updated []models.EditorRelationship
	body, _, err = h.DB.From("youtuber_editors").Update(update, "representation", "").
		Eq("id", relationshipID.String()).
		Eq("status", models.RelationshipPending).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not update invitation")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update invitation")
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode invitation update")
	}
	if len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusConflict, "Invitation is no longer pending")
	}

	kind := models.NotificationInviteAccepted
	verb := "accepted"
	if newStatus == models.RelationshipRejected {
		kind = models.NotificationInviteRejected
		verb = "declined"
	}
	editor, _ := h.fetchUser(authUser.ID)
	editorName := authUser.Email
	if editor != nil {
		editorName = editor.Name
	}
	h.notify(updated[0].CreatorID, kind,
		fmt.Sprintf("%s %s your invitation", editorName, verb),
		map[string]interface{}{"relationship_id": relationshipID.String()})

	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}

// InviteEditorByEmailRequest is the email-addressed invitation path, used
// before the invitee has an account.
type InviteEditorByEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// InviteEditorByEmail records an editor_invites row and sends the invite
// mail. Mail delivery is best-effort: a relay failure is logged and the
// invite still stands.
func (h *ApplicationHandler) InviteEditorByEmail(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(InviteEditorByEmailRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	caller, err := h.fetchUser(authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify caller")
	}
	if caller == nil || caller.Role != models.RoleCreator {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only creators can invite editors")
	}

	var existing []models.EditorInvite
	body, _, err := h.DB.From("editor_invites").Select("*", "", false).
		Eq("creator_id", authUser.ID.String()).
		Eq("email", email).
		Eq("status", models.RelationshipPending).
		Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not check existing invites")
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode invites")
	}
	if len(existing) > 0 {
		return utils.RespondWithError(c, fiber.StatusConflict, "An invitation to this address is already pending")
	}

	now := time.Now()
	row := map[string]interface{}{
		"creator_id": authUser.ID.String(),
		"email":      email,
		"status":     models.RelationshipPending,
		"created_at": now,
		"updated_at": now,
	}
	var created []models.EditorInvite
	body, _, err = h.DB.From("editor_invites").Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not create email invite")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create invite")
	}
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm invite")
	}

	inviteLink := fmt.Sprintf("%s/invites/%s", h.Cfg.AppBaseURL, created[0].ID)
	if err := h.Mail.SendEditorInvite(email, caller.Name, inviteLink); err != nil {
		h.Logger.WithFields(map[string]interface{}{"email": email, "error": err.Error()}).
			Warn("Invite mail failed, invite row kept")
	}

	return utils.RespondWithJSON(c, fiber.StatusCreated, created[0])
}

// AcceptEmailInvite flips the editor_invites row and inserts the active
// relationship in one database transaction via the accept_editor_invite
// function.
func (h *ApplicationHandler) AcceptEmailInvite(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	inviteID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid invite ID format")
	}

	editor, err := h.fetchUser(authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify caller")
	}
	if editor == nil || editor.Role != models.RoleEditor {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only editors can accept editor invites")
	}

	params := map[string]interface{}{
		"p_invite_id":   inviteID.String(),
		"p_accepted_by": authUser.ID.String(),
		"p_email":       strings.ToLower(authUser.Email),
	}
	var relationship models.EditorRelationship
	if err := h.rpc("accept_editor_invite", params, &relationship); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Email invite acceptance failed")
		return utils.RespondWithError(c, fiber.StatusConflict, "Invite is not pending or not addressed to you")
	}

	h.notify(relationship.CreatorID, models.NotificationInviteAccepted,
		fmt.Sprintf("%s accepted your invitation", editor.Name),
		map[string]interface{}{"relationship_id": relationship.ID.String()})

	return utils.RespondWithJSON(c, fiber.StatusOK, relationship)
}

// ListEditors returns a creator's relationships with the editor profile
// embedded. Optional ?status= filter.
func (h *ApplicationHandler) ListEditors(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	query := h.DB.From("youtuber_editors").
		Select("*, editor:users!editor_id(id,name,email,role,avatar_url)", "", false).
		Eq("creator_id", authUser.ID.String())
	if status := c.Query("status"); status != "" {
		query = query.Eq("status", status)
	}

	var rels []models.EditorRelationship
	body, _, err := query.Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list editors")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve editors")
	}
	if err := json.Unmarshal(body, &rels); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode editors")
	}
	if rels == nil {
		rels = []models.EditorRelationship{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, rels)
}

// ListInvitations returns an editor's pending invitations with the creator
// profile embedded.
func (h *ApplicationHandler) ListInvitations(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	var rels []models.EditorRelationship
	body, _, err := h.DB.From("youtuber_editors").
		Select("*, creator:users!creator_id(id,name,email,role,avatar_url)", "", false).
		Eq("editor_id", authUser.ID.String()).
		Eq("status", models.RelationshipPending).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list invitations")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve invitations")
	}
	if err := json.Unmarshal(body, &rels); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode invitations")
	}
	if rels == nil {
		rels = []models.EditorRelationship{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, rels)
}
