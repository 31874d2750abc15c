package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"edio/internal/realtime"
	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// ListMessages returns a project's chat in chronological order with the
// sender relation embedded.
func (h *ApplicationHandler) ListMessages(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	allowed, err := h.canAccessProject(project, authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify access")
	}
	if !allowed {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Not a member of this project")
	}

	var messages []models.Message
	body, _, err := h.DB.From("messages").
		Select("*, sender:users!sender_id(id,name,email,role,avatar_url)", "", false).
		Eq("project_id", projectID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list messages")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve messages")
	}
	if err := json.Unmarshal(body, &messages); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode messages")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, messages)
}

// SendMessageRequest is the body for a chat message. ClientKey is the
// sender-generated idempotency key echoed back on the live feed.
type SendMessageRequest struct {
	Content   string  `json:"content" validate:"required"`
	ClientKey *string `json:"client_key,omitempty"`
}

// SendMessage appends a text message and broadcasts it to the project's feed.
// The broadcast payload is the re-fetched row with its sender relation; when
// that re-fetch errors the bare inserted row is broadcast instead.
func (h *ApplicationHandler) SendMessage(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	payload := new(SendMessageRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if strings.TrimSpace(payload.Content) == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Message content is required")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	allowed, err := h.canAccessProject(project, authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not verify access")
	}
	if !allowed {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Not a member of this project")
	}

	row := map[string]interface{}{
		"project_id": projectID.String(),
		"sender_id":  authUser.ID.String(),
		"content":    payload.Content,
		"type":       models.MessageTypeText,
		"created_at": time.Now(),
	}
	if payload.ClientKey != nil {
		row["client_key"] = *payload.ClientKey
	}

	var inserted []models.Message
	body, _, err := h.DB.From("messages").Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not insert message")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not send message")
	}
	if err := json.Unmarshal(body, &inserted); err != nil || len(inserted) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm message")
	}

	full := h.messageWithSender(inserted[0])
	h.Hub.Broadcast(projectID.String(), realtime.Event{Kind: realtime.EventMessageCreated, Payload: full})

	return utils.RespondWithJSON(c, fiber.StatusCreated, full)
}

// SubmitFeedbackRequest is the body for owner feedback on a cut.
type SubmitFeedbackRequest struct {
	Content   string  `json:"content" validate:"required"`
	ClientKey *string `json:"client_key,omitempty"`
}

// SubmitFeedback appends a feedback message and flips the project to
// needs_changes, both inside the submit_feedback database function. Owner
// only.
func (h *ApplicationHandler) SubmitFeedback(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}

	payload := new(SubmitFeedbackRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if strings.TrimSpace(payload.Content) == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Feedback content is required")
	}

	project, err := h.fetchProject(projectID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve project")
	}
	if project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Project %s not found", projectID))
	}
	if project.OwnerID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Only the owner can leave feedback")
	}

	params := map[string]interface{}{
		"p_project_id": projectID.String(),
		"p_sender_id":  authUser.ID.String(),
		"p_content":    payload.Content,
		"p_client_key": payload.ClientKey,
	}
	var message models.Message
	if err := h.rpc("submit_feedback", params, &message); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Feedback submission failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not submit feedback")
	}

	full := h.messageWithSender(message)
	h.Hub.Broadcast(projectID.String(), realtime.Event{Kind: realtime.EventMessageCreated, Payload: full})
	h.Hub.Broadcast(projectID.String(), realtime.Event{
		Kind:    realtime.EventStatusChanged,
		Payload: fiber.Map{"project_id": projectID.String(), "status": models.ProjectStatusNeedsChanges},
	})
	h.notifyProjectEditors(project, models.NotificationFeedbackLeft,
		fmt.Sprintf("New feedback on %q", project.Title))

	return utils.RespondWithJSON(c, fiber.StatusCreated, full)
}

// messageWithSender re-fetches a message with its sender relation embedded,
// falling back to the bare row when the re-fetch errors.
func (h *ApplicationHandler) messageWithSender(bare models.Message) models.Message {
	var full []models.Message
	body, _, err := h.DB.From("messages").
		Select("*, sender:users!sender_id(id,name,email,role,avatar_url)", "", false).
		Eq("id", bare.ID.String()).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Warn("Could not re-fetch message with sender, using bare row")
		return bare
	}
	if err := json.Unmarshal(body, &full); err != nil || len(full) == 0 {
		return bare
	}
	return full[0]
}

// FeedGate authenticates and authorizes a websocket upgrade request. Browser
// websocket clients cannot set headers, so the session token rides in the
// token query parameter.
func (h *ApplicationHandler) FeedGate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	authUser, err := middleware.ParseSession(h.Cfg.SupabaseJWTSecret, c.Query("token"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Invalid or expired session")
	}
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid project ID format")
	}
	project, err := h.fetchProject(projectID)
	if err != nil || project == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Project not found")
	}
	allowed, err := h.canAccessProject(project, authUser.ID)
	if err != nil || !allowed {
		return utils.RespondWithError(c, fiber.StatusForbidden, "Not a member of this project")
	}

	c.Locals("feed_project_id", projectID.String())
	return c.Next()
}

// ProjectFeed is the websocket endpoint streaming a project's live events.
// One subscriber per connection; the write loop is the single writer.
func (h *ApplicationHandler) ProjectFeed(conn *websocket.Conn) {
	projectID, _ := conn.Locals("feed_project_id").(string)
	if projectID == "" {
		conn.Close()
		return
	}

	sub := h.Hub.Subscribe(projectID)
	defer h.Hub.Unsubscribe(projectID, sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
