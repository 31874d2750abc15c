package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// SelectRoleRequest is the body for the one-time role selection step.
type SelectRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=creator editor"`
	Name string `json:"name"`
}

// SelectRole godoc
// @Summary Select a role for a first-time user
// @Description Persists the chosen role (creator/editor) for the authenticated identity. Idempotent: if a profile already exists it is returned unchanged.
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body SelectRoleRequest true "Chosen role"
// @Success 200 {object} map[string]interface{} "Existing profile"
// @Success 201 {object} map[string]interface{} "Profile created"
// @Router /auth/select-role [post]
func (h *ApplicationHandler) SelectRole(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(SelectRoleRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}

	// Re-invoking after a profile exists is not an error; the client just
	// goes on to the dashboard.
	existing, err := h.fetchUser(authUser.ID)
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Role selection profile lookup failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not look up profile")
	}
	if existing != nil {
		return utils.RespondWithJSON(c, fiber.StatusOK, existing)
	}

	name := payload.Name
	if name == "" {
		name = strings.Split(authUser.Email, "@")[0]
	}

	now := time.Now()
	row := map[string]interface{}{
		"id":         authUser.ID.String(),
		"email":      authUser.Email,
		"name":       name,
		"role":       payload.Role,
		"created_at": now,
		"updated_at": now,
	}

	var created []models.User
	body, _, err := h.DB.From("users").Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not create profile")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create profile")
	}
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		h.Logger.WithField("error", fmt.Sprintf("%v", err)).Error("Empty response creating profile")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm profile creation")
	}

	h.Logger.WithFields(map[string]interface{}{"user_id": authUser.ID, "role": payload.Role}).Info("Profile created")
	return utils.RespondWithJSON(c, fiber.StatusCreated, created[0])
}

// GetMe returns the authenticated user's profile, or 404 while role
// selection is still pending.
func (h *ApplicationHandler) GetMe(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	user, err := h.fetchUser(authUser.ID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not fetch profile")
	}
	if user == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Profile not found, role selection pending")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, user)
}

// UpdateMeRequest is the body for profile updates. Role is deliberately not
// updatable.
type UpdateMeRequest struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateMe updates the display name and avatar of the current profile.
func (h *ApplicationHandler) UpdateMe(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(UpdateMeRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	update := map[string]interface{}{"updated_at": time.Now()}
	if payload.Name != nil {
		if strings.TrimSpace(*payload.Name) == "" {
			return utils.RespondWithError(c, fiber.StatusBadRequest, "Name cannot be empty")
		}
		update["name"] = strings.TrimSpace(*payload.Name)
	}
	if payload.AvatarURL != nil {
		update["avatar_url"] = *payload.AvatarURL
	}

	var updated []models.User
	body, _, err := h.DB.From("users").Update(update, "representation", "").Eq("id", authUser.ID.String()).Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not update profile")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update profile")
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode updated profile")
	}
	if len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Profile not found")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}
