package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"edio/middleware"
	"edio/models"
	"edio/utils"
)

// ListNotifications returns the caller's notifications, newest first.
func (h *ApplicationHandler) ListNotifications(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	var notifications []models.Notification
	body, _, err := h.DB.From("notifications").Select("*", "", false).
		Eq("user_id", authUser.ID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(100, "").
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list notifications")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve notifications")
	}
	if err := json.Unmarshal(body, &notifications); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode notifications")
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, notifications)
}

// UnreadCount backs the notification badge.
func (h *ApplicationHandler) UnreadCount(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	// A head request with an exact count: the badge needs a number, not rows.
	_, count, err := h.DB.From("notifications").Select("id", "exact", true).
		Eq("user_id", authUser.ID.String()).
		Eq("read", "false").
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not count notifications")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not count notifications")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"unread": count})
}

// MarkNotificationRead flips one of the caller's notifications to read. The
// update is filtered on id + user so nobody can touch another user's rows.
func (h *ApplicationHandler) MarkNotificationRead(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	notificationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid notification ID format")
	}

	var updated []models.Notification
	body, _, err := h.DB.From("notifications").
		Update(map[string]interface{}{"read": true}, "representation", "").
		Eq("id", notificationID.String()).
		Eq("user_id", authUser.ID.String()).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not mark notification read")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update notification")
	}
	if err := json.Unmarshal(body, &updated); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode notification")
	}
	if len(updated) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, fmt.Sprintf("Notification %s not found", notificationID))
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, updated[0])
}
