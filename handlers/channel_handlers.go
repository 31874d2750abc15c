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

// ConnectChannelRequest carries the OAuth authorization code from the
// consent redirect.
type ConnectChannelRequest struct {
	Code        string  `json:"code" validate:"required"`
	RedirectURI *string `json:"redirect_uri,omitempty"`
}

// channelResponse is the public view of a channel row. Encrypted token
// material never leaves the server.
type channelResponse struct {
	ID           uuid.UUID `json:"id"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CreatedAt    time.Time `json:"created_at"`
}

func toChannelResponse(ch models.YouTubeChannel) channelResponse {
	return channelResponse{
		ID:           ch.ID,
		ChannelID:    ch.ChannelID,
		ChannelTitle: ch.ChannelTitle,
		ThumbnailURL: ch.ThumbnailURL,
		TokenExpiry:  ch.TokenExpiry,
		CreatedAt:    ch.CreatedAt,
	}
}

// ConnectChannel exchanges an OAuth code, resolves the channel it grants and
// stores the encrypted token pair. Reconnecting an already-linked channel
// replaces its tokens.
func (h *ApplicationHandler) ConnectChannel(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	payload := new(ConnectChannelRequest)
	if err := c.BodyParser(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest,
			fmt.Sprintf("Validation failed: %s", strings.Join(utils.FormatValidationErrors(err), "; ")))
	}

	redirectURI := h.Cfg.YouTubeRedirectURL
	if payload.RedirectURI != nil && *payload.RedirectURI != "" {
		redirectURI = *payload.RedirectURI
	}

	tokens, err := h.Platform.ExchangeCode(c.Context(), payload.Code, redirectURI)
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("OAuth code exchange failed")
		return utils.RespondWithError(c, fiber.StatusBadGateway, "Could not complete channel authorization")
	}

	info, err := h.Platform.FetchChannelInfo(c.Context(), tokens.AccessToken)
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Channel lookup failed")
		return utils.RespondWithError(c, fiber.StatusBadGateway, "Could not resolve channel for this account")
	}

	now := time.Now()
	row := map[string]interface{}{
		"user_id":                 authUser.ID.String(),
		"channel_id":              info.ChannelID,
		"channel_title":           info.Title,
		"access_token_encrypted":  h.Cipher.Encrypt(tokens.AccessToken),
		"refresh_token_encrypted": h.Cipher.Encrypt(tokens.RefreshToken),
		"token_expiry":            tokens.Expiry,
		"updated_at":              now,
	}
	if info.ThumbnailURL != "" {
		row["thumbnail_url"] = info.ThumbnailURL
	}

	// One row per (user, channel): replace tokens on reconnect.
	var existing []models.YouTubeChannel
	body, _, err := h.DB.From("youtube_channels").Select("*", "", false).
		Eq("user_id", authUser.ID.String()).
		Eq("channel_id", info.ChannelID).
		Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not check existing channels")
	}
	if err := json.Unmarshal(body, &existing); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode channels")
	}

	var saved []models.YouTubeChannel
	if len(existing) > 0 {
		body, _, err = h.DB.From("youtube_channels").Update(row, "representation", "").
			Eq("id", existing[0].ID.String()).
			Execute()
	} else {
		row["created_at"] = now
		body, _, err = h.DB.From("youtube_channels").Insert(row, false, "", "representation", "").Execute()
	}
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not persist channel")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not save channel")
	}
	if err := json.Unmarshal(body, &saved); err != nil || len(saved) == 0 {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not confirm channel")
	}

	h.Logger.WithFields(map[string]interface{}{"user_id": authUser.ID, "channel": info.ChannelID}).Info("Channel connected")
	return utils.RespondWithJSON(c, fiber.StatusCreated, toChannelResponse(saved[0]))
}

// ListChannels returns the caller's connected channels.
func (h *ApplicationHandler) ListChannels(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}

	var channels []models.YouTubeChannel
	body, _, err := h.DB.From("youtube_channels").Select("*", "", false).
		Eq("user_id", authUser.ID.String()).
		Execute()
	if err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not list channels")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve channels")
	}
	if err := json.Unmarshal(body, &channels); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode channels")
	}

	out := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, toChannelResponse(ch))
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, out)
}

// DeleteChannel disconnects a channel. Only the owning user may remove it.
func (h *ApplicationHandler) DeleteChannel(c *fiber.Ctx) error {
	authUser, ok := middleware.CurrentUser(c)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnauthorized, "Missing session")
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid channel ID format")
	}

	var channels []models.YouTubeChannel
	body, _, err := h.DB.From("youtube_channels").Select("*", "", false).Eq("id", channelID.String()).Execute()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve channel")
	}
	if err := json.Unmarshal(body, &channels); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not decode channel")
	}
	if len(channels) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Channel not found")
	}
	if channels[0].UserID != authUser.ID {
		return utils.RespondWithError(c, fiber.StatusForbidden, "You can only disconnect your own channels")
	}

	if _, _, err := h.DB.From("youtube_channels").Delete("", "").Eq("id", channelID.String()).Execute(); err != nil {
		h.Logger.WithField("error", err.Error()).Error("Could not delete channel")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not disconnect channel")
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"deleted": channelID.String()})
}
