package models

import (
	"time"

	"github.com/google/uuid"
)

// YouTubeChannel stores a connected channel's OAuth token pair. Both tokens
// are AES-encrypted before they touch the database; TokenExpiry is the access
// token's expiry in plaintext so the refresh horizon check stays cheap.
type YouTubeChannel struct {
	ID                    uuid.UUID `json:"id,omitempty"`
	UserID                uuid.UUID `json:"user_id"`
	ChannelID             string    `json:"channel_id"`
	ChannelTitle          string    `json:"channel_title"`
	ThumbnailURL          *string   `json:"thumbnail_url,omitempty"`
	AccessTokenEncrypted  string    `json:"access_token_encrypted"`
	RefreshTokenEncrypted string    `json:"refresh_token_encrypted"`
	TokenExpiry           time.Time `json:"token_expiry"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
