package models

import (
	"time"

	"github.com/google/uuid"
)

// Role values a profile can carry. Assigned once at signup and never changed.
const (
	RoleCreator = "creator"
	RoleEditor  = "editor"
)

// User represents a profile row. The id matches the auth identity's subject,
// so a profile exists iff the user finished the role-selection step.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	AvatarURL *string   `json:"avatar_url,omitempty"` // Use a pointer for nullable TEXT fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
