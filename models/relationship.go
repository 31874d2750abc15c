package models

import (
	"time"

	"github.com/google/uuid"
)

// Relationship states. pending -> active (accept) or pending -> rejected
// (reject); no further transitions.
const (
	RelationshipPending  = "pending"
	RelationshipActive   = "active"
	RelationshipRejected = "rejected"
)

// EditorRelationship is a standing (creator, editor) pairing independent of
// any single project. At most one row per pair.
type EditorRelationship struct {
	ID        uuid.UUID `json:"id,omitempty"`
	CreatorID uuid.UUID `json:"creator_id"`
	EditorID  uuid.UUID `json:"editor_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Creator *User `json:"creator,omitempty"`
	Editor  *User `json:"editor,omitempty"`
}

// EditorInvite is the email-addressed invitation path, used before the
// invitee has an account. Accepting one also creates the active
// EditorRelationship row.
type EditorInvite struct {
	ID         uuid.UUID  `json:"id,omitempty"`
	CreatorID  uuid.UUID  `json:"creator_id"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	AcceptedBy *uuid.UUID `json:"accepted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
