package models

import (
	"time"

	"github.com/google/uuid"
)

// Message type tags. Feedback messages also flip the project status.
const (
	MessageTypeText     = "text"
	MessageTypeFeedback = "feedback"
)

// Message is an append-only chat entry scoped to a project. ClientKey is the
// sender-generated idempotency key echoed back on the live feed so the
// sender's optimistic entry can be correlated.
type Message struct {
	ID        uuid.UUID  `json:"id,omitempty"`
	ProjectID uuid.UUID  `json:"project_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	ClientKey *string    `json:"client_key,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	Sender *User `json:"sender,omitempty"`
}
