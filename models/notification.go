package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds emitted by the handlers.
const (
	NotificationEditorInvite    = "editor_invite"
	NotificationInviteAccepted  = "invite_accepted"
	NotificationInviteRejected  = "invite_rejected"
	NotificationVersionUploaded = "version_uploaded"
	NotificationFeedbackLeft    = "feedback_left"
	NotificationProjectApproved = "project_approved"
)

// Notification is an append-only per-user event. Metadata references the
// originating entity (relationship id, project id) by id only; invitation
// state is authoritative on the relationship row, never here.
type Notification struct {
	ID        uuid.UUID       `json:"id,omitempty"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"` // Nullable JSONB
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}
