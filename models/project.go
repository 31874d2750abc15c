package models

import (
	"time"

	"github.com/google/uuid"
)

// Project lifecycle states. A project only leaves "approved" through an
// explicit owner action.
const (
	ProjectStatusPending      = "pending"
	ProjectStatusInReview     = "in_review"
	ProjectStatusNeedsChanges = "needs_changes"
	ProjectStatusApproved     = "approved"
)

// Publishing states tracked separately from the review lifecycle.
const (
	PublishStatusProcessing = "processing"
	PublishStatusCompleted  = "completed"
	PublishStatusFailed     = "failed"
)

// Project represents the structure of a project in the database.
type Project struct {
	ID                 uuid.UUID  `json:"id,omitempty"`
	OwnerID            uuid.UUID  `json:"owner_id"`
	Title              string     `json:"title"`
	VideoTitle         *string    `json:"video_title,omitempty"`       // Use a pointer for nullable TEXT fields
	VideoDescription   *string    `json:"video_description,omitempty"` // Use a pointer for nullable TEXT fields
	Status             string     `json:"status"`
	EditorID           *uuid.UUID `json:"editor_id,omitempty"` // Legacy single-editor reference, superseded by project_editors
	ChannelID          *uuid.UUID `json:"channel_id,omitempty"`
	PublishedVideoID   *string    `json:"published_video_id,omitempty"`
	PublishStatus      *string    `json:"publish_status,omitempty"`
	PublishError       *string    `json:"publish_error,omitempty"`
	FinalVersionNumber *int       `json:"final_version_number,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProjectEditor is a row in the many-to-many assignment set.
type ProjectEditor struct {
	ID        uuid.UUID `json:"id,omitempty"`
	ProjectID uuid.UUID `json:"project_id"`
	EditorID  uuid.UUID `json:"editor_id"`
	CreatedAt time.Time `json:"created_at"`
}
