package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoVersion is an immutable, per-project-numbered snapshot of a submitted
// cut. Rows are never updated after creation; numbering is allocated inside
// the submit_version database function so it stays gapless under concurrent
// submissions.
type VideoVersion struct {
	ID            uuid.UUID `json:"id,omitempty"`
	ProjectID     uuid.UUID `json:"project_id"`
	UploaderID    uuid.UUID `json:"uploader_id"`
	VersionNumber int       `json:"version_number"`
	FileURL       string    `json:"file_url"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`

	Uploader *User `json:"uploader,omitempty"`
}
