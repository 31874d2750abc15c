package models

import (
	"time"

	"github.com/google/uuid"
)

// File type buckets accepted by the presign endpoint. Each carries its own
// size ceiling (see internal/storage).
const (
	FileTypeVideo     = "video"
	FileTypeImage     = "image"
	FileTypeThumbnail = "thumbnail"
	FileTypeAudio     = "audio"
	FileTypeDocument  = "document"
	FileTypeOther     = "other"
)

// Upload is a stored file reference. The row is written by the client after
// the presigned PUT succeeds, not by the presign endpoint itself.
type Upload struct {
	ID         uuid.UUID  `json:"id,omitempty"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"` // Nullable foreign key
	UploaderID uuid.UUID  `json:"uploader_id"`
	FileType   string     `json:"file_type"`
	FileName   string     `json:"file_name"`
	FileSize   *int64     `json:"file_size,omitempty"` // Nullable BIGINT
	FileURL    string     `json:"file_url"`
	CreatedAt  time.Time  `json:"created_at"`
}
