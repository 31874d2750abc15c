package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"

	"edio/models"
)

// Per-type declared-size ceilings, in bytes.
const (
	maxVideoSize     = 10 << 30  // 10GB
	maxImageSize     = 5 << 20   // 5MB
	maxThumbnailSize = 2 << 20   // 2MB
	maxAudioSize     = 500 << 20 // 500MB
	maxDocumentSize  = 100 << 20 // 100MB
	maxOtherSize     = 50 << 20  // 50MB
)

// ErrUnknownFileType is returned when the declared file type is not one of
// the accepted buckets.
var ErrUnknownFileType = errors.New("unknown file type")

// ErrFileTooLarge is returned when the declared size exceeds the ceiling for
// its file type.
var ErrFileTooLarge = errors.New("file exceeds size limit for its type")

var sizeCeilings = map[string]int64{
	models.FileTypeVideo:     maxVideoSize,
	models.FileTypeImage:     maxImageSize,
	models.FileTypeThumbnail: maxThumbnailSize,
	models.FileTypeAudio:     maxAudioSize,
	models.FileTypeDocument:  maxDocumentSize,
	models.FileTypeOther:     maxOtherSize,
}

// SizeCeiling returns the byte ceiling for a file type bucket.
func SizeCeiling(fileType string) (int64, error) {
	ceiling, ok := sizeCeilings[fileType]
	if !ok {
		return 0, ErrUnknownFileType
	}
	return ceiling, nil
}

// ValidateSize checks a declared file size against its type's ceiling.
func ValidateSize(fileType string, size int64) error {
	ceiling, err := SizeCeiling(fileType)
	if err != nil {
		return err
	}
	if size <= 0 {
		return fmt.Errorf("file size must be positive")
	}
	if size > ceiling {
		return fmt.Errorf("%w: %d > %d", ErrFileTooLarge, size, ceiling)
	}
	return nil
}

// SanitizeEmail flattens an email address into a storage-safe path segment.
func SanitizeEmail(email string) string {
	return sanitizeSegment(strings.ToLower(email))
}

// SanitizeFileName keeps the extension but flattens everything unsafe in the
// base name.
func SanitizeFileName(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	// filepath.Base("") is "." and a bare-dot extension carries no
	// information; drop it rather than emit a trailing dot.
	if strings.Trim(ext, ".") == "" {
		ext = ""
	}
	if strings.Trim(stem, ".") == "" {
		stem = ""
	}
	return sanitizeSegment(stem) + strings.ToLower(ext)
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "file"
	}
	return out
}

// ObjectPath builds the deterministic public object path:
// {sanitized email}/{project id | temp-<uuid>}/{file type}/{sanitized name}.
// A temporary placeholder segment is used when no project exists yet.
func ObjectPath(email, projectID, fileType, fileName string) string {
	if projectID == "" {
		projectID = "temp-" + uuid.NewString()
	}
	return fmt.Sprintf("%s/%s/%s/%s", SanitizeEmail(email), projectID, fileType, SanitizeFileName(fileName))
}

// ObjectSigner is the slice of the Supabase Storage client the service needs.
// Narrowed to an interface so handler tests can fake URL issuance.
type ObjectSigner interface {
	CreateSignedUploadUrl(bucketID string, filePath string) (storage_go.SignedUploadUrlResponse, error)
	CreateSignedUrl(bucketID string, filePath string, expiresIn int) (storage_go.SignedUrlResponse, error)
	GetPublicUrl(bucketID string, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
}

// Service issues presigned upload and view URLs against one bucket.
type Service struct {
	Bucket string
	Signer ObjectSigner
}

// NewService wires a storage service for the given bucket.
func NewService(bucket string, signer ObjectSigner) *Service {
	return &Service{Bucket: bucket, Signer: signer}
}

// PresignResult is what the presign endpoint hands back to the caller.
type PresignResult struct {
	UploadURL string `json:"upload_url"`
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
}

// SignUpload validates the declared size and issues a time-limited PUT URL
// plus the eventual public path. No metadata row is written here; the caller
// records it after the upload succeeds.
func (s *Service) SignUpload(email, projectID, fileType, fileName string, size int64) (*PresignResult, error) {
	if err := ValidateSize(fileType, size); err != nil {
		return nil, err
	}

	path := ObjectPath(email, projectID, fileType, fileName)
	signed, err := s.Signer.CreateSignedUploadUrl(s.Bucket, path)
	if err != nil {
		return nil, fmt.Errorf("could not create signed upload URL: %w", err)
	}

	public := s.Signer.GetPublicUrl(s.Bucket, path)
	return &PresignResult{
		UploadURL: signed.Url,
		Path:      path,
		PublicURL: public.SignedURL,
	}, nil
}

// SignedViewURL issues a short-lived GET URL for an object path.
func (s *Service) SignedViewURL(path string, expiresIn int) (string, error) {
	signed, err := s.Signer.CreateSignedUrl(s.Bucket, path, expiresIn)
	if err != nil {
		return "", fmt.Errorf("could not create signed view URL: %w", err)
	}
	return signed.SignedURL, nil
}
