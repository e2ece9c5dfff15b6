package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UploadStatusPending    = "PENDING"
	UploadStatusProcessing = "PROCESSING"
	UploadStatusApproved   = "APPROVED"
	UploadStatusRejected   = "REJECTED"
	UploadStatusError      = "ERROR"
)

// Upload is a validated person photo. Jobs may only be created against an
// APPROVED upload; a REJECTED upload has already had its blobs deleted.
type Upload struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	FileSize     int       `db:"file_size"     json:"file_size"`
	MimeType     string    `db:"mime_type"     json:"mime_type"`
	Width        int       `db:"width"         json:"width"`
	Height       int       `db:"height"        json:"height"`

	BlobURL      string  `db:"blob_url"      json:"url"`
	ThumbnailURL *string `db:"thumbnail_url" json:"thumbnail_url,omitempty"`

	Status      string   `db:"status"       json:"status"`
	NSFWScore   *float64 `db:"nsfw_score"   json:"-"`
	NSFWChecked bool     `db:"nsfw_checked" json:"-"`

	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
