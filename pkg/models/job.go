package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "QUEUED"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// JobStatusTerminal reports whether a job status is final. A terminal job is
// never mutated again, by anyone.
func JobStatusTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks one try-on generation request against an external provider.
// The API returns a job id on POST /api/v1/tryon; the client polls
// GET /api/v1/tryon/{id} until status is COMPLETED or FAILED.
type Job struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UploadID  uuid.UUID `db:"upload_id"  json:"upload_id"`
	GarmentID uuid.UUID `db:"garment_id" json:"garment_id"`

	Driver        string  `db:"driver"          json:"driver"`
	ExternalJobID *string `db:"external_job_id" json:"external_job_id,omitempty"`

	Status string `db:"status" json:"status"`

	ResultURL          *string `db:"result_url"           json:"result_url,omitempty"`
	ResultThumbnailURL *string `db:"result_thumbnail_url" json:"result_thumbnail_url,omitempty"`
	ProcessingTimeMs   *int    `db:"processing_time_ms"   json:"processing_time_ms,omitempty"`

	ErrorMessage    *string `db:"error_message"    json:"error_message,omitempty"`
	WebhookReceived bool    `db:"webhook_received" json:"webhook_received"`

	// Persisted for a future retry policy; nothing increments or consults
	// them today.
	RetryCount int `db:"retry_count" json:"retry_count"`
	MaxRetries int `db:"max_retries" json:"max_retries"`

	// FinalizingAt leases the completion step (result download + thumbnail)
	// to a single caller when webhook and poll race.
	FinalizingAt *time.Time `db:"finalizing_at" json:"-"`

	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// JobResult carries the data persisted on the transition into COMPLETED.
type JobResult struct {
	ResultURL          string
	ResultThumbnailURL string
	ProcessingTimeMs   int
	WebhookReceived    bool
}
