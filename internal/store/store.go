package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/missmatchapp/missmatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
//
// CompleteJob, FailJob, MarkJobDispatched and ClaimFinalize are conditional
// writes: they mutate the row only when its current status still permits the
// transition, and report whether the write won. This is the single mechanism
// that keeps the job state machine correct when webhook, poll and dispatch
// race across processes.
type Store interface {
	Ping(ctx context.Context) error

	CreateUpload(ctx context.Context, upload *models.Upload) error
	GetUpload(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	SetUploadModeration(ctx context.Context, id uuid.UUID, status string, score *float64) error
	ListExpiredUploads(ctx context.Context, before time.Time) ([]*models.Upload, error)
	DeleteUpload(ctx context.Context, id uuid.UUID) error

	ListGarments(ctx context.Context, filter GarmentFilter) ([]*models.Garment, int, error)
	GetGarment(ctx context.Context, id uuid.UUID) (*models.Garment, error)
	CreateGarment(ctx context.Context, garment *models.Garment) error
	DeactivateGarment(ctx context.Context, id uuid.UUID) error

	// CreateJob inserts a QUEUED job. Returns ErrDuplicateKey when an
	// in-flight job already exists for the same (upload, garment) pair.
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobByExternalID(ctx context.Context, externalJobID string) (*models.Job, error)
	GetActiveJob(ctx context.Context, uploadID, garmentID uuid.UUID) (*models.Job, error)
	ListJobsForUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.Job, error)

	// MarkJobDispatched records the provider-assigned id and moves
	// QUEUED -> PROCESSING. The external id is set at most once.
	MarkJobDispatched(ctx context.Context, id uuid.UUID, externalJobID string) (bool, error)
	// CompleteJob moves a non-terminal job to COMPLETED with its result.
	CompleteJob(ctx context.Context, id uuid.UUID, result models.JobResult) (bool, error)
	// FailJob moves a non-terminal job to FAILED with a reason.
	FailJob(ctx context.Context, id uuid.UUID, reason string, webhookReceived bool) (bool, error)
	// ClaimFinalize leases the completion side effects (artifact download,
	// thumbnail) to one caller. A claim older than staleAfter is treated as
	// abandoned and may be re-taken.
	ClaimFinalize(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (bool, error)
	MarkWebhookReceived(ctx context.Context, id uuid.UUID) error

	ListExpiredJobs(ctx context.Context, before time.Time) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	DeleteFailedJobsBefore(ctx context.Context, before time.Time) (int, error)
	// ListArtifactURLs returns every blob URL referenced by any live row,
	// used by the sweeper's orphan reconciliation phase.
	ListArtifactURLs(ctx context.Context) ([]string, error)
}

type GarmentFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}
