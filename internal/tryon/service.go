// Package tryon is the job orchestration core: it owns the try-on job state
// machine and drives pluggable provider drivers through their lifecycle.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/imaging"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// finalizeStaleAfter bounds how long a finalize claim is honored. A claimant
// that crashed mid-download loses its lease after this and the next
// completion signal re-takes it.
const finalizeStaleAfter = 2 * time.Minute

const defaultMaxRetries = 3

// Service orchestrates try-on jobs: creation, dispatch to a provider driver,
// convergence to a terminal state via webhook or poll, and result
// post-processing. All state transitions go through the store's conditional
// writes, so concurrent signals for the same job are safe.
type Service struct {
	store   store.Store
	blobs   blob.Store
	images  imaging.Transformer
	drivers *Registry

	retention         time.Duration
	processingTimeout time.Duration
}

func NewService(st store.Store, blobs blob.Store, images imaging.Transformer, drivers *Registry, retention, processingTimeout time.Duration) *Service {
	return &Service{
		store:             st,
		blobs:             blobs,
		images:            images,
		drivers:           drivers,
		retention:         retention,
		processingTimeout: processingTimeout,
	}
}

// CreateParams is the input to CreateJob.
type CreateParams struct {
	UploadID  uuid.UUID
	GarmentID uuid.UUID
	SessionID string
	Options   models.TryOnOptions
}

// CreateResult is the outcome of CreateJob. Existing is true when an
// in-flight job for the same (upload, garment) pair was returned instead of
// a new one.
type CreateResult struct {
	Job              *models.Job
	Existing         bool
	EstimatedSeconds int
}

// CreateJob validates the upload and garment, inserts a QUEUED job, and
// dispatches it to the default driver in the background. Duplicate requests
// for an in-flight pair return the existing job rather than a second one.
func (s *Service) CreateJob(ctx context.Context, params CreateParams) (*CreateResult, error) {
	upload, err := s.store.GetUpload(ctx, params.UploadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: upload %s", ErrUploadNotReady, params.UploadID)
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	switch upload.Status {
	case models.UploadStatusApproved:
	case models.UploadStatusRejected:
		return nil, ErrUploadRejected
	default:
		return nil, ErrUploadNotReady
	}

	garment, err := s.store.GetGarment(ctx, params.GarmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGarmentUnavailable
		}
		return nil, fmt.Errorf("get garment: %w", err)
	}
	if !garment.IsActive {
		return nil, ErrGarmentUnavailable
	}

	job := &models.Job{
		ID:         uuid.New(),
		UploadID:   upload.ID,
		GarmentID:  garment.ID,
		Driver:     s.drivers.DefaultName(),
		Status:     models.JobStatusQueued,
		MaxRetries: defaultMaxRetries,
		ExpiresAt:  time.Now().Add(s.retention),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			existing, lookupErr := s.store.GetActiveJob(ctx, upload.ID, garment.ID)
			if lookupErr == nil {
				return &CreateResult{
					Job:              existing,
					Existing:         true,
					EstimatedSeconds: s.estimateSeconds(existing.Driver),
				}, nil
			}
			// The conflicting job reached a terminal state between our
			// insert and the lookup. Treat it as a transient conflict.
			return nil, fmt.Errorf("concurrent job for this pair just finished, retry: %w", err)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	driver, err := s.drivers.Create(job.Driver)
	if err != nil {
		// The row exists; converge it to FAILED rather than leaving a
		// QUEUED job nothing will ever pick up.
		s.failJob(ctx, job.ID, err.Error(), false)
		job.Status = models.JobStatusFailed
		msg := err.Error()
		job.ErrorMessage = &msg
		return &CreateResult{Job: job}, nil
	}

	req := buildRequest(upload, garment, params)
	if result := driver.ValidateRequest(req); !result.IsValid {
		reason := "invalid request: " + strings.Join(result.Errors, "; ")
		s.failJob(ctx, job.ID, reason, false)
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &reason
		return &CreateResult{Job: job}, nil
	}

	go s.dispatch(job.ID, driver, req)

	return &CreateResult{
		Job:              job,
		EstimatedSeconds: driver.EstimatedProcessingTime(),
	}, nil
}

func buildRequest(upload *models.Upload, garment *models.Garment, params CreateParams) models.TryOnRequest {
	return models.TryOnRequest{
		PersonImageURL:  upload.BlobURL,
		GarmentImageURL: garment.ImageURL,
		SessionID:       params.SessionID,
		GarmentName:     garment.Name,
		GarmentCategory: garment.Category,
		Options:         params.Options,
	}
}

func (s *Service) estimateSeconds(driverName string) int {
	driver, err := s.drivers.Create(driverName)
	if err != nil {
		return 0
	}
	return driver.EstimatedProcessingTime()
}

// dispatch runs in its own goroutine. Whatever happens, the job converges:
// a panic, a driver error, or a rejected submission all end in FAILED.
func (s *Service) dispatch(jobID uuid.UUID, driver models.TryOnDriver, req models.TryOnRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.processingTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during job dispatch", "job_id", jobID, "panic", r)
			s.failJob(ctx, jobID, fmt.Sprintf("internal error during dispatch: %v", r), false)
		}
	}()

	resp, err := driver.Generate(ctx, req)
	if err != nil {
		s.failJob(ctx, jobID, "driver error: "+err.Error(), false)
		return
	}
	if resp.Status == models.DriverStatusFailed {
		reason := resp.Error
		if reason == "" {
			reason = "generation failed"
		}
		s.failJob(ctx, jobID, reason, false)
		return
	}

	if resp.JobID != "" {
		dispatched, err := s.store.MarkJobDispatched(ctx, jobID, resp.JobID)
		if err != nil {
			slog.Error("mark job dispatched", "job_id", jobID, "error", err)
		} else if !dispatched {
			// The job already left QUEUED (webhook beat us, or it was
			// failed). Nothing more to do here.
			slog.Warn("job no longer queued after submit", "job_id", jobID)
			return
		}
	}

	// Synchronous drivers (mock, and providers that finish inline) hand the
	// result back immediately.
	if resp.Status == models.DriverStatusCompleted && resp.ResultURL != "" {
		s.finalize(ctx, jobID, completionSignal{
			ResultURL:         resp.ResultURL,
			ThumbnailURL:      resp.ThumbnailURL,
			ProcessingSeconds: resp.ProcessingSeconds,
		})
	}
}

// completionSignal carries a provider's "done, here is the result" report,
// whether it arrived by webhook or by poll.
type completionSignal struct {
	ResultURL         string
	ThumbnailURL      string
	ProcessingSeconds float64
	FromWebhook       bool
}

// finalize performs the completion side effects exactly once: republish the
// result under our own storage, produce a thumbnail, and flip the job to
// COMPLETED. Webhook and poll may both call this for the same job; the
// finalize lease plus the conditional CompleteJob guarantee one winner.
func (s *Service) finalize(ctx context.Context, jobID uuid.UUID, sig completionSignal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during job finalize", "job_id", jobID, "panic", r)
			s.failJob(ctx, jobID, fmt.Sprintf("internal error during finalize: %v", r), sig.FromWebhook)
		}
	}()

	claimed, err := s.store.ClaimFinalize(ctx, jobID, finalizeStaleAfter)
	if err != nil {
		slog.Error("claim finalize", "job_id", jobID, "error", err)
		return
	}
	if !claimed {
		// Another caller holds a fresh lease, or the job is terminal.
		return
	}

	stored, err := s.blobs.PutFromURL(ctx, sig.ResultURL, blob.FolderResults)
	if err != nil {
		s.failJob(ctx, jobID, "post-processing failed: "+err.Error(), sig.FromWebhook)
		return
	}

	thumbURL := s.storeThumbnail(ctx, sig)

	won, err := s.store.CompleteJob(ctx, jobID, models.JobResult{
		ResultURL:          stored.URL,
		ResultThumbnailURL: thumbURL,
		ProcessingTimeMs:   roundSecondsToMs(sig.ProcessingSeconds),
		WebhookReceived:    sig.FromWebhook,
	})
	if err != nil {
		slog.Error("complete job", "job_id", jobID, "error", err)
		return
	}
	if !won {
		// Lost the terminal transition (the job was failed meanwhile).
		// Discard our artifacts; the row's URLs are authoritative.
		s.blobs.Delete(ctx, stored.URL)
		if thumbURL != "" {
			s.blobs.Delete(ctx, thumbURL)
		}
		slog.Warn("lost completion race, artifacts discarded", "job_id", jobID)
		return
	}

	slog.Info("job completed", "job_id", jobID, "from_webhook", sig.FromWebhook)
}

// storeThumbnail republishes the provider thumbnail if one was given, or
// renders one from the result image. Thumbnail failures never fail the job.
func (s *Service) storeThumbnail(ctx context.Context, sig completionSignal) string {
	if sig.ThumbnailURL != "" {
		stored, err := s.blobs.PutFromURL(ctx, sig.ThumbnailURL, blob.FolderThumbnails)
		if err == nil {
			return stored.URL
		}
		slog.Warn("store provider thumbnail", "error", err)
	}

	data, err := s.images.ThumbnailFromURL(ctx, sig.ResultURL, imaging.ResultThumbnailSize)
	if err != nil {
		slog.Warn("render result thumbnail", "error", err)
		return ""
	}
	stored, err := s.blobs.Put(ctx, data, "image/jpeg", blob.FolderThumbnails)
	if err != nil {
		slog.Warn("store result thumbnail", "error", err)
		return ""
	}
	return stored.URL
}

// GetJobStatus returns the current job state, reconciling with the provider
// when the job is still in flight. Terminal jobs are returned as-is without
// any provider call.
func (s *Service) GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.JobStatusTerminal(job.Status) {
		return job, nil
	}

	if time.Since(job.CreatedAt) > s.processingTimeout {
		reason := fmt.Sprintf("timed out after %s", s.processingTimeout)
		s.failJob(ctx, id, reason, false)
		return s.store.GetJob(ctx, id)
	}

	if job.ExternalJobID == nil {
		// Dispatch has not reported a provider id yet.
		return job, nil
	}

	driver, err := s.drivers.Create(job.Driver)
	if err != nil {
		slog.Warn("resolve driver for status poll", "job_id", id, "driver", job.Driver, "error", err)
		return job, nil
	}

	resp, err := driver.GetStatus(ctx, *job.ExternalJobID)
	if err != nil {
		// Provider check failures leave the job in flight; the timeout
		// above is the backstop.
		slog.Warn("provider status check failed", "job_id", id, "error", err)
		return job, nil
	}

	switch resp.Status {
	case models.DriverStatusCompleted:
		if resp.ResultURL == "" {
			s.failJob(ctx, id, "provider reported completion without a result", false)
			break
		}
		s.finalize(ctx, id, completionSignal{
			ResultURL:         resp.ResultURL,
			ThumbnailURL:      resp.ThumbnailURL,
			ProcessingSeconds: resp.ProcessingSeconds,
		})
	case models.DriverStatusFailed:
		reason := resp.Error
		if reason == "" {
			reason = "generation failed"
		}
		s.failJob(ctx, id, reason, false)
	}

	return s.store.GetJob(ctx, id)
}

// HandleWebhook applies a normalized provider callback to its job. Unknown
// external ids are logged and dropped so providers always get a 200 and stop
// retrying.
func (s *Service) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	job, err := s.store.GetJobByExternalID(ctx, ev.ExternalJobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("webhook for unknown job", "external_job_id", ev.ExternalJobID)
			return nil
		}
		return fmt.Errorf("lookup job by external id: %w", err)
	}

	switch ev.Outcome {
	case OutcomeCompleted:
		if ev.ResultURL == "" {
			s.failJob(ctx, job.ID, "webhook reported completion without a result", true)
			return nil
		}
		s.finalize(ctx, job.ID, completionSignal{
			ResultURL:         ev.ResultURL,
			ThumbnailURL:      ev.ThumbnailURL,
			ProcessingSeconds: ev.ProcessingSeconds,
			FromWebhook:       true,
		})
	case OutcomeFailed:
		reason := ev.ErrorText
		if reason == "" {
			reason = "generation failed"
		}
		s.failJob(ctx, job.ID, reason, true)
	default:
		if err := s.store.MarkWebhookReceived(ctx, job.ID); err != nil {
			slog.Warn("mark webhook received", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

// failJob is the one place FAILED transitions happen. Losing the conditional
// write is normal (the job was already terminal) and only logged.
func (s *Service) failJob(ctx context.Context, id uuid.UUID, reason string, webhookReceived bool) {
	won, err := s.store.FailJob(ctx, id, reason, webhookReceived)
	if err != nil {
		slog.Error("fail job", "job_id", id, "error", err)
		return
	}
	if won {
		slog.Info("job failed", "job_id", id, "reason", reason)
	}
}

// roundSecondsToMs converts a provider's processing time to milliseconds.
// Sub-millisecond but nonzero durations round up to 1ms so "instant" and
// "unreported" stay distinguishable.
func roundSecondsToMs(sec float64) int {
	if sec <= 0 {
		return 0
	}
	ms := int(math.Round(sec * 1000))
	if ms == 0 {
		ms = 1
	}
	return ms
}
