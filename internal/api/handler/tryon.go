package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/missmatchapp/missmatch/internal/api/response"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/internal/tryon"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// TryOn serves job creation and status polling.
type TryOn struct {
	svc *tryon.Service
}

func NewTryOn(svc *tryon.Service) *TryOn {
	return &TryOn{svc: svc}
}

type createTryOnRequest struct {
	UploadID  string               `json:"upload_id"`
	GarmentID string               `json:"garment_id"`
	SessionID string               `json:"session_id"`
	Options   models.TryOnOptions  `json:"options"`
}

type tryOnJobResponse struct {
	Job              *models.Job `json:"job"`
	Existing         bool        `json:"existing"`
	EstimatedSeconds int         `json:"estimated_seconds,omitempty"`
}

// Create handles POST /api/v1/tryon. A duplicate request for a pair that
// already has an in-flight job returns that job with existing=true instead
// of starting a second generation.
func (h *TryOn) Create(w http.ResponseWriter, r *http.Request) {
	var req createTryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}

	uploadID, err := uuid.Parse(req.UploadID)
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "upload_id must be a valid UUID", nil)
		return
	}
	garmentID, err := uuid.Parse(req.GarmentID)
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "garment_id must be a valid UUID", nil)
		return
	}
	if req.SessionID == "" {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "session_id is required", nil)
		return
	}

	result, err := h.svc.CreateJob(r.Context(), tryon.CreateParams{
		UploadID:  uploadID,
		GarmentID: garmentID,
		SessionID: req.SessionID,
		Options:   req.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, tryon.ErrUploadRejected):
			response.Error(w, http.StatusUnprocessableEntity,
				"UPLOAD_REJECTED", "The upload was rejected by moderation", nil)
		case errors.Is(err, tryon.ErrUploadNotReady):
			response.Error(w, http.StatusConflict,
				"UPLOAD_NOT_READY", "The upload is not approved yet", nil)
		case errors.Is(err, tryon.ErrGarmentUnavailable):
			response.Error(w, http.StatusNotFound,
				"GARMENT_UNAVAILABLE", "The garment does not exist or is inactive", nil)
		default:
			slog.Error("create try-on job", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	body := tryOnJobResponse{
		Job:              result.Job,
		Existing:         result.Existing,
		EstimatedSeconds: result.EstimatedSeconds,
	}
	if result.Existing {
		response.JSON(w, body)
		return
	}
	response.Accepted(w, body)
}

// Get handles GET /api/v1/tryon/{jobID}. Polling an in-flight job may
// reconcile with the provider and return the updated state.
func (h *TryOn) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid job id", nil)
		return
	}

	job, err := h.svc.GetJobStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound,
				"NOT_FOUND", "Job not found", nil)
			return
		}
		slog.Error("get job status", "job_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	response.JSON(w, job)
}
