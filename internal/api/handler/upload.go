package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/missmatchapp/missmatch/internal/api/response"
	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/imaging"
	"github.com/missmatchapp/missmatch/internal/moderation"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/pkg/models"
)

const (
	maxUploadBytes = 10 << 20

	moderationTimeout = 30 * time.Second
)

var acceptedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Uploads serves the person-photo intake endpoints. Every stored image is
// normalized first: EXIF stripped, orientation baked in, re-encoded as JPEG.
type Uploads struct {
	store      store.Store
	blobs      blob.Store
	images     imaging.Transformer
	classifier moderation.Classifier
	retention  time.Duration
}

func NewUploads(st store.Store, blobs blob.Store, images imaging.Transformer, classifier moderation.Classifier, retention time.Duration) *Uploads {
	return &Uploads{
		store:      st,
		blobs:      blobs,
		images:     images,
		classifier: classifier,
		retention:  retention,
	}
}

// Create handles POST /api/v1/uploads. The upload is stored and returned in
// PROCESSING state; moderation runs in the background and the client polls
// Get until the status settles on APPROVED or REJECTED.
func (h *Uploads) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, http.StatusRequestEntityTooLarge,
			"FILE_TOO_LARGE", "Image must be 10MB or smaller", nil)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Multipart field 'image' is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !acceptedMimeTypes[contentType] {
		response.Error(w, http.StatusUnsupportedMediaType,
			"UNSUPPORTED_TYPE", "Image must be JPEG, PNG, or WebP", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Could not read uploaded file", nil)
		return
	}

	normalized, meta, err := h.images.Normalize(data)
	if err != nil {
		if errors.Is(err, imaging.ErrInvalidImage) {
			response.Error(w, http.StatusUnprocessableEntity,
				"INVALID_IMAGE", err.Error(), nil)
			return
		}
		slog.Error("normalize upload", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to process image", nil)
		return
	}

	stored, err := h.blobs.Put(r.Context(), normalized, "image/jpeg", blob.FolderUploads)
	if err != nil {
		slog.Error("store upload", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to store image", nil)
		return
	}

	var thumbURL *string
	if thumb, err := h.images.Thumbnail(normalized, imaging.ThumbnailSize); err == nil {
		if t, err := h.blobs.Put(r.Context(), thumb, "image/jpeg", blob.FolderThumbnails); err == nil {
			thumbURL = &t.URL
		}
	}

	upload := &models.Upload{
		ID:           uuid.New(),
		OriginalName: header.Filename,
		FileSize:     len(normalized),
		MimeType:     "image/jpeg",
		Width:        meta.Width,
		Height:       meta.Height,
		BlobURL:      stored.URL,
		ThumbnailURL: thumbURL,
		Status:       models.UploadStatusProcessing,
		ExpiresAt:    time.Now().Add(h.retention),
	}
	if err := h.store.CreateUpload(r.Context(), upload); err != nil {
		h.blobs.Delete(r.Context(), stored.URL)
		if thumbURL != nil {
			h.blobs.Delete(r.Context(), *thumbURL)
		}
		slog.Error("create upload row", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to record upload", nil)
		return
	}

	go h.moderate(upload)

	response.Created(w, upload)
}

// moderate runs the NSFW check in the background. A classifier outage fails
// open with a warning; only a flagged verdict rejects the upload.
func (h *Uploads) moderate(upload *models.Upload) {
	ctx, cancel := context.WithTimeout(context.Background(), moderationTimeout)
	defer cancel()

	result, err := h.classifier.CheckImage(ctx, upload.BlobURL)
	if err != nil {
		slog.Warn("nsfw check failed, approving upload", "upload_id", upload.ID, "error", err)
		if err := h.store.SetUploadModeration(ctx, upload.ID, models.UploadStatusApproved, nil); err != nil {
			slog.Error("set upload moderation", "upload_id", upload.ID, "error", err)
		}
		return
	}

	status := models.UploadStatusApproved
	if result.Flagged {
		status = models.UploadStatusRejected
	}
	if err := h.store.SetUploadModeration(ctx, upload.ID, status, &result.Score); err != nil {
		slog.Error("set upload moderation", "upload_id", upload.ID, "error", err)
		return
	}

	if result.Flagged {
		// Rejected images are never served; remove the blobs right away
		// instead of waiting for retention.
		h.blobs.Delete(ctx, upload.BlobURL)
		if upload.ThumbnailURL != nil {
			h.blobs.Delete(ctx, *upload.ThumbnailURL)
		}
		slog.Info("upload rejected by moderation", "upload_id", upload.ID, "score", result.Score)
	}
}

// Get handles GET /api/v1/uploads/{uploadID}.
func (h *Uploads) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid upload id", nil)
		return
	}

	upload, err := h.store.GetUpload(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound,
				"NOT_FOUND", "Upload not found", nil)
			return
		}
		slog.Error("get upload", "upload_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	response.JSON(w, upload)
}
