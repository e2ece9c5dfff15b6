package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/missmatchapp/missmatch/internal/api/response"
	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/cache"
	"github.com/missmatchapp/missmatch/internal/imaging"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/pkg/models"
)

const (
	garmentListTTL = 5 * time.Minute

	garmentVersionKey = "garments:version"

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Garments serves the catalog endpoints. List responses are cached in Redis
// keyed by a catalog version that admin mutations bump, so a stale page
// never outlives a change by more than one version lookup.
type Garments struct {
	store  store.Store
	cache  cache.Cache
	blobs  blob.Store
	images imaging.Transformer
}

func NewGarments(st store.Store, c cache.Cache, blobs blob.Store, images imaging.Transformer) *Garments {
	return &Garments{store: st, cache: c, blobs: blobs, images: images}
}

type garmentListPayload struct {
	Garments []*models.Garment       `json:"garments"`
	Meta     response.PaginationMeta `json:"meta"`
}

// List handles GET /api/v1/garments.
func (h *Garments) List(w http.ResponseWriter, r *http.Request) {
	filter := store.GarmentFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", defaultPageLimit),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > maxPageLimit {
		filter.Limit = defaultPageLimit
	}
	if filter.Category != "" && !models.ValidGarmentCategory(filter.Category) {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", fmt.Sprintf("unknown category %q", filter.Category), nil)
		return
	}

	key := h.listCacheKey(r.Context(), filter)
	if cached, ok, err := h.cache.Get(r.Context(), key); err == nil && ok {
		var payload garmentListPayload
		if json.Unmarshal(cached, &payload) == nil {
			response.Collection(w, payload.Garments, payload.Meta)
			return
		}
	}

	garments, total, err := h.store.ListGarments(r.Context(), filter)
	if err != nil {
		slog.Error("list garments", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	meta := response.PaginationMeta{
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   total,
		HasNext: filter.Page*filter.Limit < total,
	}

	if raw, err := json.Marshal(garmentListPayload{Garments: garments, Meta: meta}); err == nil {
		if err := h.cache.Set(r.Context(), key, raw, garmentListTTL); err != nil {
			slog.Warn("cache garment list", "error", err)
		}
	}

	response.Collection(w, garments, meta)
}

// Get handles GET /api/v1/garments/{garmentID}.
func (h *Garments) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "garmentID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid garment id", nil)
		return
	}

	garment, err := h.store.GetGarment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound,
				"NOT_FOUND", "Garment not found", nil)
			return
		}
		slog.Error("get garment", "garment_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	response.JSON(w, garment)
}

type createGarmentRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Category     string  `json:"category"`
	ImageURL     string  `json:"image_url"`
	Brand        *string `json:"brand"`
	Color        *string `json:"color"`
	DisplayOrder int     `json:"display_order"`
}

// Create handles POST /api/v1/admin/garments. The source image is
// republished into our own storage so the catalog never depends on an
// external host staying up.
func (h *Garments) Create(w http.ResponseWriter, r *http.Request) {
	var req createGarmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "name is required", nil)
		return
	}
	if !models.ValidGarmentCategory(req.Category) {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", fmt.Sprintf("unknown category %q", req.Category), nil)
		return
	}
	if req.ImageURL == "" {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "image_url is required", nil)
		return
	}

	stored, err := h.blobs.PutFromURL(r.Context(), req.ImageURL, blob.FolderGarments)
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity,
			"IMAGE_FETCH_FAILED", "Could not fetch garment image: "+err.Error(), nil)
		return
	}

	var thumbURL *string
	if thumb, err := h.images.ThumbnailFromURL(r.Context(), stored.URL, imaging.ThumbnailSize); err == nil {
		if t, err := h.blobs.Put(r.Context(), thumb, "image/jpeg", blob.FolderThumbnails); err == nil {
			thumbURL = &t.URL
		}
	}

	garment := &models.Garment{
		ID:           uuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		ImageURL:     stored.URL,
		ThumbnailURL: thumbURL,
		Brand:        req.Brand,
		Color:        req.Color,
		IsActive:     true,
		DisplayOrder: req.DisplayOrder,
	}
	if err := h.store.CreateGarment(r.Context(), garment); err != nil {
		h.blobs.Delete(r.Context(), stored.URL)
		if thumbURL != nil {
			h.blobs.Delete(r.Context(), *thumbURL)
		}
		slog.Error("create garment", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to create garment", nil)
		return
	}

	h.bumpVersion(r.Context())
	response.Created(w, garment)
}

// Deactivate handles DELETE /api/v1/admin/garments/{garmentID}. Garments
// are never hard-deleted while jobs may reference them.
func (h *Garments) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "garmentID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Invalid garment id", nil)
		return
	}

	if err := h.store.DeactivateGarment(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound,
				"NOT_FOUND", "Garment not found", nil)
			return
		}
		slog.Error("deactivate garment", "garment_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	h.bumpVersion(r.Context())
	response.JSON(w, map[string]any{"deactivated": true})
}

func (h *Garments) listCacheKey(ctx context.Context, filter store.GarmentFilter) string {
	version := "0"
	if v, ok, err := h.cache.Get(ctx, garmentVersionKey); err == nil && ok {
		version = string(v)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d",
		version, filter.Category, filter.Search, filter.Page, filter.Limit)))
	return cache.GarmentListKey(hex.EncodeToString(sum[:8]))
}

func (h *Garments) bumpVersion(ctx context.Context) {
	v := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := h.cache.Set(ctx, garmentVersionKey, []byte(v), 0); err != nil {
		slog.Warn("bump garment catalog version", "error", err)
	}
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal
	}
	return n
}
