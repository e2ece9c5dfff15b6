// Package flux adapts the Flux try-on API to the driver contract. Flux is
// webhook-first: Generate returns a provider job id and the result arrives
// on the /webhooks/flux callback, with status polling as the fallback.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/missmatchapp/missmatch/internal/config"
	"github.com/missmatchapp/missmatch/pkg/models"
)

const (
	driverName = "flux"

	// estimatedSeconds is surfaced to the client right after submission.
	estimatedSeconds = 45

	requestTimeout = 30 * time.Second
)

type Driver struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpc       *http.Client
}

// NewDriver fails fast when credentials are missing so a misconfigured
// deployment surfaces at registry resolution, not mid-job.
func NewDriver(cfg config.FluxConfig, callbackBase string) (*Driver, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, errors.New("flux base URL and API key are required")
	}
	d := &Driver{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
	if callbackBase != "" {
		d.callbackURL = strings.TrimRight(callbackBase, "/") + "/api/v1/webhooks/flux"
	}
	return d, nil
}

func (d *Driver) Name() string { return driverName }

func (d *Driver) EstimatedProcessingTime() int { return estimatedSeconds }

func (d *Driver) ValidateRequest(req models.TryOnRequest) models.ValidationResult {
	return req.Validate()
}

type generateRequest struct {
	PersonImage        string            `json:"person_image"`
	GarmentImage       string            `json:"garment_image"`
	PreserveBackground bool              `json:"preserve_background"`
	Quality            string            `json:"quality"`
	Style              string            `json:"style"`
	CallbackURL        string            `json:"callback_url,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type generateResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	EstimatedTime int    `json:"estimated_time"`
	Error         string `json:"error"`
}

// Generate submits the try-on. Provider rejections come back in the
// response's Status/Error; only request construction fails as a Go error.
func (d *Driver) Generate(ctx context.Context, req models.TryOnRequest) (models.TryOnResponse, error) {
	preserve := true
	if req.Options.PreserveBackground != nil {
		preserve = *req.Options.PreserveBackground
	}
	quality := req.Options.Quality
	if quality == "" {
		quality = "standard"
	}
	style := req.Options.Style
	if style == "" {
		style = "realistic"
	}

	body := generateRequest{
		PersonImage:        req.PersonImageURL,
		GarmentImage:       req.GarmentImageURL,
		PreserveBackground: preserve,
		Quality:            quality,
		Style:              style,
		CallbackURL:        d.callbackURL,
		Metadata:           map[string]string{"session_id": req.SessionID},
	}

	var resp generateResponse
	if err := d.post(ctx, "/tryon/generate", body, &resp); err != nil {
		return models.TryOnResponse{Status: models.DriverStatusFailed, Error: err.Error()}, nil
	}

	return models.TryOnResponse{
		JobID:  resp.JobID,
		Status: mapStatus(resp.Status),
		Error:  resp.Error,
	}, nil
}

type statusResponse struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	ResultURL      string  `json:"result_url"`
	ThumbnailURL   string  `json:"thumbnail_url"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error"`
}

// GetStatus polls the provider. Transport failures are returned as Go
// errors; the caller treats them as transient and leaves the job in flight.
func (d *Driver) GetStatus(ctx context.Context, externalJobID string) (models.TryOnResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/tryon/status/"+externalJobID, nil)
	if err != nil {
		return models.TryOnResponse{}, fmt.Errorf("build status request: %w", err)
	}
	d.setHeaders(httpReq)

	httpResp, err := d.httpc.Do(httpReq)
	if err != nil {
		return models.TryOnResponse{}, fmt.Errorf("flux status check: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return models.TryOnResponse{}, fmt.Errorf("flux status check: unexpected status %d", httpResp.StatusCode)
	}

	var resp statusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return models.TryOnResponse{}, fmt.Errorf("decode status response: %w", err)
	}

	return models.TryOnResponse{
		JobID:             resp.JobID,
		Status:            mapStatus(resp.Status),
		ResultURL:         resp.ResultURL,
		ThumbnailURL:      resp.ThumbnailURL,
		ProcessingSeconds: resp.ProcessingTime,
		Error:             resp.Error,
	}, nil
}

// Cancel is best-effort; the provider may have finished already.
func (d *Driver) Cancel(ctx context.Context, externalJobID string) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/tryon/cancel/"+externalJobID, nil)
	if err != nil {
		return false
	}
	d.setHeaders(httpReq)

	httpResp, err := d.httpc.Do(httpReq)
	if err != nil {
		return false
	}
	defer httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}

func (d *Driver) post(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	d.setHeaders(httpReq)

	httpResp, err := d.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("flux request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("flux returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (d *Driver) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// mapStatus folds provider status strings onto the four driver statuses.
// Unknown values map to queued so a new provider state never fails a job.
func mapStatus(providerStatus string) string {
	switch strings.ToLower(providerStatus) {
	case "completed", "succeeded":
		return models.DriverStatusCompleted
	case "failed", "error":
		return models.DriverStatusFailed
	case "processing", "running", "in_progress":
		return models.DriverStatusProcessing
	default:
		return models.DriverStatusQueued
	}
}
