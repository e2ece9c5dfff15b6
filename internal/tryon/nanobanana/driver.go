// Package nanobanana adapts the NanoBanana prediction API to the driver
// contract. The provider is prompt-based: the garment edit instruction is
// rendered from fixed templates keyed by category, never from user text.
package nanobanana

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
	driverName = "nanobanana"

	estimatedSeconds = 30

	requestTimeout = 30 * time.Second
)

type Driver struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpc       *http.Client
}

func NewDriver(cfg config.NanoBananaConfig, callbackBase string) (*Driver, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, errors.New("nanobanana base URL and API key are required")
	}
	d := &Driver{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
	if callbackBase != "" {
		d.callbackURL = strings.TrimRight(callbackBase, "/") + "/api/v1/webhooks/nanobanana"
	}
	return d, nil
}

func (d *Driver) Name() string { return driverName }

func (d *Driver) EstimatedProcessingTime() int { return estimatedSeconds }

func (d *Driver) ValidateRequest(req models.TryOnRequest) models.ValidationResult {
	result := req.Validate()
	if req.GarmentName == "" {
		result.IsValid = false
		result.Errors = append(result.Errors, "garment name is required for prompt rendering")
	}
	return result
}

type predictionInput struct {
	PersonImageURL     string  `json:"person_image_url"`
	GarmentImageURL    string  `json:"garment_image_url"`
	PreserveBackground bool    `json:"preserve_background"`
	FitAdjustment      float64 `json:"fit_adjustment"`
	Prompt             string  `json:"prompt"`
}

type predictionRequest struct {
	Input               predictionInput `json:"input"`
	Webhook             string          `json:"webhook,omitempty"`
	WebhookEventsFilter []string        `json:"webhook_events_filter,omitempty"`
}

type prediction struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

func (d *Driver) Generate(ctx context.Context, req models.TryOnRequest) (models.TryOnResponse, error) {
	preserve := true
	if req.Options.PreserveBackground != nil {
		preserve = *req.Options.PreserveBackground
	}

	body := predictionRequest{
		Input: predictionInput{
			PersonImageURL:     req.PersonImageURL,
			GarmentImageURL:    req.GarmentImageURL,
			PreserveBackground: preserve,
			FitAdjustment:      req.Options.FitAdjustment,
			Prompt:             renderPrompt(req.GarmentCategory, req.GarmentName),
		},
	}
	if d.callbackURL != "" {
		body.Webhook = d.callbackURL
		body.WebhookEventsFilter = []string{"completed"}
	}

	var pred prediction
	if err := d.do(ctx, http.MethodPost, "/predictions", body, &pred); err != nil {
		return models.TryOnResponse{Status: models.DriverStatusFailed, Error: err.Error()}, nil
	}

	return d.toResponse(pred), nil
}

func (d *Driver) GetStatus(ctx context.Context, externalJobID string) (models.TryOnResponse, error) {
	var pred prediction
	if err := d.do(ctx, http.MethodGet, "/predictions/"+externalJobID, nil, &pred); err != nil {
		return models.TryOnResponse{}, err
	}
	return d.toResponse(pred), nil
}

func (d *Driver) Cancel(ctx context.Context, externalJobID string) bool {
	var pred prediction
	err := d.do(ctx, http.MethodPost, "/predictions/"+externalJobID+"/cancel", nil, &pred)
	return err == nil
}

func (d *Driver) toResponse(pred prediction) models.TryOnResponse {
	return models.TryOnResponse{
		JobID:             pred.ID,
		Status:            mapStatus(pred.Status),
		ResultURL:         firstOutputURL(pred.Output),
		ProcessingSeconds: pred.Metrics.PredictTime,
		Error:             pred.Error,
	}
}

func (d *Driver) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+d.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("nanobanana request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("nanobanana returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapStatus(providerStatus string) string {
	switch strings.ToLower(providerStatus) {
	case "succeeded", "completed":
		return models.DriverStatusCompleted
	case "failed", "canceled":
		return models.DriverStatusFailed
	case "processing":
		return models.DriverStatusProcessing
	default:
		// starting and any future state keep the job in flight.
		return models.DriverStatusQueued
	}
}

// firstOutputURL handles output being a single URL or an array of URLs.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// renderPrompt builds the edit instruction for a garment. Every template
// pins pose, face, hair, body shape and background so the model changes
// nothing but the clothing.
func renderPrompt(category, garmentName string) string {
	const keep = "Keep the exact same pose, face, hair, body shape, and background. The result must look like a natural photograph."

	switch category {
	case models.GarmentCategoryTop:
		return fmt.Sprintf("Change only the person's top to a %s. %s", garmentName, keep)
	case models.GarmentCategoryBottom:
		return fmt.Sprintf("Change only the person's pants or skirt to %s. %s", garmentName, keep)
	case models.GarmentCategoryDress:
		return fmt.Sprintf("Replace the person's outfit with a %s dress. %s", garmentName, keep)
	case models.GarmentCategorySet:
		return fmt.Sprintf("Replace the person's full outfit with the %s set. %s", garmentName, keep)
	default:
		return fmt.Sprintf("Dress the person in the %s. %s", garmentName, keep)
	}
}
