// Package moderation wraps the external NSFW classification service.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/missmatchapp/missmatch/internal/config"
)

var ErrClassifierUnavailable = errors.New("nsfw classifier unavailable")

// Result is the classifier's verdict on one image.
type Result struct {
	Flagged bool
	Score   float64
}

// Classifier scores an image for unsafe content.
type Classifier interface {
	CheckImage(ctx context.Context, imageURL string) (Result, error)
}

// HTTPClassifier implements Classifier against an NSFW-scoring HTTP API.
type HTTPClassifier struct {
	baseURL   string
	apiKey    string
	threshold float64
	client    *http.Client
}

// NewClassifier builds the configured classifier. With no API key configured
// it returns a disabled classifier that approves everything, with a warning
// logged once at startup.
func NewClassifier(cfg config.ModerationConfig) Classifier {
	if cfg.APIKey == "" || cfg.BaseURL == "" {
		slog.Warn("nsfw classifier not configured, all uploads will be approved")
		return disabledClassifier{}
	}
	return &HTTPClassifier{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		threshold: cfg.Threshold,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClassifier) CheckImage(ctx context.Context, imageURL string) (Result, error) {
	payload, err := json.Marshal(map[string]any{
		"image_url":  imageURL,
		"categories": []string{"explicit", "suggestive", "safe"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", ErrClassifierUnavailable, resp.StatusCode)
	}

	var body struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}

	return Result{Flagged: body.Score > c.threshold, Score: body.Score}, nil
}

type disabledClassifier struct{}

func (disabledClassifier) CheckImage(_ context.Context, _ string) (Result, error) {
	return Result{Flagged: false, Score: 0}, nil
}

var _ Classifier = (*HTTPClassifier)(nil)
