package tryon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/missmatchapp/missmatch/pkg/models"
)

// Webhook outcome values after provider payloads are normalized.
const (
	OutcomeCompleted    = "completed"
	OutcomeFailed       = "failed"
	OutcomeIntermediate = "intermediate"
)

// WebhookEvent is the uniform shape every provider callback is normalized
// into before it touches the job state machine.
type WebhookEvent struct {
	ExternalJobID     string
	Outcome           string
	ResultURL         string
	ThumbnailURL      string
	ProcessingSeconds float64
	ErrorText         string
}

// ParseWebhook normalizes a raw provider callback body. The provider name
// comes from the URL path, never from the payload.
func ParseWebhook(provider string, body []byte) (WebhookEvent, error) {
	switch strings.ToLower(provider) {
	case "flux":
		return parseFluxWebhook(body)
	case "nanobanana":
		return parseNanoBananaWebhook(body)
	default:
		return WebhookEvent{}, fmt.Errorf("%w: %q", ErrUnknownWebhookProvider, provider)
	}
}

type fluxWebhookPayload struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	ResultURL      string  `json:"result_url"`
	ThumbnailURL   string  `json:"thumbnail_url"`
	ProcessingTime float64 `json:"processing_time"`
	Error          string  `json:"error"`
}

func parseFluxWebhook(body []byte) (WebhookEvent, error) {
	var p fluxWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrBadWebhookPayload, err)
	}
	if p.JobID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing job_id", ErrBadWebhookPayload)
	}
	ev := WebhookEvent{
		ExternalJobID:     p.JobID,
		ResultURL:         p.ResultURL,
		ThumbnailURL:      p.ThumbnailURL,
		ProcessingSeconds: p.ProcessingTime,
		ErrorText:         p.Error,
	}
	switch strings.ToLower(p.Status) {
	case models.DriverStatusCompleted:
		ev.Outcome = OutcomeCompleted
	case models.DriverStatusFailed:
		ev.Outcome = OutcomeFailed
	default:
		ev.Outcome = OutcomeIntermediate
	}
	return ev, nil
}

type nanoBananaWebhookPayload struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

func parseNanoBananaWebhook(body []byte) (WebhookEvent, error) {
	var p nanoBananaWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrBadWebhookPayload, err)
	}
	if p.ID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing id", ErrBadWebhookPayload)
	}
	ev := WebhookEvent{
		ExternalJobID:     p.ID,
		ResultURL:         firstOutputURL(p.Output),
		ProcessingSeconds: p.Metrics.PredictTime,
		ErrorText:         p.Error,
	}
	switch strings.ToLower(p.Status) {
	case "succeeded", models.DriverStatusCompleted:
		ev.Outcome = OutcomeCompleted
	case models.DriverStatusFailed, "canceled":
		ev.Outcome = OutcomeFailed
	default:
		ev.Outcome = OutcomeIntermediate
	}
	return ev, nil
}

// firstOutputURL handles the provider's output field being either a single
// URL string or an array of URL strings.
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

// VerifyFluxSignature checks the HMAC-SHA256 signature header against the
// raw request body. An empty secret disables verification.
func VerifyFluxSignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}
