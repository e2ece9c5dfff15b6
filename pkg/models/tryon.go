// Package models contains shared data models used across the Miss Match codebase.
package models

import (
	"context"
	"fmt"
	"net/url"
)

// Driver status values. Every provider-specific status string must map into
// one of these four before it reaches the job state machine.
const (
	DriverStatusQueued     = "queued"
	DriverStatusProcessing = "processing"
	DriverStatusCompleted  = "completed"
	DriverStatusFailed     = "failed"
)

// TryOnRequest is the input to a driver's Generate call.
type TryOnRequest struct {
	PersonImageURL  string
	GarmentImageURL string
	SessionID       string

	// Garment metadata for prompt-based drivers. Edit instructions are
	// derived from these fields via fixed templates, never from user text.
	GarmentName     string
	GarmentCategory string

	Options TryOnOptions
}

// TryOnOptions tunes a generation. All fields are optional; drivers apply
// their own defaults.
type TryOnOptions struct {
	PreserveBackground *bool   `json:"preserve_background,omitempty"`
	Quality            string  `json:"quality,omitempty"` // standard | high | ultra
	Style              string  `json:"style,omitempty"`   // realistic | artistic
	FitAdjustment      float64 `json:"fit_adjustment,omitempty"` // -1 loose .. 1 tight
}

// TryOnResponse is what a driver reports from Generate or GetStatus.
// Generate carries provider rejections in Status/Error rather than a Go
// error; GetStatus returns transport failures as Go errors so callers can
// treat them as transient.
type TryOnResponse struct {
	JobID             string
	Status            string
	ResultURL         string
	ThumbnailURL      string
	ProcessingSeconds float64
	Error             string
}

// ValidationResult is the outcome of a driver's structural precondition check.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// Validate checks the structural preconditions shared by every driver.
// Drivers may layer provider-specific checks on top.
func (r TryOnRequest) Validate() ValidationResult {
	var errs []string
	if !validHTTPURL(r.PersonImageURL) {
		errs = append(errs, "person image URL must be a valid http(s) URL")
	}
	if !validHTTPURL(r.GarmentImageURL) {
		errs = append(errs, "garment image URL must be a valid http(s) URL")
	}
	if r.SessionID == "" {
		errs = append(errs, "session ID is required")
	}
	if r.Options.FitAdjustment < -1 || r.Options.FitAdjustment > 1 {
		errs = append(errs, fmt.Sprintf("fit adjustment %.2f out of range [-1, 1]", r.Options.FitAdjustment))
	}
	switch r.Options.Quality {
	case "", "standard", "high", "ultra":
	default:
		errs = append(errs, fmt.Sprintf("unknown quality %q", r.Options.Quality))
	}
	switch r.Options.Style {
	case "", "realistic", "artistic":
	default:
		errs = append(errs, fmt.Sprintf("unknown style %q", r.Options.Style))
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func validHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TryOnDriver is the uniform contract every provider adapter implements.
// Callers resolve drivers through the registry, never a concrete type.
type TryOnDriver interface {
	// Name returns the driver identifier (e.g. "flux", "nanobanana").
	Name() string
	// Generate submits a try-on request to the provider.
	Generate(ctx context.Context, req TryOnRequest) (TryOnResponse, error)
	// GetStatus polls the provider for the current state of an accepted job.
	GetStatus(ctx context.Context, externalJobID string) (TryOnResponse, error)
	// ValidateRequest checks req before any network call is made.
	ValidateRequest(req TryOnRequest) ValidationResult
	// EstimatedProcessingTime is an informational estimate in seconds,
	// surfaced to the client immediately after submission.
	EstimatedProcessingTime() int
}

// Canceler is an optional driver capability. Cancellation is best-effort.
type Canceler interface {
	Cancel(ctx context.Context, externalJobID string) bool
}
