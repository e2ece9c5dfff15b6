// Package mock provides a synchronous try-on driver for local development
// and tests. It completes instantly and echoes the person image back as the
// result, so the full job lifecycle can run with no provider account.
package mock

import (
	"context"

	"github.com/google/uuid"

	"github.com/missmatchapp/missmatch/pkg/models"
)

const driverName = "mock"

// Driver is the mock provider. The function fields let tests script any
// provider behavior; zero values give the instant-success default.
type Driver struct {
	GenerateFunc  func(ctx context.Context, req models.TryOnRequest) (models.TryOnResponse, error)
	GetStatusFunc func(ctx context.Context, externalJobID string) (models.TryOnResponse, error)
	ValidateFunc  func(req models.TryOnRequest) models.ValidationResult
}

func NewDriver() *Driver { return &Driver{} }

func (d *Driver) Name() string { return driverName }

func (d *Driver) EstimatedProcessingTime() int { return 1 }

func (d *Driver) Generate(ctx context.Context, req models.TryOnRequest) (models.TryOnResponse, error) {
	if d.GenerateFunc != nil {
		return d.GenerateFunc(ctx, req)
	}
	return models.TryOnResponse{
		JobID:             "mock-" + uuid.NewString(),
		Status:            models.DriverStatusCompleted,
		ResultURL:         req.PersonImageURL,
		ProcessingSeconds: 0.1,
	}, nil
}

func (d *Driver) GetStatus(ctx context.Context, externalJobID string) (models.TryOnResponse, error) {
	if d.GetStatusFunc != nil {
		return d.GetStatusFunc(ctx, externalJobID)
	}
	return models.TryOnResponse{
		JobID:  externalJobID,
		Status: models.DriverStatusCompleted,
	}, nil
}

func (d *Driver) ValidateRequest(req models.TryOnRequest) models.ValidationResult {
	if d.ValidateFunc != nil {
		return d.ValidateFunc(req)
	}
	return req.Validate()
}
