package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/missmatchapp/missmatch/pkg/models"
)

func validRequest() models.TryOnRequest {
	return models.TryOnRequest{
		PersonImageURL:  "https://cdn.test/uploads/person.jpg",
		GarmentImageURL: "https://cdn.test/garments/blazer.jpg",
		SessionID:       "sess-1",
		GarmentName:     "navy blazer",
		GarmentCategory: models.GarmentCategoryTop,
	}
}

func TestTryOnRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.TryOnRequest)
		wantErr string
	}{
		{"valid", func(r *models.TryOnRequest) {}, ""},
		{"missing person image", func(r *models.TryOnRequest) { r.PersonImageURL = "" }, "person image"},
		{"relative garment image", func(r *models.TryOnRequest) { r.GarmentImageURL = "/garments/blazer.jpg" }, "garment image"},
		{"non-http scheme", func(r *models.TryOnRequest) { r.PersonImageURL = "ftp://cdn.test/x.jpg" }, "person image"},
		{"missing session", func(r *models.TryOnRequest) { r.SessionID = "" }, "session ID"},
		{"fit too tight", func(r *models.TryOnRequest) { r.Options.FitAdjustment = 1.5 }, "fit adjustment"},
		{"fit too loose", func(r *models.TryOnRequest) { r.Options.FitAdjustment = -2 }, "fit adjustment"},
		{"unknown quality", func(r *models.TryOnRequest) { r.Options.Quality = "potato" }, "quality"},
		{"unknown style", func(r *models.TryOnRequest) { r.Options.Style = "cubist" }, "style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			result := req.Validate()
			if tt.wantErr == "" {
				assert.True(t, result.IsValid)
				assert.Empty(t, result.Errors)
				return
			}
			assert.False(t, result.IsValid)
			joined := ""
			for _, e := range result.Errors {
				joined += e + "; "
			}
			assert.Contains(t, joined, tt.wantErr)
		})
	}
}

func TestTryOnRequest_ValidateCollectsAllErrors(t *testing.T) {
	result := models.TryOnRequest{}.Validate()
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 3)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, models.JobStatusTerminal(models.JobStatusQueued))
	assert.False(t, models.JobStatusTerminal(models.JobStatusProcessing))
	assert.True(t, models.JobStatusTerminal(models.JobStatusCompleted))
	assert.True(t, models.JobStatusTerminal(models.JobStatusFailed))
	assert.False(t, models.JobStatusTerminal("queued"))
}

func TestValidGarmentCategory(t *testing.T) {
	for _, c := range []string{"TOP", "BOTTOM", "DRESS", "SET", "OTHER"} {
		assert.True(t, models.ValidGarmentCategory(c), c)
	}
	assert.False(t, models.ValidGarmentCategory("top"))
	assert.False(t, models.ValidGarmentCategory("HAT"))
	assert.False(t, models.ValidGarmentCategory(""))
}
