package nanobanana_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missmatchapp/missmatch/internal/config"
	"github.com/missmatchapp/missmatch/internal/tryon/nanobanana"
	"github.com/missmatchapp/missmatch/pkg/models"
)

func testRequest(category string) models.TryOnRequest {
	return models.TryOnRequest{
		PersonImageURL:  "https://cdn.test/uploads/person.jpg",
		GarmentImageURL: "https://cdn.test/garments/item.jpg",
		SessionID:       "session-1",
		GarmentName:     "red summer dress",
		GarmentCategory: category,
	}
}

func newTestDriver(t *testing.T, handler http.Handler) *nanobanana.Driver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := nanobanana.NewDriver(config.NanoBananaConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, "https://api.missmatch.test")
	require.NoError(t, err)
	return d
}

func TestNewDriver_RequiresCredentials(t *testing.T) {
	_, err := nanobanana.NewDriver(config.NanoBananaConfig{BaseURL: "https://nb.example"}, "")
	assert.Error(t, err)
}

func TestGenerate_SubmitsPrediction(t *testing.T) {
	var got map[string]any
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predictions", r.URL.Path)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "nb-xyz",
			"status": "starting",
		})
	}))

	resp, err := d.Generate(context.Background(), testRequest(models.GarmentCategoryDress))
	require.NoError(t, err)
	assert.Equal(t, "nb-xyz", resp.JobID)
	assert.Equal(t, models.DriverStatusQueued, resp.Status)

	input, ok := got["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/uploads/person.jpg", input["person_image_url"])
	assert.Equal(t, "https://cdn.test/garments/item.jpg", input["garment_image_url"])
	assert.Equal(t, "https://api.missmatch.test/api/v1/webhooks/nanobanana", got["webhook"])

	prompt, _ := input["prompt"].(string)
	assert.Contains(t, prompt, "red summer dress")
	assert.Contains(t, prompt, "Keep the exact same pose")
}

func TestGenerate_PromptVariesByCategory(t *testing.T) {
	var prompts []string
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input struct {
				Prompt string `json:"prompt"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Input.Prompt)
		json.NewEncoder(w).Encode(map[string]any{"id": "nb-1", "status": "starting"})
	}))

	categories := []string{
		models.GarmentCategoryTop,
		models.GarmentCategoryBottom,
		models.GarmentCategoryDress,
		models.GarmentCategorySet,
		models.GarmentCategoryOther,
	}
	for _, category := range categories {
		_, err := d.Generate(context.Background(), testRequest(category))
		require.NoError(t, err)
	}

	require.Len(t, prompts, len(categories))
	seen := make(map[string]bool)
	for _, prompt := range prompts {
		assert.Contains(t, prompt, "red summer dress")
		assert.False(t, seen[prompt], "each category must render a distinct template")
		seen[prompt] = true
	}
}

func TestGetStatus_SucceededWithArrayOutput(t *testing.T) {
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions/nb-xyz", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "nb-xyz",
			"status":  "succeeded",
			"output":  []string{"https://nb.example/out1.jpg", "https://nb.example/out2.jpg"},
			"metrics": map[string]any{"predict_time": 9.6},
		})
	}))

	resp, err := d.GetStatus(context.Background(), "nb-xyz")
	require.NoError(t, err)
	assert.Equal(t, models.DriverStatusCompleted, resp.Status)
	assert.Equal(t, "https://nb.example/out1.jpg", resp.ResultURL)
	assert.Equal(t, 9.6, resp.ProcessingSeconds)
}

func TestGetStatus_SucceededWithStringOutput(t *testing.T) {
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "nb-xyz",
			"status": "succeeded",
			"output": "https://nb.example/out.jpg",
		})
	}))

	resp, err := d.GetStatus(context.Background(), "nb-xyz")
	require.NoError(t, err)
	assert.Equal(t, "https://nb.example/out.jpg", resp.ResultURL)
}

func TestGetStatus_MapsProviderStates(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"starting", models.DriverStatusQueued},
		{"processing", models.DriverStatusProcessing},
		{"succeeded", models.DriverStatusCompleted},
		{"failed", models.DriverStatusFailed},
		{"canceled", models.DriverStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"id": "nb-1", "status": tt.provider})
			}))

			resp, err := d.GetStatus(context.Background(), "nb-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestValidateRequest_RequiresGarmentName(t *testing.T) {
	d, err := nanobanana.NewDriver(config.NanoBananaConfig{BaseURL: "https://nb.example", APIKey: "k"}, "")
	require.NoError(t, err)

	req := testRequest(models.GarmentCategoryTop)
	req.GarmentName = ""
	result := d.ValidateRequest(req)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.Contains(result.Errors[0], "garment name"))
}
