package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/missmatchapp/missmatch/internal/api"
	mw "github.com/missmatchapp/missmatch/internal/api/middleware"
)

// --- Mock Cache ---

type noopCache struct{}

func (noopCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (noopCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (noopCache) Delete(_ context.Context, _ string) error                         { return nil }
func (noopCache) Ping(_ context.Context) error                                     { return nil }
func (noopCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func testDeps() api.Dependencies {
	marker := func(status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}
	}
	return api.Dependencies{
		AdminAuth:      mw.NewAdminAuth(""),
		RateLimit:      mw.NewRateLimit(noopCache{}),
		HealthHandler:  marker(http.StatusOK),
		CreateUpload:   marker(http.StatusCreated),
		GetUpload:      marker(http.StatusOK),
		ListGarments:   marker(http.StatusOK),
		GetGarment:     marker(http.StatusOK),
		CreateTryOn:    marker(http.StatusAccepted),
		GetTryOn:       marker(http.StatusOK),
		WebhookHandler: marker(http.StatusOK),
	}
}

func TestRouter_Routes(t *testing.T) {
	router := api.NewRouter(testDeps())

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/api/v1/health", http.StatusOK},
		{"list garments", http.MethodGet, "/api/v1/garments", http.StatusOK},
		{"get garment", http.MethodGet, "/api/v1/garments/abc", http.StatusOK},
		{"create upload", http.MethodPost, "/api/v1/uploads", http.StatusCreated},
		{"get upload", http.MethodGet, "/api/v1/uploads/abc", http.StatusOK},
		{"create tryon", http.MethodPost, "/api/v1/tryon", http.StatusAccepted},
		{"get tryon", http.MethodGet, "/api/v1/tryon/abc", http.StatusOK},
		{"webhook", http.MethodPost, "/api/v1/webhooks/flux", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/v1/garments", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_MissingHandlerReturns501(t *testing.T) {
	deps := testDeps()
	deps.ListGarments = nil
	router := api.NewRouter(deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/garments", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_AdminHiddenWithoutToken(t *testing.T) {
	router := api.NewRouter(testDeps())

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/admin/garments"},
		{http.MethodDelete, "/api/v1/admin/garments/abc"},
		{http.MethodPost, "/api/v1/admin/cleanup"},
	}

	for _, p := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", p.method, p.path)
	}
}
