// Package api wires handlers, middleware and routes into the HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/missmatchapp/missmatch/internal/api/middleware"
	"github.com/missmatchapp/missmatch/internal/api/response"
)

// Rate limit windows per route group. Generation is the expensive call, so
// its window is the tightest.
const (
	apiLimit  = 100
	apiWindow = time.Minute

	uploadLimit  = 10
	uploadWindow = 15 * time.Minute

	generateLimit  = 5
	generateWindow = 5 * time.Minute
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateUpload http.HandlerFunc
	GetUpload    http.HandlerFunc

	ListGarments      http.HandlerFunc
	GetGarment        http.HandlerFunc
	CreateGarment     http.HandlerFunc
	DeactivateGarment http.HandlerFunc

	CreateTryOn http.HandlerFunc
	GetTryOn    http.HandlerFunc

	WebhookHandler http.HandlerFunc

	CleanupHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Provider callbacks authenticate by signature, not rate limit.
	r.Post("/api/v1/webhooks/{provider}", orNotImplemented(deps.WebhookHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit("api", apiLimit, apiWindow))

		r.Get("/api/v1/garments", orNotImplemented(deps.ListGarments))
		r.Get("/api/v1/garments/{garmentID}", orNotImplemented(deps.GetGarment))

		r.Get("/api/v1/uploads/{uploadID}", orNotImplemented(deps.GetUpload))
		r.Get("/api/v1/tryon/{jobID}", orNotImplemented(deps.GetTryOn))

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit("upload", uploadLimit, uploadWindow))
			r.Post("/api/v1/uploads", orNotImplemented(deps.CreateUpload))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit("generate", generateLimit, generateWindow))
			r.Post("/api/v1/tryon", orNotImplemented(deps.CreateTryOn))
		})
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Authenticate)

		r.Post("/api/v1/admin/garments", orNotImplemented(deps.CreateGarment))
		r.Delete("/api/v1/admin/garments/{garmentID}", orNotImplemented(deps.DeactivateGarment))
		r.Post("/api/v1/admin/cleanup", orNotImplemented(deps.CleanupHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
