package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/missmatchapp/missmatch/internal/api/response"
	"github.com/missmatchapp/missmatch/internal/tryon"
)

const maxWebhookBytes = 1 << 20

// Webhooks receives provider callbacks on /api/v1/webhooks/{provider}.
// Processing outcomes never leak to the provider: once a payload is
// accepted the response is 200 so the provider stops retrying.
type Webhooks struct {
	svc        *tryon.Service
	fluxSecret string
}

func NewWebhooks(svc *tryon.Service, fluxSecret string) *Webhooks {
	return &Webhooks{svc: svc, fluxSecret: fluxSecret}
}

func (h *Webhooks) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", "Could not read request body", nil)
		return
	}

	if provider == "flux" {
		if !tryon.VerifyFluxSignature(h.fluxSecret, body, r.Header.Get("X-Flux-Signature")) {
			slog.Warn("webhook signature mismatch", "provider", provider)
			response.Error(w, http.StatusUnauthorized,
				"INVALID_SIGNATURE", "Webhook signature verification failed", nil)
			return
		}
	}

	ev, err := tryon.ParseWebhook(provider, body)
	if err != nil {
		switch {
		case errors.Is(err, tryon.ErrUnknownWebhookProvider):
			response.Error(w, http.StatusNotFound,
				"UNKNOWN_PROVIDER", "No such webhook provider", nil)
		default:
			response.Error(w, http.StatusBadRequest,
				"INVALID_PAYLOAD", "Malformed webhook payload", nil)
		}
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), ev); err != nil {
		// Logged and acknowledged anyway; a retry of the same payload
		// cannot do better than the poll fallback will.
		slog.Error("handle webhook", "provider", provider, "error", err)
	}

	response.JSON(w, map[string]bool{"received": true})
}
