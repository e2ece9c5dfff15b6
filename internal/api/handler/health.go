package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/cache"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/internal/tryon"
)

const healthCheckTimeout = 3 * time.Second

type healthStatus struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Drivers      []string          `json:"drivers"`
}

// NewHealthHandler reports dependency reachability and the registered
// drivers. Any failing dependency degrades the overall status and the
// response code. Health is the one endpoint outside the data envelope;
// load balancers read it directly.
func NewHealthHandler(st store.Store, c cache.Cache, blobs blob.Store, drivers *tryon.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		deps := map[string]string{
			"database": pingStatus(st.Ping(ctx)),
			"redis":    pingStatus(c.Ping(ctx)),
			"blob":     pingStatus(blobs.Ping(ctx)),
		}

		overall := "ok"
		code := http.StatusOK
		for _, status := range deps {
			if status != "ok" {
				overall = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(healthStatus{
			Status:       overall,
			Dependencies: deps,
			Drivers:      drivers.SupportedDrivers(),
		})
	}
}

func pingStatus(err error) string {
	if err != nil {
		return "unreachable"
	}
	return "ok"
}
