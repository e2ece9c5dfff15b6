package handler

import (
	"net/http"

	"github.com/missmatchapp/missmatch/internal/api/response"
	"github.com/missmatchapp/missmatch/internal/cleanup"
)

// Cleanup exposes the retention sweep to admins. The scheduled sweep calls
// the same Run; this endpoint just forces one and returns the report.
type Cleanup struct {
	sweeper *cleanup.Sweeper
}

func NewCleanup(sweeper *cleanup.Sweeper) *Cleanup {
	return &Cleanup{sweeper: sweeper}
}

func (h *Cleanup) Run(w http.ResponseWriter, r *http.Request) {
	report := h.sweeper.Run(r.Context())
	response.JSON(w, report)
}
