package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/missmatchapp/missmatch/internal/api/response"
)

// Recovery converts handler panics into a 500 error envelope instead of
// killing the connection. http.ErrAbortHandler is re-raised so the server's
// own abort path still works.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
