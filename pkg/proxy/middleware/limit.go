package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ConcurrencyLimit bounds the number of requests served at once. Requests
// beyond the limit wait for a slot; if their context ends first they get
// 503. A limit of zero or less disables the middleware.
func ConcurrencyLimit(limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		slots := make(chan struct{}, limit)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
			case <-r.Context().Done():
				slog.WarnContext(r.Context(), "request cancelled waiting for a slot",
					"component", "http",
					"path", r.URL.Path,
					"limit", limit,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
