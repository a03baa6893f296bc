package httpapi

import (
	"net/http"
	"time"
)

// NewMux registers the process-level routes. Feature modules add their own
// routes to the returned mux; the static catch-all only sees what they do not claim.
func NewMux(staticDir string, startedAt time.Time, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, startedAt)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	mux.Handle("GET /", newStaticHandler(staticDir))
	return mux
}
