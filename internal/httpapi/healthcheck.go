package httpapi

import (
	"net/http"
	"time"

	"telemetry-server/internal/utils"
)

type healthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

type healthchecker interface {
	handleHealth(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	startedAt time.Time
	now       func() time.Time
}

func NewHealthchecker(startedAt time.Time) healthchecker {
	return &healthcheckerImpl{startedAt: startedAt, now: time.Now}
}

// handleHealth reports liveness only; it never touches storage.
func (h *healthcheckerImpl) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: h.now().Sub(h.startedAt).Seconds(),
	})
}

func registerHealthcheck(mux *http.ServeMux, startedAt time.Time) {
	healthchecker := NewHealthchecker(startedAt)
	mux.HandleFunc("GET /api/health", healthchecker.handleHealth)
}
