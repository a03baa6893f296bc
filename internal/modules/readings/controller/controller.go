package controller

import (
	"context"
	"net/http"

	"telemetry-server/internal/modules/readings/repository"
	"telemetry-server/internal/modules/readings/types"
)

// Notifier is told about every stored reading. It must not block the request.
type Notifier interface {
	ReadingRecorded(ctx context.Context, r types.Reading)
}

// IngestRecorder counts ingestion outcomes.
type IngestRecorder interface {
	ReadingIngested()
	IngestRejected(reason string)
}

type ReadingsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type readingsControllerImpl struct {
	repository repository.ReadingsRepository
	notifier   Notifier
	recorder   IngestRecorder
}

func NewReadingsController(repository repository.ReadingsRepository, notifier Notifier, recorder IngestRecorder) ReadingsController {
	return &readingsControllerImpl{
		repository: repository,
		notifier:   notifier,
		recorder:   recorder,
	}
}

func (c *readingsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sensor/data", c.handleIngest)
	mux.HandleFunc("GET /api/readings", c.handleListRecent)
	mux.HandleFunc("GET /api/readings/latest", c.handleLatestBySensor)
	mux.HandleFunc("GET /api/readings/{id}", c.handleGetReading)
	mux.HandleFunc("GET /api/stats", c.handleStats)
}
