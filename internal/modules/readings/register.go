package readings

import (
	"database/sql"
	"net/http"

	"telemetry-server/internal/modules/readings/controller"
	"telemetry-server/internal/modules/readings/repository"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, notifier controller.Notifier, recorder controller.IngestRecorder) {
	readingsRepository := repository.NewRepository(db)
	readingsController := controller.NewReadingsController(readingsRepository, notifier, recorder)
	readingsController.RegisterRoutes(mux)
}
