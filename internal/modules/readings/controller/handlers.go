package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/relvacode/iso8601"

	"telemetry-server/internal/modules/readings/repository"
	"telemetry-server/internal/modules/readings/types"
	"telemetry-server/internal/utils"
)

type ingestResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (c *readingsControllerImpl) handleIngest(w http.ResponseWriter, r *http.Request) {
	in, err := validateIngest(readIngestPayload(w, r))
	if err != nil {
		reason := "missing_fields"
		if errors.Is(err, errTypeNotText) {
			reason = "invalid_type"
		}
		c.rejected(reason)
		slog.Debug("ingest rejected", "reason", reason)
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Stored as sent either way; ordering falls back to the raw text for these.
	if _, err := iso8601.ParseString(in.Timestamp); err != nil {
		slog.Warn("ingest: timestamp is not ISO-8601", "sensor_id", in.SensorID, "timestamp", in.Timestamp)
	}

	id, err := c.repository.InsertReading(r.Context(), in)
	if err != nil {
		utils.WriteInternalError(w, r, err)
		return
	}
	if c.recorder != nil {
		c.recorder.ReadingIngested()
	}
	slog.Debug("reading stored", "id", id, "sensor_id", in.SensorID)

	utils.WriteJSON(w, http.StatusOK, ingestResponse{Message: msgRecorded, ID: id})

	if c.notifier != nil {
		c.notifier.ReadingRecorded(r.Context(), types.Reading{
			ID: id, SensorID: in.SensorID, Type: in.Type, Value: in.Value, Timestamp: in.Timestamp,
		})
	}
}

func (c *readingsControllerImpl) handleListRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.ListRecent(r.Context(), limit)
	if err != nil {
		utils.WriteInternalError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *readingsControllerImpl) handleLatestBySensor(w http.ResponseWriter, r *http.Request) {
	readings, err := c.repository.LatestBySensor(r.Context())
	if err != nil {
		utils.WriteInternalError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *readingsControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.repository.AggregateStats(r.Context())
	if err != nil {
		utils.WriteInternalError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (c *readingsControllerImpl) handleGetReading(w http.ResponseWriter, r *http.Request) {
	id, ok := parseReadingID(r.PathValue("id"))
	if !ok {
		utils.WriteError(w, http.StatusNotFound, msgNotFound)
		return
	}

	reading, err := c.repository.GetReading(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, msgReadingNotFound)
		return
	}
	if err != nil {
		utils.WriteInternalError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reading)
}

func (c *readingsControllerImpl) rejected(reason string) {
	if c.recorder != nil {
		c.recorder.IngestRejected(reason)
	}
}
