package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"telemetry-server/internal/modules/readings/repository"
	"telemetry-server/internal/modules/readings/types"
)

const maxIngestBodyBytes = 1 << 20

const (
	msgRecorded        = "Leitura registrada."
	msgRequiredFields  = "sensorId, value (number) e timestamp sao obrigatorios."
	msgTypeNotText     = "type deve ser texto."
	msgInvalidLimit    = "limit invalido."
	msgReadingNotFound = "Leitura nao encontrada."
	msgNotFound        = "Not found"
)

var (
	errRequiredFields = errors.New(msgRequiredFields)
	errTypeNotText    = errors.New(msgTypeNotText)
	errInvalidLimit   = errors.New(msgInvalidLimit)
)

// readIngestPayload decodes the request body as a JSON object. Any body that
// is unreadable, too large or not an object yields an empty payload, which
// then fails validation like a request with no fields.
func readIngestPayload(w http.ResponseWriter, r *http.Request) map[string]any {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err != nil {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// validateIngest turns a decoded payload into a NewReading. sensorId and
// timestamp must be non-empty strings and value a JSON number; type may be
// absent, null or a string.
func validateIngest(payload map[string]any) (types.NewReading, error) {
	sensorID, _ := payload["sensorId"].(string)
	timestamp, _ := payload["timestamp"].(string)
	value, isNumber := payload["value"].(float64)
	if sensorID == "" || timestamp == "" || !isNumber {
		return types.NewReading{}, errRequiredFields
	}

	in := types.NewReading{SensorID: sensorID, Value: value, Timestamp: timestamp}
	switch typ := payload["type"].(type) {
	case nil:
	case string:
		in.Type = &typ
	default:
		return types.NewReading{}, errTypeNotText
	}
	return in, nil
}

// parseLimit reads ?limit=. Absent means DefaultLimit; the repository clamps the rest.
func parseLimit(r *http.Request) (int, error) {
	q := r.URL.Query()
	if !q.Has("limit") {
		return repository.DefaultLimit, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	if err != nil {
		return 0, errInvalidLimit
	}
	return n, nil
}

// parseReadingID accepts only unsigned decimal ids.
func parseReadingID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
