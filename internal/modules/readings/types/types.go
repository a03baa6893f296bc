package types

// UnknownType is the byType category for readings stored without a type.
const UnknownType = "unknown"

// Reading is one stored sensor observation. Type is nil when the sensor did not send one.
type Reading struct {
	ID        int64   `json:"id"`
	SensorID  string  `json:"sensorId"`
	Type      *string `json:"type"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// NewReading is a validated ingestion payload; the store assigns the ID.
type NewReading struct {
	SensorID  string
	Type      *string
	Value     float64
	Timestamp string
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type Stats struct {
	TotalReadings int64       `json:"totalReadings"`
	TotalSensors  int64       `json:"totalSensors"`
	ByType        []TypeCount `json:"byType"`
}
