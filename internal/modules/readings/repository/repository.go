package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"telemetry-server/internal/modules/readings/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/list-recent.sql
var listRecentSQL string

//go:embed sql/latest-by-sensor.sql
var latestBySensorSQL string

//go:embed sql/get-reading.sql
var getReadingSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/count-by-type.sql
var countByTypeSQL string

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var ErrNotFound = errors.New("reading not found")

type ReadingsRepository interface {
	InsertReading(ctx context.Context, in types.NewReading) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]types.Reading, error)
	LatestBySensor(ctx context.Context) ([]types.Reading, error)
	AggregateStats(ctx context.Context) (types.Stats, error)
	GetReading(ctx context.Context, id int64) (types.Reading, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ReadingsRepository {
	return &repositoryImpl{db: db}
}

// ClampLimit caps limit at MaxLimit. Negative values become 0 because SQLite
// reads a negative LIMIT as "no limit".
func ClampLimit(limit int) int {
	if limit > MaxLimit {
		return MaxLimit
	}
	if limit < 0 {
		return 0
	}
	return limit
}

func (r *repositoryImpl) InsertReading(ctx context.Context, in types.NewReading) (int64, error) {
	var typ any
	if in.Type != nil {
		typ = *in.Type
	}
	res, err := r.db.ExecContext(ctx, insertReadingSQL, in.SensorID, typ, in.Value, in.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reading: last insert id: %w", err)
	}
	return id, nil
}

func (r *repositoryImpl) ListRecent(ctx context.Context, limit int) ([]types.Reading, error) {
	rows, err := r.db.QueryContext(ctx, listRecentSQL, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close recent readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

func (r *repositoryImpl) LatestBySensor(ctx context.Context) ([]types.Reading, error) {
	rows, err := r.db.QueryContext(ctx, latestBySensorSQL)
	if err != nil {
		return nil, fmt.Errorf("latest readings by sensor: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest readings rows", "error", err)
		}
	}()
	return scanReadings(rows)
}

func (r *repositoryImpl) GetReading(ctx context.Context, id int64) (types.Reading, error) {
	var rec types.Reading
	err := r.db.QueryRowContext(ctx, getReadingSQL, id).Scan(&rec.ID, &rec.SensorID, &rec.Type, &rec.Value, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Reading{}, ErrNotFound
	}
	if err != nil {
		return types.Reading{}, fmt.Errorf("get reading %d: %w", id, err)
	}
	return rec, nil
}

// AggregateStats reads the totals and the per-type counts inside one
// transaction so the three figures describe the same snapshot.
func (r *repositoryImpl) AggregateStats(ctx context.Context) (types.Stats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Stats{}, fmt.Errorf("stats begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats := types.Stats{ByType: []types.TypeCount{}}
	if err := tx.QueryRowContext(ctx, countReadingsSQL).Scan(&stats.TotalReadings, &stats.TotalSensors); err != nil {
		return types.Stats{}, fmt.Errorf("count readings: %w", err)
	}

	rows, err := tx.QueryContext(ctx, countByTypeSQL)
	if err != nil {
		return types.Stats{}, fmt.Errorf("count by type: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close type count rows", "error", err)
		}
	}()
	for rows.Next() {
		var tc types.TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return types.Stats{}, fmt.Errorf("scan type count: %w", err)
		}
		stats.ByType = append(stats.ByType, tc)
	}
	if err := rows.Err(); err != nil {
		return types.Stats{}, fmt.Errorf("count by type: %w", err)
	}

	return stats, tx.Commit()
}

func scanReadings(rows *sql.Rows) ([]types.Reading, error) {
	out := []types.Reading{}
	for rows.Next() {
		var rec types.Reading
		if err := rows.Scan(&rec.ID, &rec.SensorID, &rec.Type, &rec.Value, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
