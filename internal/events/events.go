// Package events fans "reading recorded" notifications out to the configured
// publishers after a reading is stored.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relvacode/iso8601"

	"telemetry-server/internal/modules/readings/types"
)

// ReadingRecorded is the payload published for every stored reading.
type ReadingRecorded struct {
	ID         int64     `json:"id"`
	SensorID   string    `json:"sensorId"`
	Type       *string   `json:"type"`
	Value      float64   `json:"value"`
	Timestamp  string    `json:"timestamp"`
	ObservedAt *string   `json:"observedAt,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// NewReadingRecorded builds the event for r. ObservedAt carries the RFC3339
// form of the client timestamp and is left empty when it is not ISO-8601.
func NewReadingRecorded(r types.Reading, recordedAt time.Time) ReadingRecorded {
	ev := ReadingRecorded{
		ID:         r.ID,
		SensorID:   r.SensorID,
		Type:       r.Type,
		Value:      r.Value,
		Timestamp:  r.Timestamp,
		RecordedAt: recordedAt.UTC(),
	}
	if t, err := iso8601.ParseString(r.Timestamp); err == nil {
		s := t.UTC().Format(time.RFC3339Nano)
		ev.ObservedAt = &s
	}
	return ev
}

type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev ReadingRecorded) error
}

// FailureRecorder is notified once per failed publish.
type FailureRecorder interface {
	PublishFailed(publisher string)
}

// maxInFlight caps background publishes; events beyond it are dropped.
const maxInFlight = 256

// Fanout publishes every event to all publishers concurrently, bounded by
// timeout. ReadingRecorded hands the work to a background goroutine so the
// ingestion path never waits on a broker; Close drains what is in flight.
type Fanout struct {
	publishers []Publisher
	timeout    time.Duration
	failures   FailureRecorder
	logger     *slog.Logger
	now        func() time.Time

	slots  chan struct{}
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(timeout time.Duration, failures FailureRecorder, logger *slog.Logger, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		publishers: publishers,
		timeout:    timeout,
		failures:   failures,
		logger:     logger,
		now:        time.Now,
		slots:      make(chan struct{}, maxInFlight),
	}
}

// Enabled reports whether at least one publisher is configured.
func (f *Fanout) Enabled() bool {
	return f != nil && len(f.publishers) > 0
}

// ReadingRecorded schedules the event for r and returns immediately. When
// the fanout is closed or saturated the event is dropped and counted as a
// failure for every publisher.
func (f *Fanout) ReadingRecorded(ctx context.Context, r types.Reading) {
	if !f.Enabled() {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.drop(r, "closed")
		return
	}
	select {
	case f.slots <- struct{}{}:
	default:
		f.mu.Unlock()
		f.drop(r, "saturated")
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer func() { <-f.slots }()
		_ = f.Publish(ctx, r)
	}()
}

// Publish sends the event for r to every publisher and waits for them. The
// returned error joins the individual publish failures.
func (f *Fanout) Publish(ctx context.Context, r types.Reading) error {
	if !f.Enabled() {
		return nil
	}
	ev := NewReadingRecorded(r, f.now())

	// The request may finish before publishers do; keep its values but not its cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	errs := make([]error, len(f.publishers))
	var wg sync.WaitGroup
	for i, p := range f.publishers {
		wg.Add(1)
		go func(i int, p Publisher) {
			defer wg.Done()
			if err := p.Publish(ctx, ev); err != nil {
				errs[i] = err
				f.logger.Warn("publish reading recorded failed",
					"publisher", p.Name(),
					"id", ev.ID,
					"sensor_id", ev.SensorID,
					"error", err,
				)
				f.recordFailure(p.Name())
				return
			}
			f.logger.Debug("published reading recorded", "publisher", p.Name(), "id", ev.ID)
		}(i, p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close stops accepting events and waits for in-flight publishes, or for ctx.
func (f *Fanout) Close(ctx context.Context) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) drop(r types.Reading, why string) {
	f.logger.Warn("reading recorded event dropped", "id", r.ID, "sensor_id", r.SensorID, "reason", why)
	for _, p := range f.publishers {
		f.recordFailure(p.Name())
	}
}

func (f *Fanout) recordFailure(publisher string) {
	if f.failures != nil {
		f.failures.PublishFailed(publisher)
	}
}
