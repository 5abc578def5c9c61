// Package notify fans service events out to configured sinks (webhook,
// Kafka). Delivery is asynchronous and best-effort: a slow or failing sink
// never blocks or fails the operation that produced the event.
package notify

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/model"
)

// Event types.
const (
	EventImageStored    = "image.stored"
	EventImageDeleted   = "image.deleted"
	EventBatchCompleted = "batch.completed"
)

// sendTimeout bounds a single delivery attempt chain per sink.
const sendTimeout = 10 * time.Second

// Event is the payload delivered to every sink.
type Event struct {
	Type string         `json:"type"`
	Time time.Time      `json:"timestamp"`
	Data map[string]any `json:"data,omitempty"`

	// Key is used for partitioning, not serialized into the payload.
	Key string `json:"-"`
}

// ImageStored builds the event emitted after a successful upload.
func ImageStored(rec model.ImageRecord) Event {
	return Event{
		Type: EventImageStored,
		Time: time.Now().UTC(),
		Key:  rec.UUID.String(),
		Data: map[string]any{
			"uuid":        rec.UUID.String(),
			"stored_path": rec.StoredPath,
			"user_path":   rec.UserPath,
			"size_bytes":  rec.SizeBytes,
			"format":      rec.Format,
		},
	}
}

// ImageDeleted builds the event emitted after a record is removed.
func ImageDeleted(rec model.ImageRecord) Event {
	return Event{
		Type: EventImageDeleted,
		Time: time.Now().UTC(),
		Key:  rec.UUID.String(),
		Data: map[string]any{
			"uuid":      rec.UUID.String(),
			"user_path": rec.UserPath,
		},
	}
}

// BatchCompleted builds the event emitted when a batch reaches its terminal
// state.
func BatchCompleted(batchID string, total, succeeded, failed int) Event {
	return Event{
		Type: EventBatchCompleted,
		Time: time.Now().UTC(),
		Key:  batchID,
		Data: map[string]any{
			"batch_id":  batchID,
			"total":     total,
			"succeeded": succeeded,
			"failed":    failed,
		},
	}
}

// Sink delivers a single event to one destination.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to all sinks. With no sinks configured it is
// an inert no-op.
type Dispatcher struct {
	sinks []Sink
	wg    sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Publish delivers ev to every sink in the background. Delivery is detached
// from the caller's context: the request that produced the event finishes
// independently of sink latency.
func (d *Dispatcher) Publish(_ context.Context, ev Event) {
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			if err := s.Send(ctx, ev); err != nil {
				zlog.Logger.Err(err).Str("event", ev.Type).Msg("failed to deliver event")
			}
		}(sink)
	}
}

// Close waits for in-flight deliveries and closes sinks that hold
// connections.
func (d *Dispatcher) Close() error {
	d.wg.Wait()

	var firstErr error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
