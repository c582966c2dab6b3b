// Package activity turns per-query events into fire-and-forget writes: the
// pipeline must never block on or fail because of activity recording.
package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/metrics"
)

// Sink receives events for durable storage.
type Sink interface {
	Write(ctx context.Context, e domain.ActivityEvent) error
}

// Recorder is the pipeline-facing contract.
type Recorder interface {
	Record(e domain.ActivityEvent)
}

// writeTimeout bounds a single sink write so a slow store cannot back the
// worker up indefinitely.
const writeTimeout = 5 * time.Second

// AsyncRecorder buffers events in a bounded channel drained by one worker
// goroutine. When the buffer is full the event is dropped and counted;
// dropping beats stalling a user query.
type AsyncRecorder struct {
	sink   Sink
	events chan domain.ActivityEvent
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncRecorder creates a recorder and starts its worker.
func NewAsyncRecorder(sink Sink, bufferSize int, logger *zap.Logger) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &AsyncRecorder{
		sink:   sink,
		events: make(chan domain.ActivityEvent, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an event without blocking.
func (r *AsyncRecorder) Record(e domain.ActivityEvent) {
	select {
	case r.events <- e:
	default:
		metrics.ActivityDroppedTotal.Inc()
		r.logger.Warn("activity buffer full, dropping event",
			zap.String("user_id", e.UserID),
			zap.String("outcome", string(e.Outcome)),
		)
	}
}

// Close stops the worker after draining buffered events.
func (r *AsyncRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
	})
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.Write(ctx, e); err != nil {
			r.logger.Warn("failed to persist activity event", zap.Error(err))
		}
		cancel()
	}
}
