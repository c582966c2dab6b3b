// Package activity persists activity events to the shared store so the
// dashboards can read them back. The core only appends; it never reads its
// own events on the query path.
package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aero-edu/aero/internal/domain"
)

// store is the consumer interface for the activity sink (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Sink appends activity events to per-user and global logs.
type Sink struct {
	store  store
	prefix string
}

// NewSink creates an activity sink. prefix namespaces all keys.
func NewSink(s store, prefix string) *Sink {
	return &Sink{store: s, prefix: prefix}
}

func (s *Sink) logKey() string            { return s.prefix + "activity:log" }
func (s *Sink) userKey(id string) string  { return s.prefix + "activity:user:" + id }

// Write appends one event. Events are append-only and never mutated.
func (s *Sink) Write(ctx context.Context, e domain.ActivityEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	if err := s.store.RPush(ctx, s.logKey(), string(data)); err != nil {
		return fmt.Errorf("append activity event: %w", err)
	}
	if e.UserID != "" {
		if err := s.store.RPush(ctx, s.userKey(e.UserID), string(data)); err != nil {
			return fmt.Errorf("append user activity event: %w", err)
		}
	}
	return nil
}

// Recent returns up to n most recent events from the global log, newest last.
func (s *Sink) Recent(ctx context.Context, n int64) ([]domain.ActivityEvent, error) {
	if n <= 0 {
		n = 50
	}
	raw, err := s.store.LRange(ctx, s.logKey(), -n, -1)
	if err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}

	events := make([]domain.ActivityEvent, 0, len(raw))
	for _, r := range raw {
		var e domain.ActivityEvent
		if json.Unmarshal([]byte(r), &e) != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
