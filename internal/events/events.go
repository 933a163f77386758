// Package events provides trade lifecycle event sinks
package events

import (
	"context"
	"sync"

	"autotrader/internal/core"
)

// MemorySink buffers events in memory. Used in tests and as the default sink
// when no webhook is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []*core.Event
}

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends the event
func (s *MemorySink) Emit(ctx context.Context, event *core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
}

// Events returns a snapshot of everything emitted so far
func (s *MemorySink) Events() []*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the emitted events with the given name
func (s *MemorySink) Named(name string) []*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Event
	for _, event := range s.events {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

// MultiSink fans one event out to several sinks
type MultiSink struct {
	sinks []core.EventSink
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(sinks ...core.EventSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Emit(ctx context.Context, event *core.Event) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, event)
	}
}
