package memory

import (
	"context"
	"sync"

	"dealflow/internal/domain"
	"dealflow/internal/ports"
)

// EventLog captures emitted events in order. Tests assert against it; local
// runs can use it as a poor-man's audit trail.
type EventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewEventLog returns an empty event capture.
func NewEventLog() *EventLog { return &EventLog{} }

// Emit appends the event.
func (l *EventLog) Emit(_ context.Context, ev domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns a copy of everything emitted so far.
func (l *EventLog) Events() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Event(nil), l.events...)
}

// ByType filters captured events.
func (l *EventLog) ByType(t domain.EventType) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

var _ ports.EventSink = (*EventLog)(nil)
