package logging

import (
	"context"
	"log/slog"

	"dealflow/internal/domain"
)

// EventSink logs engine events. Deployments that feed a real audit pipeline
// swap this for their own ports.EventSink.
type EventSink struct {
	Logger *slog.Logger
}

// Emit writes one structured line per event.
func (s EventSink) Emit(_ context.Context, ev domain.Event) {
	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
		slog.String("deal_id", ev.DealID),
		slog.Time("occurred_at", ev.OccurredAt),
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.String(k, v))
	}
	s.Logger.Info("event", attrs...)
}
