package logging

import (
	"context"
	"log/slog"

	"dealflow/internal/ports"
)

// Notifier logs nudge commands instead of delivering them. Deployments wire
// a real dispatcher; this keeps local runs and development honest about what
// would have been sent.
type Notifier struct {
	Logger *slog.Logger
}

// Send logs the command. Logging the same command id twice is harmless, so
// idempotency holds trivially.
func (n Notifier) Send(_ context.Context, cmd ports.NudgeCommand) error {
	n.Logger.Info("nudge",
		slog.String("command_id", cmd.ID),
		slog.String("kind", string(cmd.Kind)),
		slog.String("deal_id", cmd.DealID),
		slog.String("recipient", cmd.Recipient),
		slog.String("reason", cmd.Reason),
	)
	return nil
}
