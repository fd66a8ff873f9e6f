// Package nudgerunner is the periodic orchestrator: it scans the signature
// and financing monitors for stall and inactivity episodes and dispatches
// the resulting nudge commands. Multiple instances may run concurrently;
// the monitors' watermark writes make the losers no-op, so the loop itself
// needs no coordination.
package nudgerunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"dealflow/internal/domain"
	"dealflow/internal/ports"
)

// DefaultInterval is the scan cadence.
const DefaultInterval = 15 * time.Minute

const (
	dispatchAttempts = 4
	dispatchBackoff  = 500 * time.Millisecond
)

// StallScanner is the signature monitor's scan surface.
type StallScanner interface {
	ScanForStalls(ctx context.Context) ([]ports.NudgeCommand, error)
	MarkNudgeFailed(ctx context.Context, envelopeID string) error
}

// InactivityScanner is the financing monitor's scan surface.
type InactivityScanner interface {
	ScanForInactivity(ctx context.Context) ([]ports.NudgeCommand, error)
	MarkNudgeFailed(ctx context.Context, dealID string) error
}

// HealthSetter lets the runner reflect scan findings on the deal record.
type HealthSetter interface {
	SetHealth(ctx context.Context, dealID string, health domain.Health) error
}

// Runner drives the scan-and-nudge cycle.
type Runner struct {
	signatures StallScanner
	financing  InactivityScanner
	health     HealthSetter
	notifier   ports.Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
	interval   time.Duration
}

// New wires a runner with the default interval.
func New(signatures StallScanner, financing InactivityScanner, health HealthSetter, notifier ports.Notifier, clock clockwork.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		signatures: signatures,
		financing:  financing,
		health:     health,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		interval:   DefaultInterval,
	}
}

// SetInterval overrides the scan cadence.
func (r *Runner) SetInterval(d time.Duration) {
	if d > 0 {
		r.interval = d
	}
}

// Run loops until the context is cancelled. A failed cycle is logged and the
// next tick tries again; nothing here is fatal.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scan-and-dispatch cycle across both monitors.
func (r *Runner) RunOnce(ctx context.Context) {
	stalls, err := r.signatures.ScanForStalls(ctx)
	if err != nil {
		r.logger.Error("stall scan failed", "err", err)
	}
	for _, cmd := range stalls {
		if r.dispatch(ctx, cmd) {
			r.setHealth(ctx, cmd.DealID, domain.HealthStalled)
		} else {
			if err := r.signatures.MarkNudgeFailed(ctx, cmd.TargetID); err != nil {
				r.logger.Error("mark stall nudge failed", "envelope_id", cmd.TargetID, "err", err)
			}
		}
	}

	inactive, err := r.financing.ScanForInactivity(ctx)
	if err != nil {
		r.logger.Error("inactivity scan failed", "err", err)
	}
	for _, cmd := range inactive {
		if r.dispatch(ctx, cmd) {
			r.setHealth(ctx, cmd.DealID, domain.HealthAtRisk)
		} else {
			if err := r.financing.MarkNudgeFailed(ctx, cmd.TargetID); err != nil {
				r.logger.Error("mark lender nudge failed", "deal_id", cmd.TargetID, "err", err)
			}
		}
	}
}

// dispatch sends one command with bounded exponential backoff. Dispatchers
// treat an already-resolved condition as a no-op success, so cancellation of
// an in-flight nudge needs no handling here.
func (r *Runner) dispatch(ctx context.Context, cmd ports.NudgeCommand) bool {
	backoff := retry.WithMaxRetries(dispatchAttempts, retry.NewExponential(dispatchBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.notifier.Send(ctx, cmd); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("nudge dispatch exhausted",
			"command_id", cmd.ID, "kind", cmd.Kind, "deal_id", cmd.DealID,
			"err", errors.Join(domain.ErrDispatchFailed, err))
		return false
	}
	return true
}

// setHealth is best effort; the record's health is derived and the next
// cycle recomputes it.
func (r *Runner) setHealth(ctx context.Context, dealID string, health domain.Health) {
	if r.health == nil {
		return
	}
	if err := r.health.SetHealth(ctx, dealID, health); err != nil {
		r.logger.Warn("set deal health", "deal_id", dealID, "err", err)
	}
}
