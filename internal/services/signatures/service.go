// Package signatures tracks third-party signature envelopes and detects
// stalls: delivered, viewed, then left unsigned past the threshold. The scan
// claims each stall episode with a conditional watermark write, so concurrent
// orchestrator instances dispatch at most one nudge per cooldown window.
package signatures

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dealflow/internal/domain"
	"dealflow/internal/occ"
	"dealflow/internal/ports"
)

// Defaults per the operations playbook.
const (
	DefaultStallThreshold = 2 * time.Hour
	DefaultNudgeCooldown  = 4 * time.Hour
)

// Service is the signature monitor.
type Service struct {
	envelopes ports.SignatureRepository
	events    ports.EventSink
	clock     clockwork.Clock
	logger    *slog.Logger
	newID     func() string

	stallThreshold time.Duration
	nudgeCooldown  time.Duration
}

// New wires the monitor with the default thresholds.
func New(envelopes ports.SignatureRepository, events ports.EventSink, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		envelopes:      envelopes,
		events:         events,
		clock:          clock,
		logger:         logger,
		newID:          uuid.NewString,
		stallThreshold: DefaultStallThreshold,
		nudgeCooldown:  DefaultNudgeCooldown,
	}
}

// SetThresholds overrides the stall threshold and nudge cooldown.
func (s *Service) SetThresholds(stall, cooldown time.Duration) {
	if stall > 0 {
		s.stallThreshold = stall
	}
	if cooldown > 0 {
		s.nudgeCooldown = cooldown
	}
}

// OpenEnvelopeInput describes a new signature request to track.
type OpenEnvelopeInput struct {
	DealID       string
	ProviderID   string
	Recipient    string
	DocumentName string
}

// Open starts tracking an envelope in the Sent status.
func (s *Service) Open(ctx context.Context, input OpenEnvelopeInput) (domain.SignatureEnvelope, error) {
	if input.DealID == "" || input.Recipient == "" {
		return domain.SignatureEnvelope{}, fmt.Errorf("deal id and recipient are required")
	}
	now := s.clock.Now().UTC()
	env := domain.SignatureEnvelope{
		ID:           s.newID(),
		DealID:       input.DealID,
		ProviderID:   input.ProviderID,
		Recipient:    input.Recipient,
		DocumentName: input.DocumentName,
		Status:       domain.EnvelopeSent,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.envelopes.CreateEnvelope(ctx, env); err != nil {
		return domain.SignatureEnvelope{}, fmt.Errorf("create envelope: %w", err)
	}
	return env, nil
}

// RecordEvent applies a provider callback to the envelope.
func (s *Service) RecordEvent(ctx context.Context, envelopeID string, ev domain.SignatureEvent) (domain.SignatureEnvelope, error) {
	var env domain.SignatureEnvelope
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		env, err = s.envelopes.GetEnvelope(ctx, envelopeID)
		if err != nil {
			return err
		}
		if err := env.Apply(ev); err != nil {
			return err
		}
		return s.envelopes.UpdateEnvelope(ctx, env)
	})
	if err != nil {
		return domain.SignatureEnvelope{}, err
	}
	env.Version++
	return env, nil
}

// Get returns one envelope.
func (s *Service) Get(ctx context.Context, envelopeID string) (domain.SignatureEnvelope, error) {
	return s.envelopes.GetEnvelope(ctx, envelopeID)
}

// ScanForStalls returns one nudge command per envelope whose stall episode
// is due. Claiming writes the watermark conditionally; an instance that
// loses the write race skips the envelope, which is what makes concurrent
// scans dispatch at most once per cooldown window.
func (s *Service) ScanForStalls(ctx context.Context) ([]ports.NudgeCommand, error) {
	envs, err := s.envelopes.ListOpenEnvelopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open envelopes: %w", err)
	}
	now := s.clock.Now().UTC()
	var cmds []ports.NudgeCommand
	for _, env := range envs {
		if !env.NudgeDue(now, s.stallThreshold, s.nudgeCooldown) {
			continue
		}
		claimed := env
		claimed.LastNudgeAt = &now
		claimed.NudgeFailed = false
		claimed.UpdatedAt = now
		if err := s.envelopes.UpdateEnvelope(ctx, claimed); err != nil {
			// Lost the race or the envelope moved on; either way not ours.
			s.logger.Debug("stall claim skipped", "envelope_id", env.ID, "err", err)
			continue
		}
		cmd := ports.NudgeCommand{
			ID:        ports.NudgeCommandID(ports.NudgeSignatureStall, env.ID, now, s.nudgeCooldown),
			Kind:      ports.NudgeSignatureStall,
			DealID:    env.DealID,
			TargetID:  env.ID,
			Recipient: env.Recipient,
			Reason: fmt.Sprintf("%q viewed %s but not signed",
				env.DocumentName, env.ViewedAt.Format(time.RFC3339)),
		}
		cmds = append(cmds, cmd)
		s.events.Emit(ctx, domain.Event{
			ID:         s.newID(),
			Type:       domain.EventNudgeRequested,
			DealID:     env.DealID,
			OccurredAt: now,
			Fields: map[string]string{
				"kind":        string(ports.NudgeSignatureStall),
				"envelope_id": env.ID,
				"command_id":  cmd.ID,
			},
		})
	}
	return cmds, nil
}

// MarkNudgeFailed surfaces an exhausted dispatch as a visible status on the
// envelope instead of dropping it.
func (s *Service) MarkNudgeFailed(ctx context.Context, envelopeID string) error {
	return occ.Retry(ctx, func(ctx context.Context) error {
		env, err := s.envelopes.GetEnvelope(ctx, envelopeID)
		if err != nil {
			return err
		}
		env.NudgeFailed = true
		env.UpdatedAt = s.clock.Now().UTC()
		return s.envelopes.UpdateEnvelope(ctx, env)
	})
}
