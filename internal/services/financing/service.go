// Package financing tracks the lender pipeline per deal and raises
// inactivity nudges when updates go quiet. Loan stage only moves forward,
// and only when a lender update unambiguously names a later stage.
package financing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dealflow/internal/domain"
	"dealflow/internal/occ"
	"dealflow/internal/ports"
)

// DefaultInactivityThreshold is how long a lender may go quiet before the
// liaison is nudged.
const DefaultInactivityThreshold = 72 * time.Hour

// DefaultNudgeCooldown matches the signature monitor's storm guard.
const DefaultNudgeCooldown = 4 * time.Hour

// stageKeywords is the fixed table mapping update text to pipeline stages.
// An update matching more than one distinct stage is ambiguous and advances
// nothing.
var stageKeywords = []struct {
	keyword string
	stage   domain.LoanStage
}{
	{"clear to close", domain.LoanClearToClose},
	{"clear-to-close", domain.LoanClearToClose},
	{"ctc", domain.LoanClearToClose},
	{"approved", domain.LoanApproved},
	{"approval", domain.LoanApproved},
	{"appraisal", domain.LoanAppraisal},
	{"underwriting", domain.LoanUnderwriting},
	{"processing", domain.LoanProcessing},
	{"application", domain.LoanApplication},
}

// ParseLoanStage extracts the single loan stage an update names. ok is false
// when the text names none or more than one distinct stage.
func ParseLoanStage(text string) (stage domain.LoanStage, ok bool) {
	lowered := strings.ToLower(text)
	matched := make(map[domain.LoanStage]bool)
	for _, entry := range stageKeywords {
		if strings.Contains(lowered, entry.keyword) {
			matched[entry.stage] = true
			stage = entry.stage
		}
	}
	if len(matched) != 1 {
		return "", false
	}
	return stage, true
}

// Service is the financing monitor.
type Service struct {
	financing ports.FinancingRepository
	events    ports.EventSink
	clock     clockwork.Clock
	logger    *slog.Logger
	newID     func() string

	inactivityThreshold time.Duration
	nudgeCooldown       time.Duration
}

// New wires the monitor with the default thresholds.
func New(financing ports.FinancingRepository, events ports.EventSink, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		financing:           financing,
		events:              events,
		clock:               clock,
		logger:              logger,
		newID:               uuid.NewString,
		inactivityThreshold: DefaultInactivityThreshold,
		nudgeCooldown:       DefaultNudgeCooldown,
	}
}

// SetThresholds overrides the inactivity threshold and nudge cooldown.
func (s *Service) SetThresholds(inactivity, cooldown time.Duration) {
	if inactivity > 0 {
		s.inactivityThreshold = inactivity
	}
	if cooldown > 0 {
		s.nudgeCooldown = cooldown
	}
}

// Open starts lender tracking for a deal at the Application stage.
func (s *Service) Open(ctx context.Context, dealID, lenderName, lenderContact string) (domain.FinancingState, error) {
	state, err := domain.NewFinancingState(dealID, lenderName, lenderContact, s.clock.Now())
	if err != nil {
		return domain.FinancingState{}, err
	}
	if err := s.financing.CreateFinancing(ctx, state); err != nil {
		return domain.FinancingState{}, fmt.Errorf("create financing: %w", err)
	}
	return state, nil
}

// Get returns the lender snapshot for a deal.
func (s *Service) Get(ctx context.Context, dealID string) (domain.FinancingState, error) {
	return s.financing.GetFinancing(ctx, dealID)
}

// Log returns the append-only lender update history for a deal.
func (s *Service) Log(ctx context.Context, dealID string) ([]domain.FinancingLogEntry, error) {
	return s.financing.ListFinancingLog(ctx, dealID)
}

// IngestLenderUpdate appends the update to the log, advances the loan stage
// when the text unambiguously names a later one, and resets the inactivity
// clock.
func (s *Service) IngestLenderUpdate(ctx context.Context, dealID, text string, at time.Time) (domain.FinancingState, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.FinancingState{}, fmt.Errorf("lender update text is required")
	}
	parsed, _ := ParseLoanStage(text)

	var state domain.FinancingState
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		state, err = s.financing.GetFinancing(ctx, dealID)
		if err != nil {
			return err
		}
		state.RecordUpdate(text, parsed, at)
		return s.financing.UpdateFinancing(ctx, state)
	})
	if err != nil {
		return domain.FinancingState{}, err
	}
	state.Version++

	entry := domain.FinancingLogEntry{
		ID:         s.newID(),
		DealID:     dealID,
		Text:       text,
		StageAfter: state.LoanStage,
		RecordedAt: at.UTC(),
	}
	if err := s.financing.AppendFinancingLog(ctx, entry); err != nil {
		s.logger.Error("append financing log", "deal_id", dealID, "err", err)
	}
	return state, nil
}

// ScanForInactivity returns one nudge command per deal whose lender has been
// quiet past the threshold, claiming each episode with the watermark write
// exactly like the signature monitor.
func (s *Service) ScanForInactivity(ctx context.Context) ([]ports.NudgeCommand, error) {
	states, err := s.financing.ListActiveFinancing(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active financing: %w", err)
	}
	now := s.clock.Now().UTC()
	var cmds []ports.NudgeCommand
	for _, state := range states {
		if !state.InactivityNudgeDue(now, s.inactivityThreshold, s.nudgeCooldown) {
			continue
		}
		claimed := state
		claimed.LastNudgeAt = &now
		claimed.NudgeFailed = false
		claimed.UpdatedAt = now
		if err := s.financing.UpdateFinancing(ctx, claimed); err != nil {
			s.logger.Debug("inactivity claim skipped", "deal_id", state.DealID, "err", err)
			continue
		}
		cmd := ports.NudgeCommand{
			ID:        ports.NudgeCommandID(ports.NudgeLenderInactivity, state.DealID, now, s.nudgeCooldown),
			Kind:      ports.NudgeLenderInactivity,
			DealID:    state.DealID,
			TargetID:  state.DealID,
			Recipient: state.LenderContact,
			Reason: fmt.Sprintf("no lender update since %s (stage %s)",
				state.LastUpdateAt.Format(time.RFC3339), state.LoanStage),
		}
		cmds = append(cmds, cmd)
		s.events.Emit(ctx, domain.Event{
			ID:         s.newID(),
			Type:       domain.EventNudgeRequested,
			DealID:     state.DealID,
			OccurredAt: now,
			Fields: map[string]string{
				"kind":       string(ports.NudgeLenderInactivity),
				"command_id": cmd.ID,
				"loan_stage": string(state.LoanStage),
			},
		})
	}
	return cmds, nil
}

// MarkNudgeFailed surfaces an exhausted dispatch on the lender snapshot.
func (s *Service) MarkNudgeFailed(ctx context.Context, dealID string) error {
	return occ.Retry(ctx, func(ctx context.Context) error {
		state, err := s.financing.GetFinancing(ctx, dealID)
		if err != nil {
			return err
		}
		state.NudgeFailed = true
		state.UpdatedAt = s.clock.Now().UTC()
		return s.financing.UpdateFinancing(ctx, state)
	})
}
