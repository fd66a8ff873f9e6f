// Package negotiation owns the ordered round ledger per deal: gap-free
// monotonic numbering, the one-non-terminal-round invariant, and the
// round-acceptance trigger that moves a deal under contract.
package negotiation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dealflow/internal/domain"
	"dealflow/internal/occ"
	"dealflow/internal/ports"
)

// StageMachine is the slice of the deals service the ledger needs: the
// ratification transition after a cross-side acceptance.
type StageMachine interface {
	Get(ctx context.Context, id string) (domain.Deal, error)
	Transition(ctx context.Context, dealID string, target domain.Stage) (domain.Deal, error)
}

// Actor is the authenticated identity resolving a round. Browser-dialog
// confirmations from the old surface have no place here; every resolution
// names who acted and for which side.
type Actor struct {
	ID   string
	Side domain.Side
}

// Service is the negotiation ledger.
type Service struct {
	rounds ports.NegotiationRepository
	stage  StageMachine
	events ports.EventSink
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string
}

// New wires the ledger.
func New(rounds ports.NegotiationRepository, stage StageMachine, events ports.EventSink, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rounds: rounds,
		stage:  stage,
		events: events,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// SubmitRound appends the next round for the deal on the actor's behalf. A
// same-side submission while that side's round is still open fails with
// ConflictingRound; a cross-side submission over an open round is an implicit
// counter and marks the open round Countered, attributed to the submitting
// actor. After a rejection nothing may be appended until the negotiation is
// explicitly reopened.
func (s *Service) SubmitRound(ctx context.Context, dealID string, actor Actor, terms domain.RoundTerms) (domain.NegotiationRound, error) {
	deal, err := s.stage.Get(ctx, dealID)
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	if deal.Stage != domain.StageNegotiation {
		return domain.NegotiationRound{}, fmt.Errorf("%w: deal %s is in %s, not negotiation",
			domain.ErrConflictingRound, dealID, deal.Stage)
	}

	existing, err := s.rounds.ListRoundsByDeal(ctx, dealID)
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	if err := s.checkAppendable(existing, actor.Side); err != nil {
		return domain.NegotiationRound{}, err
	}

	if len(existing) > 0 {
		if last := existing[len(existing)-1]; !last.Status.Terminal() {
			// Cross-side submission supersedes the open round.
			return s.CounterRound(ctx, last.ID, actor, terms)
		}
	}

	next := len(existing) + 1
	round, err := domain.NewRound(dealID, next, actor.Side, terms, s.clock.Now(), s.newID)
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	if err := s.rounds.AppendRound(ctx, round); err != nil {
		return domain.NegotiationRound{}, err
	}
	return round, nil
}

// ResolveRound applies a decision to an open round. Accepting the opposing
// side's round ratifies the contract and advances the deal; countering goes
// through CounterRound so the successor exists atomically.
func (s *Service) ResolveRound(ctx context.Context, roundID string, actor Actor, decision domain.RoundDecision) (domain.NegotiationRound, error) {
	if decision == domain.DecisionCounter {
		return domain.NegotiationRound{}, fmt.Errorf("%w: counters must supply successor terms",
			domain.ErrConflictingRound)
	}

	var round domain.NegotiationRound
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		round, err = s.rounds.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if decision == domain.DecisionAccept && actor.Side == round.Side {
			return fmt.Errorf("%w: %s cannot accept its own round %d",
				domain.ErrConflictingRound, actor.Side, round.RoundNumber)
		}
		if err := round.Resolve(decision, s.clock.Now()); err != nil {
			return err
		}
		return s.rounds.UpdateRound(ctx, round)
	})
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	round.Version++

	s.emitResolved(ctx, round, actor)

	if round.Status == domain.RoundAccepted {
		if _, err := s.stage.Transition(ctx, round.DealID, domain.StageUnderContract); err != nil {
			// The resolution stands; surface the stalled ratification.
			s.logger.Error("accepted round could not ratify deal",
				"deal_id", round.DealID, "round", round.RoundNumber, "err", err)
			return round, fmt.Errorf("round accepted but deal not ratified: %w", err)
		}
	}
	return round, nil
}

// CounterRound marks the round Countered and appends the actor's successor
// round. The prior round is resolved before the append: if the append then
// fails, the ledger's last round is terminal and a fresh submission can
// follow, whereas the reverse order could leave two rounds open for good.
func (s *Service) CounterRound(ctx context.Context, roundID string, actor Actor, terms domain.RoundTerms) (domain.NegotiationRound, error) {
	prior, err := s.rounds.GetRound(ctx, roundID)
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	if prior.Status.Terminal() {
		return domain.NegotiationRound{}, fmt.Errorf("%w: round %d already %s",
			domain.ErrConflictingRound, prior.RoundNumber, prior.Status)
	}
	if actor.Side == prior.Side {
		return domain.NegotiationRound{}, fmt.Errorf("%w: %s cannot counter its own round %d",
			domain.ErrConflictingRound, actor.Side, prior.RoundNumber)
	}

	// Validate the successor before touching the prior round.
	successor, err := domain.NewRound(prior.DealID, prior.RoundNumber+1, actor.Side, terms, s.clock.Now(), s.newID)
	if err != nil {
		return domain.NegotiationRound{}, err
	}

	err = occ.Retry(ctx, func(ctx context.Context) error {
		prior, err = s.rounds.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if err := prior.Resolve(domain.DecisionCounter, s.clock.Now()); err != nil {
			return err
		}
		return s.rounds.UpdateRound(ctx, prior)
	})
	if err != nil {
		return domain.NegotiationRound{}, err
	}
	prior.Version++

	s.emitResolved(ctx, prior, actor)

	if err := s.rounds.AppendRound(ctx, successor); err != nil {
		return domain.NegotiationRound{}, fmt.Errorf("countered round %d but successor not appended: %w",
			prior.RoundNumber, err)
	}
	return successor, nil
}

// Reopen lifts the terminal rejection on a deal's negotiation so a fresh
// round may be appended. Silent reopening is not allowed; this is the
// explicit action.
func (s *Service) Reopen(ctx context.Context, dealID string, actor Actor) error {
	rounds, err := s.rounds.ListRoundsByDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		return fmt.Errorf("%w: deal %s has no rounds", domain.ErrConflictingRound, dealID)
	}
	last := rounds[len(rounds)-1]
	if last.Status != domain.RoundRejected {
		return fmt.Errorf("%w: latest round is %s, not rejected",
			domain.ErrConflictingRound, last.Status)
	}
	if last.Reopened {
		return nil
	}
	return occ.Retry(ctx, func(ctx context.Context) error {
		cur, err := s.rounds.GetRound(ctx, last.ID)
		if err != nil {
			return err
		}
		if cur.Reopened {
			return nil
		}
		cur.Reopened = true
		return s.rounds.UpdateRound(ctx, cur)
	})
}

// Rounds returns the deal's rounds ordered by round number.
func (s *Service) Rounds(ctx context.Context, dealID string) ([]domain.NegotiationRound, error) {
	return s.rounds.ListRoundsByDeal(ctx, dealID)
}

// AttachAnalysis stores the external collaborator's opaque summary on a
// round.
func (s *Service) AttachAnalysis(ctx context.Context, roundID, summary string) error {
	return occ.Retry(ctx, func(ctx context.Context) error {
		round, err := s.rounds.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		round.AISummary = summary
		return s.rounds.UpdateRound(ctx, round)
	})
}

// checkAppendable enforces the same-side-resubmit and reopen-after-reject
// rules for a plain submission. A cross-side submission over an open round
// is allowed; SubmitRound turns it into a counter.
func (s *Service) checkAppendable(existing []domain.NegotiationRound, side domain.Side) error {
	if len(existing) == 0 {
		return nil
	}
	last := existing[len(existing)-1]
	if !last.Status.Terminal() {
		if last.Side == side {
			return fmt.Errorf("%w: %s already has round %d open",
				domain.ErrConflictingRound, side, last.RoundNumber)
		}
		return nil
	}
	switch last.Status {
	case domain.RoundAccepted:
		return fmt.Errorf("%w: negotiation concluded at round %d",
			domain.ErrConflictingRound, last.RoundNumber)
	case domain.RoundRejected:
		if !last.Reopened {
			return fmt.Errorf("%w: negotiation rejected at round %d; reopen it first",
				domain.ErrConflictingRound, last.RoundNumber)
		}
	}
	return nil
}

func (s *Service) emitResolved(ctx context.Context, round domain.NegotiationRound, actor Actor) {
	s.events.Emit(ctx, domain.Event{
		ID:         s.newID(),
		Type:       domain.EventRoundResolved,
		DealID:     round.DealID,
		OccurredAt: s.clock.Now().UTC(),
		Fields: map[string]string{
			"round_id": round.ID,
			"round":    fmt.Sprintf("%d", round.RoundNumber),
			"status":   string(round.Status),
			"actor_id": actor.ID,
		},
	})
}
