// Package deals owns the root aggregate: stage transitions, rule-engine
// reconciliation into the task and compliance ledgers, and the StageChanged
// event. Every mutation is a read-compute-conditional-write retried as a
// whole on version conflicts.
package deals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dealflow/internal/domain"
	"dealflow/internal/occ"
	"dealflow/internal/ports"
	"dealflow/internal/rules"
)

// Service is the deal aggregate's single entry point for mutations.
type Service struct {
	deals      ports.DealRepository
	tasks      ports.TaskRepository
	compliance ports.ComplianceRepository
	events     ports.EventSink
	clock      clockwork.Clock
	logger     *slog.Logger
	newID      func() string
}

// New wires the service. A nil clock falls back to the real one.
func New(deals ports.DealRepository, tasks ports.TaskRepository, compliance ports.ComplianceRepository, events ports.EventSink, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deals:      deals,
		tasks:      tasks,
		compliance: compliance,
		events:     events,
		clock:      clock,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Create opens a deal in the New stage.
func (s *Service) Create(ctx context.Context, input domain.NewDealInput) (domain.Deal, error) {
	deal, err := domain.NewDeal(input, s.clock.Now(), s.newID)
	if err != nil {
		return domain.Deal{}, err
	}
	if err := s.deals.CreateDeal(ctx, deal); err != nil {
		return domain.Deal{}, fmt.Errorf("create deal: %w", err)
	}
	return deal, nil
}

// Get returns the deal by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Deal, error) {
	return s.deals.GetDeal(ctx, id)
}

// History returns the append-only stage history.
func (s *Service) History(ctx context.Context, id string) ([]domain.StageEntry, error) {
	deal, err := s.deals.GetDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	return deal.StageHistory, nil
}

// Transition moves the deal to target if the transition graph allows it,
// then reconciles both ledgers against the rule engine and emits
// StageChanged. Notification follows the durable write; a reconciliation
// or emission failure never rolls the transition back.
func (s *Service) Transition(ctx context.Context, dealID string, target domain.Stage) (domain.Deal, error) {
	var deal domain.Deal
	var from domain.Stage
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		deal, err = s.deals.GetDeal(ctx, dealID)
		if err != nil {
			return err
		}
		from = deal.Stage
		if err := deal.AdvanceStage(target, s.clock.Now()); err != nil {
			return err
		}
		return s.deals.UpdateDeal(ctx, deal)
	})
	if err != nil {
		return domain.Deal{}, err
	}
	deal.Version++

	s.reconcile(ctx, deal)

	s.events.Emit(ctx, domain.Event{
		ID:         s.newID(),
		Type:       domain.EventStageChanged,
		DealID:     deal.ID,
		OccurredAt: s.clock.Now().UTC(),
		Fields: map[string]string{
			"from": string(from),
			"to":   string(deal.Stage),
		},
	})
	return deal, nil
}

// Archive hides a deal from open-deal scans. Deals are never deleted.
func (s *Service) Archive(ctx context.Context, dealID string) error {
	return occ.Retry(ctx, func(ctx context.Context) error {
		deal, err := s.deals.GetDeal(ctx, dealID)
		if err != nil {
			return err
		}
		if deal.Archived {
			return nil
		}
		deal.Archived = true
		deal.UpdatedAt = s.clock.Now().UTC()
		return s.deals.UpdateDeal(ctx, deal)
	})
}

// SetHealth records the derived health status. Losing a version race here is
// harmless; the next scan recomputes it.
func (s *Service) SetHealth(ctx context.Context, dealID string, health domain.Health) error {
	err := occ.Retry(ctx, func(ctx context.Context) error {
		deal, err := s.deals.GetDeal(ctx, dealID)
		if err != nil {
			return err
		}
		if deal.Health == health {
			return nil
		}
		deal.Health = health
		deal.UpdatedAt = s.clock.Now().UTC()
		return s.deals.UpdateDeal(ctx, deal)
	})
	if errors.Is(err, domain.ErrBusy) {
		return nil
	}
	return err
}

// reconcile derives obligations for the deal's new stage and adds whatever
// the ledgers are missing, keyed by sourceRule plus name. Existing records,
// completed ones included, are never removed. Malformed attributes suppress
// derivation but never fail the transition.
func (s *Service) reconcile(ctx context.Context, deal domain.Deal) {
	if err := deal.Attrs.Validate(); err != nil {
		s.logger.Warn("skipping obligation derivation",
			"deal_id", deal.ID, "stage", deal.Stage, "err", err)
		if deal.Health == domain.HealthOnTrack {
			_ = s.SetHealth(ctx, deal.ID, domain.HealthAtRisk)
		}
		return
	}

	obligations := rules.Evaluate(deal.Attrs, deal.Stage)
	if len(obligations) == 0 {
		return
	}

	existingTasks, err := s.tasks.ListTasksByDeal(ctx, deal.ID)
	if err != nil {
		s.logger.Error("reconcile: list tasks", "deal_id", deal.ID, "err", err)
		return
	}
	existingItems, err := s.compliance.ListComplianceByDeal(ctx, deal.ID)
	if err != nil {
		s.logger.Error("reconcile: list compliance", "deal_id", deal.ID, "err", err)
		return
	}
	haveTask := make(map[string]bool, len(existingTasks))
	for _, t := range existingTasks {
		haveTask[t.SourceRule+"\x00"+t.Title] = true
	}
	haveItem := make(map[string]bool, len(existingItems))
	for _, c := range existingItems {
		haveItem[c.SourceRule+"\x00"+c.DocumentName] = true
	}

	now := s.clock.Now().UTC()
	for _, ob := range obligations {
		key := ob.SourceRule + "\x00" + ob.Name
		switch ob.Kind {
		case rules.KindTask:
			if haveTask[key] {
				continue
			}
			due := now.Add(ob.DueIn)
			task := domain.TransactionTask{
				ID:           s.newID(),
				DealID:       deal.ID,
				Phase:        deal.Stage,
				Title:        ob.Name,
				Priority:     ob.Priority,
				Category:     ob.Category,
				DueDate:      &due,
				AssigneeRole: ob.AssigneeRole,
				Status:       domain.TaskToDo,
				SourceRule:   ob.SourceRule,
				Version:      1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.tasks.CreateTask(ctx, task); err != nil {
				s.logger.Error("reconcile: create task",
					"deal_id", deal.ID, "rule", ob.SourceRule, "err", err)
			}
		case rules.KindDocument:
			if haveItem[key] {
				continue
			}
			item := domain.ComplianceChecklistItem{
				ID:           s.newID(),
				DealID:       deal.ID,
				DocumentName: ob.Name,
				Status:       domain.ComplianceMissing,
				SourceRule:   ob.SourceRule,
				Version:      1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.compliance.CreateComplianceItem(ctx, item); err != nil {
				s.logger.Error("reconcile: create compliance item",
					"deal_id", deal.ID, "rule", ob.SourceRule, "err", err)
			}
		}
	}
}
