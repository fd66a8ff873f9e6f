// Package tasks is the assignee-side surface of the task ledger: manual
// additions alongside the rule-derived tasks, and status updates. Tasks are
// never deleted, only marked done, so the ledger doubles as an audit trail.
package tasks

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

// Service is the task ledger's mutation surface.
type Service struct {
	tasks  ports.TaskRepository
	deals  ports.DealRepository
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string
}

// New wires the service.
func New(tasks ports.TaskRepository, deals ports.DealRepository, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		deals:  deals,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// AddManualInput describes a task added by a human rather than a rule.
type AddManualInput struct {
	DealID       string
	Phase        domain.Stage
	Title        string
	Priority     domain.Priority
	Category     string
	DueDate      *time.Time
	AssigneeRole string
}

// AddManual appends a task. The phase must be a stage the deal has actually
// entered, so tasks never point at phases outside the deal's history.
func (s *Service) AddManual(ctx context.Context, input AddManualInput) (domain.TransactionTask, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return domain.TransactionTask{}, fmt.Errorf("task title is required")
	}
	deal, err := s.deals.GetDeal(ctx, input.DealID)
	if err != nil {
		return domain.TransactionTask{}, err
	}
	if !domain.ValidStage(input.Phase) {
		return domain.TransactionTask{}, fmt.Errorf("%w: unknown phase %q",
			domain.ErrInvalidStatus, input.Phase)
	}
	entered := false
	for _, entry := range deal.StageHistory {
		if entry.Stage == input.Phase {
			entered = true
			break
		}
	}
	if !entered {
		return domain.TransactionTask{}, fmt.Errorf("%w: deal %s never entered %s",
			domain.ErrInvalidStatus, deal.ID, input.Phase)
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityMedium
	}

	now := s.clock.Now().UTC()
	task := domain.TransactionTask{
		ID:           s.newID(),
		DealID:       input.DealID,
		Phase:        input.Phase,
		Title:        input.Title,
		Priority:     input.Priority,
		Category:     input.Category,
		DueDate:      input.DueDate,
		AssigneeRole: input.AssigneeRole,
		Status:       domain.TaskToDo,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return domain.TransactionTask{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// SetStatus moves a task along its status machine.
func (s *Service) SetStatus(ctx context.Context, taskID string, status domain.TaskStatus) (domain.TransactionTask, error) {
	var task domain.TransactionTask
	err := occ.Retry(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.tasks.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := task.SetStatus(status, s.clock.Now()); err != nil {
			return err
		}
		return s.tasks.UpdateTask(ctx, task)
	})
	if err != nil {
		return domain.TransactionTask{}, err
	}
	task.Version++
	return task, nil
}

// ListByDeal returns the deal's task ledger.
func (s *Service) ListByDeal(ctx context.Context, dealID string) ([]domain.TransactionTask, error) {
	return s.tasks.ListTasksByDeal(ctx, dealID)
}
