package domain

import (
	"fmt"
	"time"
)

// Priority orders transaction tasks for agents.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TaskStatus tracks a task's completion. Tasks are never deleted; Done is the
// terminal state so the ledger stays auditable.
type TaskStatus string

const (
	TaskToDo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// TransactionTask is one unit of required work on a deal, owned by exactly
// one deal and one phase.
type TransactionTask struct {
	ID           string
	DealID       string
	Phase        Stage
	Title        string
	Priority     Priority
	Category     string
	DueDate      *time.Time
	AssigneeRole string
	Status       TaskStatus
	SourceRule   string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SetStatus moves the task along todo -> in_progress -> done. Reopening a
// done task is not permitted.
func (t *TransactionTask) SetStatus(status TaskStatus, at time.Time) error {
	switch status {
	case TaskToDo, TaskInProgress, TaskDone:
	default:
		return fmt.Errorf("%w: unknown task status %q", ErrInvalidStatus, status)
	}
	if t.Status == TaskDone && status != TaskDone {
		return fmt.Errorf("%w: task %s is done", ErrInvalidStatus, t.ID)
	}
	t.Status = status
	t.UpdatedAt = at.UTC()
	return nil
}
