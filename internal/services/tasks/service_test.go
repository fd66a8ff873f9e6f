package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"dealflow/internal/adapters/memory"
	"dealflow/internal/domain"
	dealsvc "dealflow/internal/services/deals"
)

func newFixture(t *testing.T) (*Service, string) {
	t.Helper()
	store := memory.NewStore()
	events := memory.NewEventLog()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	deals := dealsvc.New(store, store, store, events, clock, nil)
	svc := New(store, store, clock, nil)

	deal, err := deals.Create(context.Background(), domain.NewDealInput{
		Address: "12 Oak St", Price: 500_000,
		Attrs: domain.Attributes{YearBuilt: 1990, PropertyType: domain.PropertySingleFamily, FinancingType: domain.FinancingConventional},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := deals.Transition(context.Background(), deal.ID, domain.StageNegotiation); err != nil {
		t.Fatal(err)
	}
	return svc, deal.ID
}

func TestAddManualTask(t *testing.T) {
	svc, dealID := newFixture(t)
	ctx := context.Background()

	task, err := svc.AddManual(ctx, AddManualInput{
		DealID: dealID, Phase: domain.StageNegotiation, Title: "Call listing agent",
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskToDo {
		t.Fatalf("expected %s, got %s", domain.TaskToDo, task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority %s, got %s", domain.PriorityMedium, task.Priority)
	}
	if task.SourceRule != "" {
		t.Fatalf("manual task carries rule %q", task.SourceRule)
	}

	listed, err := svc.ListByDeal(ctx, dealID)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 task, got %d", len(listed))
	}
}

func TestAddManualValidation(t *testing.T) {
	svc, dealID := newFixture(t)
	ctx := context.Background()

	if _, err := svc.AddManual(ctx, AddManualInput{DealID: dealID, Phase: domain.StageNegotiation, Title: "  "}); err == nil {
		t.Fatal("expected error for blank title")
	}
	_, err := svc.AddManual(ctx, AddManualInput{DealID: dealID, Phase: "warehouse", Title: "x"})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for unknown phase, got %v", err)
	}
	// The deal never entered closing.
	_, err = svc.AddManual(ctx, AddManualInput{DealID: dealID, Phase: domain.StageClosing, Title: "x"})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus for unentered phase, got %v", err)
	}
	if _, err := svc.AddManual(ctx, AddManualInput{DealID: "nope", Phase: domain.StageNew, Title: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusLifecycle(t *testing.T) {
	svc, dealID := newFixture(t)
	ctx := context.Background()

	task, err := svc.AddManual(ctx, AddManualInput{DealID: dealID, Phase: domain.StageNew, Title: "Collect pre-approval letter"})
	if err != nil {
		t.Fatal(err)
	}

	task, err = svc.SetStatus(ctx, task.ID, domain.TaskInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.TaskInProgress {
		t.Fatalf("expected %s, got %s", domain.TaskInProgress, task.Status)
	}
	if task, err = svc.SetStatus(ctx, task.ID, domain.TaskDone); err != nil {
		t.Fatal(err)
	}
	if _, err = svc.SetStatus(ctx, task.ID, domain.TaskToDo); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("done task reopened: %v", err)
	}
}
