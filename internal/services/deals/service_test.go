package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"dealflow/internal/adapters/memory"
	"dealflow/internal/domain"
	"dealflow/internal/rules"
)

func newFixture(t *testing.T) (*Service, *memory.Store, *memory.EventLog, *clockwork.FakeClock) {
	t.Helper()
	store := memory.NewStore()
	events := memory.NewEventLog()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(store, store, store, events, clock, nil)
	return svc, store, events, clock
}

func pre1978Input() domain.NewDealInput {
	return domain.NewDealInput{
		Address:  "12 Oak St",
		Price:    500_000,
		ClientID: "client-1",
		Attrs: domain.Attributes{
			YearBuilt:     1965,
			PropertyType:  domain.PropertySingleFamily,
			FinancingType: domain.FinancingConventional,
		},
	}
}

func TestTransitionDerivesDisclosure(t *testing.T) {
	svc, store, events, _ := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Transition(ctx, deal.ID, domain.StageNegotiation); err != nil {
		t.Fatal(err)
	}

	items, err := store.ListComplianceByDeal(ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 compliance item, got %d", len(items))
	}
	item := items[0]
	if item.DocumentName != "Lead-Based Paint Disclosure" {
		t.Fatalf("unexpected document %q", item.DocumentName)
	}
	if item.Status != domain.ComplianceMissing {
		t.Fatalf("expected status %s, got %s", domain.ComplianceMissing, item.Status)
	}
	if item.SourceRule != rules.RuleYearBuiltPre1978 {
		t.Fatalf("unexpected source rule %q", item.SourceRule)
	}

	changed := events.ByType(domain.EventStageChanged)
	if len(changed) != 1 {
		t.Fatalf("expected 1 stage change event, got %d", len(changed))
	}
	if changed[0].Fields["from"] != string(domain.StageNew) || changed[0].Fields["to"] != string(domain.StageNegotiation) {
		t.Fatalf("unexpected event fields %v", changed[0].Fields)
	}
}

func TestReconcileIdempotentOnReentry(t *testing.T) {
	svc, store, _, _ := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, deal.ID, domain.StageNegotiation); err != nil {
		t.Fatal(err)
	}
	// Negotiation self-loop re-runs the rules against the same attributes.
	if _, err := svc.Transition(ctx, deal.ID, domain.StageNegotiation); err != nil {
		t.Fatal(err)
	}

	items, _ := store.ListComplianceByDeal(ctx, deal.ID)
	if len(items) != 1 {
		t.Fatalf("re-entry duplicated the checklist: %d items", len(items))
	}
}

func TestTransitionDerivesStageTasks(t *testing.T) {
	svc, store, _, _ := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}
	for _, stage := range []domain.Stage{domain.StageNegotiation, domain.StageUnderContract} {
		if _, err := svc.Transition(ctx, deal.ID, stage); err != nil {
			t.Fatal(err)
		}
	}

	tasks, err := store.ListTasksByDeal(ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 ratification tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.SourceRule != rules.RuleStageUnderContract {
			t.Errorf("task %q has rule %q", task.Title, task.SourceRule)
		}
		if task.Status != domain.TaskToDo {
			t.Errorf("task %q started %s", task.Title, task.Status)
		}
		if task.DueDate == nil {
			t.Errorf("task %q has no due date", task.Title)
		}
	}
}

func TestInvalidTransitionLeavesDealUntouched(t *testing.T) {
	svc, store, events, _ := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Transition(ctx, deal.ID, domain.StageClosing)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	after, err := svc.Get(ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Stage != domain.StageNew {
		t.Fatalf("stage changed to %s", after.Stage)
	}
	if after.Version != deal.Version {
		t.Fatalf("version advanced from %d to %d", deal.Version, after.Version)
	}
	if len(after.StageHistory) != 1 {
		t.Fatalf("history grew to %d entries", len(after.StageHistory))
	}
	if items, _ := store.ListComplianceByDeal(ctx, deal.ID); len(items) != 0 {
		t.Fatalf("rejected transition derived %d items", len(items))
	}
	if got := events.ByType(domain.EventStageChanged); len(got) != 0 {
		t.Fatalf("rejected transition emitted %d events", len(got))
	}
}

func TestMalformedAttributesCommitWithoutDerivation(t *testing.T) {
	svc, store, _, _ := newFixture(t)
	ctx := context.Background()

	input := pre1978Input()
	input.Attrs.YearBuilt = 0
	deal, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatal(err)
	}

	after, err := svc.Transition(ctx, deal.ID, domain.StageNegotiation)
	if err != nil {
		t.Fatalf("transition must commit despite bad attributes: %v", err)
	}
	if after.Stage != domain.StageNegotiation {
		t.Fatalf("expected %s, got %s", domain.StageNegotiation, after.Stage)
	}

	if items, _ := store.ListComplianceByDeal(ctx, deal.ID); len(items) != 0 {
		t.Fatalf("malformed attributes derived %d items", len(items))
	}
	fresh, _ := svc.Get(ctx, deal.ID)
	if fresh.Health != domain.HealthAtRisk {
		t.Fatalf("expected health %s, got %s", domain.HealthAtRisk, fresh.Health)
	}
}

func TestArchiveHidesDealFromOpenScans(t *testing.T) {
	svc, store, _, _ := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Archive(ctx, deal.ID); err != nil {
		t.Fatal(err)
	}

	open, err := store.ListOpenDeals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("archived deal still listed: %d", len(open))
	}
	if _, err := svc.Get(ctx, deal.ID); err != nil {
		t.Fatalf("archived deal must stay readable: %v", err)
	}

	// Archiving twice is a no-op.
	if err := svc.Archive(ctx, deal.ID); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryReturnsOrderedEntries(t *testing.T) {
	svc, _, _, clock := newFixture(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, pre1978Input())
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := svc.Transition(ctx, deal.ID, domain.StageNegotiation); err != nil {
		t.Fatal(err)
	}

	history, err := svc.History(ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Stage != domain.StageNew || history[1].Stage != domain.StageNegotiation {
		t.Fatalf("unexpected history %+v", history)
	}
	if !history[1].EnteredAt.After(history[0].EnteredAt) {
		t.Fatal("history timestamps not increasing")
	}
}
