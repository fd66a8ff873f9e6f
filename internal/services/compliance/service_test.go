package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"dealflow/internal/adapters/memory"
	"dealflow/internal/domain"
)

func newFixture(t *testing.T) (*Service, *memory.Store, *memory.EventLog) {
	t.Helper()
	store := memory.NewStore()
	events := memory.NewEventLog()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(store, events, clock, nil)
	return svc, store, events
}

func seedItem(t *testing.T, store *memory.Store) domain.ComplianceChecklistItem {
	t.Helper()
	item := domain.ComplianceChecklistItem{
		ID:           "item-1",
		DealID:       "deal-1",
		DocumentName: "Lead-Based Paint Disclosure",
		Status:       domain.ComplianceMissing,
		SourceRule:   "year_built_pre_1978",
		Version:      1,
	}
	if err := store.CreateComplianceItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	return item
}

func TestReviewFlow(t *testing.T) {
	svc, store, events := newFixture(t)
	ctx := context.Background()
	seeded := seedItem(t, store)

	item, err := svc.MarkPendingReview(ctx, seeded.ID, "doc://generated/lead-paint.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != domain.CompliancePendingReview {
		t.Fatalf("expected %s, got %s", domain.CompliancePendingReview, item.Status)
	}
	if item.DocumentHandle != "doc://generated/lead-paint.pdf" {
		t.Fatalf("handle not stored: %q", item.DocumentHandle)
	}

	item, err = svc.Approve(ctx, seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != domain.ComplianceApproved {
		t.Fatalf("expected %s, got %s", domain.ComplianceApproved, item.Status)
	}

	if got := events.ByType(domain.EventComplianceItemStatusChanged); len(got) != 2 {
		t.Fatalf("expected 2 status events, got %d", len(got))
	}
}

func TestApproveRequiresReview(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	seeded := seedItem(t, store)

	_, err := svc.Approve(ctx, seeded.ID)
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("missing -> approved should fail, got %v", err)
	}
}

func TestMarkPendingReviewRequiresHandle(t *testing.T) {
	svc, store, _ := newFixture(t)
	seeded := seedItem(t, store)

	if _, err := svc.MarkPendingReview(context.Background(), seeded.ID, "  "); err == nil {
		t.Fatal("expected error for blank handle")
	}
}

func TestApprovedIsTerminal(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	seeded := seedItem(t, store)

	if _, err := svc.MarkPendingReview(ctx, seeded.ID, "doc://x"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(ctx, seeded.ID); err != nil {
		t.Fatal(err)
	}
	_, err := svc.MarkPendingReview(ctx, seeded.ID, "doc://y")
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("approved item regressed: %v", err)
	}
}
