package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealflow/internal/domain"
)

func seedDeal(t *testing.T, s *Store) domain.Deal {
	t.Helper()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	deal := domain.Deal{
		ID: "deal-1", Address: "12 Oak St", Price: 500_000,
		Stage: domain.StageNew, Health: domain.HealthOnTrack,
		StageHistory: []domain.StageEntry{{Stage: domain.StageNew, EnteredAt: now}},
		Version:      1, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateDeal(context.Background(), deal); err != nil {
		t.Fatal(err)
	}
	return deal
}

func TestUpdateDealVersionCheck(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	deal := seedDeal(t, s)

	deal.Health = domain.HealthAtRisk
	if err := s.UpdateDeal(ctx, deal); err != nil {
		t.Fatal(err)
	}

	// The local copy still carries the old version; a second write loses.
	deal.Health = domain.HealthStalled
	if err := s.UpdateDeal(ctx, deal); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := s.GetDeal(ctx, deal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
	if got.Health != domain.HealthAtRisk {
		t.Fatalf("losing write changed health to %s", got.Health)
	}
}

func TestGetDealNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.GetDeal(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDerivedTaskCreateIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	task := domain.TransactionTask{
		ID: "task-1", DealID: "deal-1", Title: "Open escrow account",
		SourceRule: "stage_under_contract", Status: domain.TaskToDo, Version: 1,
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	dup := task
	dup.ID = "task-2"
	if err := s.CreateTask(ctx, dup); err != nil {
		t.Fatalf("duplicate derived create should no-op, got %v", err)
	}

	tasks, _ := s.ListTasksByDeal(ctx, "deal-1")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	// Manual tasks carry no rule and are never collapsed.
	manual := task
	manual.ID = "task-3"
	manual.SourceRule = ""
	if err := s.CreateTask(ctx, manual); err != nil {
		t.Fatal(err)
	}
	tasks, _ = s.ListTasksByDeal(ctx, "deal-1")
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestDerivedComplianceCreateIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	item := domain.ComplianceChecklistItem{
		ID: "item-1", DealID: "deal-1", DocumentName: "Lead-Based Paint Disclosure",
		SourceRule: "year_built_pre_1978", Status: domain.ComplianceMissing, Version: 1,
	}
	if err := s.CreateComplianceItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	dup := item
	dup.ID = "item-2"
	if err := s.CreateComplianceItem(ctx, dup); err != nil {
		t.Fatalf("duplicate derived create should no-op, got %v", err)
	}
	items, _ := s.ListComplianceByDeal(ctx, "deal-1")
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestAppendRoundRejectsDuplicateNumber(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	r1 := domain.NegotiationRound{ID: "r1", DealID: "deal-1", RoundNumber: 1, Side: domain.SideOurClient, Status: domain.RoundSent, Version: 1}
	if err := s.AppendRound(ctx, r1); err != nil {
		t.Fatal(err)
	}
	r2 := domain.NegotiationRound{ID: "r2", DealID: "deal-1", RoundNumber: 1, Side: domain.SideOtherSide, Status: domain.RoundReceived, Version: 1}
	if err := s.AppendRound(ctx, r2); !errors.Is(err, domain.ErrConflictingRound) {
		t.Fatalf("expected ErrConflictingRound, got %v", err)
	}
}

func TestListOpenDealsFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, stage domain.Stage, archived bool) {
		d := domain.Deal{ID: id, Address: "x", Price: 1, Stage: stage, Archived: archived,
			StageHistory: []domain.StageEntry{{Stage: stage, EnteredAt: now}}, Version: 1}
		if err := s.CreateDeal(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	mk("a", domain.StageNegotiation, false)
	mk("b", domain.StageClosed, false)
	mk("c", domain.StageFinancing, true)
	mk("d", domain.StageFallenThrough, false)

	open, err := s.ListOpenDeals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != "a" {
		t.Fatalf("unexpected open set %+v", open)
	}
}

func TestListOpenEnvelopesExcludesTerminal(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedDeal(t, s)

	mk := func(id string, status domain.EnvelopeStatus) {
		if err := s.CreateEnvelope(ctx, domain.SignatureEnvelope{ID: id, DealID: "deal-1", Status: status, Version: 1}); err != nil {
			t.Fatal(err)
		}
	}
	mk("e1", domain.EnvelopeSent)
	mk("e2", domain.EnvelopeDelivered)
	mk("e3", domain.EnvelopeCompleted)
	mk("e4", domain.EnvelopeDeclined)
	mk("e5", domain.EnvelopeVoided)

	open, err := s.ListOpenEnvelopes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open envelopes, got %d", len(open))
	}
}

func TestScanListsRequireOpenDeal(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	mkDeal := func(id string, stage domain.Stage, archived bool) {
		d := domain.Deal{ID: id, Address: "x", Price: 1, Stage: stage, Archived: archived,
			StageHistory: []domain.StageEntry{{Stage: stage, EnteredAt: now}}, Version: 1}
		if err := s.CreateDeal(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	mkDeal("open", domain.StageUnderContract, false)
	mkDeal("archived", domain.StageUnderContract, true)
	mkDeal("done", domain.StageClosed, false)

	for _, dealID := range []string{"open", "archived", "done", "missing"} {
		env := domain.SignatureEnvelope{ID: "env-" + dealID, DealID: dealID, Status: domain.EnvelopeSent, Version: 1}
		if err := s.CreateEnvelope(ctx, env); err != nil {
			t.Fatal(err)
		}
		fin := domain.FinancingState{DealID: dealID, LoanStage: domain.LoanApplication, LastUpdateAt: now, Version: 1}
		if err := s.CreateFinancing(ctx, fin); err != nil {
			t.Fatal(err)
		}
	}

	envs, err := s.ListOpenEnvelopes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 1 || envs[0].DealID != "open" {
		t.Fatalf("unexpected envelope scan set %+v", envs)
	}
	fins, err := s.ListActiveFinancing(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fins) != 1 || fins[0].DealID != "open" {
		t.Fatalf("unexpected financing scan set %+v", fins)
	}
}

func TestUpdateEnvelopeVersionCheck(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	env := domain.SignatureEnvelope{ID: "e1", DealID: "deal-1", Status: domain.EnvelopeSent, Version: 1}
	if err := s.CreateEnvelope(ctx, env); err != nil {
		t.Fatal(err)
	}
	env.Status = domain.EnvelopeDelivered
	if err := s.UpdateEnvelope(ctx, env); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateEnvelope(ctx, env); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestFinancingLogAppendAndList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	state := domain.FinancingState{DealID: "deal-1", LoanStage: domain.LoanApplication, LastUpdateAt: now, Version: 1}
	if err := s.CreateFinancing(ctx, state); err != nil {
		t.Fatal(err)
	}
	for i, text := range []string{"application received", "moved to processing"} {
		entry := domain.FinancingLogEntry{ID: string(rune('a' + i)), DealID: "deal-1", Text: text, RecordedAt: now}
		if err := s.AppendFinancingLog(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}
	log, err := s.ListFinancingLog(ctx, "deal-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 || log[0].Text != "application received" {
		t.Fatalf("unexpected log %+v", log)
	}
}
