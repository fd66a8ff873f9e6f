package domain

import (
	"testing"
	"time"
)

func TestRecordUpdateForwardOnly(t *testing.T) {
	t0 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	state, err := NewFinancingState("deal-1", "First Bank", "lender@firstbank.test", t0)
	if err != nil {
		t.Fatal(err)
	}
	if state.LoanStage != LoanApplication {
		t.Fatalf("expected %s, got %s", LoanApplication, state.LoanStage)
	}

	state.RecordUpdate("moved to underwriting", LoanUnderwriting, t0.Add(time.Hour))
	if state.LoanStage != LoanUnderwriting {
		t.Fatalf("expected %s, got %s", LoanUnderwriting, state.LoanStage)
	}

	// A late-arriving earlier stage never regresses the pipeline.
	state.RecordUpdate("file in processing", LoanProcessing, t0.Add(2*time.Hour))
	if state.LoanStage != LoanUnderwriting {
		t.Fatalf("stage regressed to %s", state.LoanStage)
	}

	// Ambiguous updates still refresh the activity watermark.
	before := state.LastUpdateAt
	state.RecordUpdate("spoke with the borrower", "", t0.Add(3*time.Hour))
	if state.LoanStage != LoanUnderwriting {
		t.Fatalf("ambiguous update changed stage to %s", state.LoanStage)
	}
	if !state.LastUpdateAt.After(before) {
		t.Fatal("ambiguous update did not refresh LastUpdateAt")
	}
}

func TestInactivityNudgeDue(t *testing.T) {
	t0 := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	threshold, cooldown := 72*time.Hour, 4*time.Hour
	state, _ := NewFinancingState("deal-1", "First Bank", "", t0)

	if state.InactivityNudgeDue(t0.Add(threshold), threshold, cooldown) {
		t.Fatal("exactly at threshold should not be due")
	}
	due := t0.Add(threshold + time.Hour)
	if !state.InactivityNudgeDue(due, threshold, cooldown) {
		t.Fatal("expected nudge due past threshold")
	}

	state.LastNudgeAt = &due
	if state.InactivityNudgeDue(due.Add(time.Hour), threshold, cooldown) {
		t.Fatal("nudge within cooldown must not be due")
	}
	if !state.InactivityNudgeDue(due.Add(cooldown), threshold, cooldown) {
		t.Fatal("expected nudge due after cooldown")
	}

	// A fresh lender update resets the clock.
	state.RecordUpdate("rate locked", "", due.Add(cooldown))
	if state.InactivityNudgeDue(due.Add(cooldown+time.Hour), threshold, cooldown) {
		t.Fatal("recent update should suppress the nudge")
	}

	// Clear to close ends monitoring.
	state.LoanStage = LoanClearToClose
	if state.InactivityNudgeDue(due.Add(30*24*time.Hour), threshold, cooldown) {
		t.Fatal("clear-to-close deals are not monitored")
	}
}

func TestLoanStageAfter(t *testing.T) {
	if !LoanStageAfter(LoanApproved, LoanAppraisal) {
		t.Fatal("approved follows appraisal")
	}
	if LoanStageAfter(LoanApplication, LoanApplication) {
		t.Fatal("a stage is not after itself")
	}
	if LoanStageAfter(LoanProcessing, LoanClearToClose) {
		t.Fatal("processing precedes clear to close")
	}
}
