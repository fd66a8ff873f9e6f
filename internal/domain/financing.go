package domain

import (
	"fmt"
	"time"
)

// LoanStage is the lender-side pipeline. It only ever advances.
type LoanStage string

const (
	LoanApplication  LoanStage = "application"
	LoanProcessing   LoanStage = "processing"
	LoanUnderwriting LoanStage = "underwriting"
	LoanAppraisal    LoanStage = "appraisal"
	LoanApproved     LoanStage = "approved"
	LoanClearToClose LoanStage = "clear_to_close"
)

// loanRank orders the pipeline for the forward-only invariant.
var loanRank = map[LoanStage]int{
	LoanApplication:  1,
	LoanProcessing:   2,
	LoanUnderwriting: 3,
	LoanAppraisal:    4,
	LoanApproved:     5,
	LoanClearToClose: 6,
}

// LoanStageAfter reports whether candidate is strictly later in the pipeline
// than current.
func LoanStageAfter(candidate, current LoanStage) bool {
	return loanRank[candidate] > loanRank[current]
}

// FinancingState is the per-deal lender snapshot the monitor scans.
type FinancingState struct {
	DealID              string
	LenderName          string
	LenderContact       string
	LoanStage           LoanStage
	CommitmentDate      *time.Time
	AppraisalStatus     string
	ConditionsRemaining bool
	LastUpdateText      string
	LastUpdateAt        time.Time
	// LastNudgeAt is the inactivity-nudge watermark, written with the same
	// conditional write that marks dispatch.
	LastNudgeAt *time.Time
	NudgeFailed bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FinancingLogEntry is one append-only lender update.
type FinancingLogEntry struct {
	ID         string
	DealID     string
	Text       string
	StageAfter LoanStage
	RecordedAt time.Time
}

// RecordUpdate appends a lender update to the snapshot, advancing the loan
// stage only when parsed names a strictly later stage. Ambiguous updates
// leave the stage untouched.
func (f *FinancingState) RecordUpdate(text string, parsed LoanStage, at time.Time) {
	at = at.UTC()
	if parsed != "" && LoanStageAfter(parsed, f.LoanStage) {
		f.LoanStage = parsed
	}
	f.LastUpdateText = text
	f.LastUpdateAt = at
	f.UpdatedAt = at
}

// InactivityNudgeDue reports whether the deal's lender has been quiet past
// the threshold and the cooldown watermark allows another nudge.
func (f *FinancingState) InactivityNudgeDue(now time.Time, threshold, cooldown time.Duration) bool {
	if f.LoanStage == LoanClearToClose {
		return false
	}
	if now.Sub(f.LastUpdateAt) <= threshold {
		return false
	}
	return f.LastNudgeAt == nil || now.Sub(*f.LastNudgeAt) >= cooldown
}

// ValidLoanStage reports membership in the loan pipeline enumeration.
func ValidLoanStage(s LoanStage) bool {
	_, ok := loanRank[s]
	return ok
}

// NewFinancingState opens the lender snapshot for a deal at Application.
func NewFinancingState(dealID, lenderName, lenderContact string, now time.Time) (FinancingState, error) {
	if dealID == "" {
		return FinancingState{}, fmt.Errorf("deal id is required")
	}
	now = now.UTC()
	return FinancingState{
		DealID:        dealID,
		LenderName:    lenderName,
		LenderContact: lenderContact,
		LoanStage:     LoanApplication,
		LastUpdateAt:  now,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
