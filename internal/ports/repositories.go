package ports

import (
	"context"

	"dealflow/internal/domain"
)

// Mutating repository methods are conditional writes: the record's Version
// field must match the stored version or the call fails with
// domain.ErrVersionConflict, and a successful write persists Version+1.
// Callers retry the whole read-compute-write operation, never just the write.

// DealRepository stores the root aggregate.
type DealRepository interface {
	CreateDeal(ctx context.Context, d domain.Deal) error
	GetDeal(ctx context.Context, id string) (domain.Deal, error)
	UpdateDeal(ctx context.Context, d domain.Deal) error
	// ListOpenDeals returns unarchived deals not in a terminal stage.
	ListOpenDeals(ctx context.Context) ([]domain.Deal, error)
}

// TaskRepository stores the task ledger. CreateTask enforces the
// (deal, source rule, title) de-duplication key for derived tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, t domain.TransactionTask) error
	GetTask(ctx context.Context, id string) (domain.TransactionTask, error)
	UpdateTask(ctx context.Context, t domain.TransactionTask) error
	ListTasksByDeal(ctx context.Context, dealID string) ([]domain.TransactionTask, error)
}

// ComplianceRepository stores the compliance ledger with the same
// (deal, source rule, document) de-duplication key.
type ComplianceRepository interface {
	CreateComplianceItem(ctx context.Context, c domain.ComplianceChecklistItem) error
	GetComplianceItem(ctx context.Context, id string) (domain.ComplianceChecklistItem, error)
	UpdateComplianceItem(ctx context.Context, c domain.ComplianceChecklistItem) error
	ListComplianceByDeal(ctx context.Context, dealID string) ([]domain.ComplianceChecklistItem, error)
}

// NegotiationRepository stores rounds. AppendRound fails with
// domain.ErrConflictingRound if the (deal, round number) slot is taken.
type NegotiationRepository interface {
	AppendRound(ctx context.Context, r domain.NegotiationRound) error
	GetRound(ctx context.Context, id string) (domain.NegotiationRound, error)
	UpdateRound(ctx context.Context, r domain.NegotiationRound) error
	ListRoundsByDeal(ctx context.Context, dealID string) ([]domain.NegotiationRound, error)
}

// SignatureRepository stores envelopes.
type SignatureRepository interface {
	CreateEnvelope(ctx context.Context, e domain.SignatureEnvelope) error
	GetEnvelope(ctx context.Context, id string) (domain.SignatureEnvelope, error)
	UpdateEnvelope(ctx context.Context, e domain.SignatureEnvelope) error
	// ListOpenEnvelopes returns envelopes in a non-terminal provider status
	// whose deal is open (unarchived, non-terminal stage) for the
	// orchestrator's stall scan.
	ListOpenEnvelopes(ctx context.Context) ([]domain.SignatureEnvelope, error)
}

// FinancingRepository stores the per-deal lender snapshot and its
// append-only log.
type FinancingRepository interface {
	CreateFinancing(ctx context.Context, f domain.FinancingState) error
	GetFinancing(ctx context.Context, dealID string) (domain.FinancingState, error)
	UpdateFinancing(ctx context.Context, f domain.FinancingState) error
	AppendFinancingLog(ctx context.Context, entry domain.FinancingLogEntry) error
	ListFinancingLog(ctx context.Context, dealID string) ([]domain.FinancingLogEntry, error)
	// ListActiveFinancing returns snapshots whose deal is open (unarchived,
	// non-terminal stage) for the inactivity scan.
	ListActiveFinancing(ctx context.Context) ([]domain.FinancingState, error)
}
