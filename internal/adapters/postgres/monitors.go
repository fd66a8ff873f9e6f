package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dealflow/internal/domain"
)

// uniqueViolation is the postgres error code for a duplicate key.
const uniqueViolation = "23505"

// Negotiation ledger

// AppendRound inserts a round; the (deal, round number) unique constraint
// turns a concurrent duplicate append into ErrConflictingRound.
func (db *DB) AppendRound(ctx context.Context, r domain.NegotiationRound) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO negotiation_rounds (id, deal_id, round_number, side, status,
			offer_price, concessions, proposed_closing, ai_summary, reopened,
			version, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, r.ID, r.DealID, r.RoundNumber, r.Side, r.Status,
		r.Terms.OfferPrice, r.Terms.Concessions, r.Terms.ProposedClosing, r.AISummary,
		r.Reopened, r.Version, r.CreatedAt, r.ResolvedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: round %d already exists", domain.ErrConflictingRound, r.RoundNumber)
	}
	return err
}

func (db *DB) GetRound(ctx context.Context, id string) (domain.NegotiationRound, error) {
	var r domain.NegotiationRound
	err := db.Pool.QueryRow(ctx, `
		SELECT id, deal_id, round_number, side, status, offer_price, concessions,
			proposed_closing, ai_summary, reopened, version, created_at, resolved_at
		FROM negotiation_rounds WHERE id=$1
	`, id).Scan(&r.ID, &r.DealID, &r.RoundNumber, &r.Side, &r.Status,
		&r.Terms.OfferPrice, &r.Terms.Concessions, &r.Terms.ProposedClosing,
		&r.AISummary, &r.Reopened, &r.Version, &r.CreatedAt, &r.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NegotiationRound{}, domain.ErrNotFound
	}
	return r, err
}

func (db *DB) UpdateRound(ctx context.Context, r domain.NegotiationRound) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE negotiation_rounds SET status=$2, ai_summary=$3, reopened=$4,
			resolved_at=$5, version=version+1
		WHERE id=$1 AND version=$6
	`, r.ID, r.Status, r.AISummary, r.Reopened, r.ResolvedAt, r.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrMissing(ctx, db.Pool, `SELECT 1 FROM negotiation_rounds WHERE id=$1`, r.ID)
	}
	return nil
}

func (db *DB) ListRoundsByDeal(ctx context.Context, dealID string) ([]domain.NegotiationRound, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, deal_id, round_number, side, status, offer_price, concessions,
			proposed_closing, ai_summary, reopened, version, created_at, resolved_at
		FROM negotiation_rounds WHERE deal_id=$1 ORDER BY round_number
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NegotiationRound
	for rows.Next() {
		var r domain.NegotiationRound
		if err := rows.Scan(&r.ID, &r.DealID, &r.RoundNumber, &r.Side, &r.Status,
			&r.Terms.OfferPrice, &r.Terms.Concessions, &r.Terms.ProposedClosing,
			&r.AISummary, &r.Reopened, &r.Version, &r.CreatedAt, &r.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Signature monitor

func (db *DB) CreateEnvelope(ctx context.Context, e domain.SignatureEnvelope) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO signature_envelopes (id, deal_id, provider_id, recipient,
			document_name, status, viewed_at, signed_at, last_nudge_at, nudge_failed,
			version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.ID, e.DealID, e.ProviderID, e.Recipient, e.DocumentName, e.Status,
		e.ViewedAt, e.SignedAt, e.LastNudgeAt, e.NudgeFailed, e.Version, e.CreatedAt, e.UpdatedAt)
	return err
}

func (db *DB) GetEnvelope(ctx context.Context, id string) (domain.SignatureEnvelope, error) {
	var e domain.SignatureEnvelope
	err := db.Pool.QueryRow(ctx, `
		SELECT id, deal_id, provider_id, recipient, document_name, status,
			viewed_at, signed_at, last_nudge_at, nudge_failed, version, created_at, updated_at
		FROM signature_envelopes WHERE id=$1
	`, id).Scan(&e.ID, &e.DealID, &e.ProviderID, &e.Recipient, &e.DocumentName, &e.Status,
		&e.ViewedAt, &e.SignedAt, &e.LastNudgeAt, &e.NudgeFailed, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SignatureEnvelope{}, domain.ErrNotFound
	}
	return e, err
}

func (db *DB) UpdateEnvelope(ctx context.Context, e domain.SignatureEnvelope) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE signature_envelopes SET status=$2, viewed_at=$3, signed_at=$4,
			last_nudge_at=$5, nudge_failed=$6, version=version+1, updated_at=$7
		WHERE id=$1 AND version=$8
	`, e.ID, e.Status, e.ViewedAt, e.SignedAt, e.LastNudgeAt, e.NudgeFailed, e.UpdatedAt, e.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrMissing(ctx, db.Pool, `SELECT 1 FROM signature_envelopes WHERE id=$1`, e.ID)
	}
	return nil
}

func (db *DB) ListOpenEnvelopes(ctx context.Context) ([]domain.SignatureEnvelope, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT e.id, e.deal_id, e.provider_id, e.recipient, e.document_name, e.status,
			e.viewed_at, e.signed_at, e.last_nudge_at, e.nudge_failed, e.version, e.created_at, e.updated_at
		FROM signature_envelopes e
		JOIN deals d ON d.id = e.deal_id
		WHERE e.status NOT IN ('completed', 'declined', 'voided')
			AND d.archived = FALSE AND d.stage NOT IN ('closed', 'fallen_through')
		ORDER BY e.created_at, e.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SignatureEnvelope
	for rows.Next() {
		var e domain.SignatureEnvelope
		if err := rows.Scan(&e.ID, &e.DealID, &e.ProviderID, &e.Recipient, &e.DocumentName,
			&e.Status, &e.ViewedAt, &e.SignedAt, &e.LastNudgeAt, &e.NudgeFailed,
			&e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Financing monitor

func (db *DB) CreateFinancing(ctx context.Context, f domain.FinancingState) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO financing_states (deal_id, lender_name, lender_contact, loan_stage,
			commitment_date, appraisal_status, conditions_remaining, last_update_text,
			last_update_at, last_nudge_at, nudge_failed, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, f.DealID, f.LenderName, f.LenderContact, f.LoanStage,
		f.CommitmentDate, f.AppraisalStatus, f.ConditionsRemaining, f.LastUpdateText,
		f.LastUpdateAt, f.LastNudgeAt, f.NudgeFailed, f.Version, f.CreatedAt, f.UpdatedAt)
	return err
}

func (db *DB) GetFinancing(ctx context.Context, dealID string) (domain.FinancingState, error) {
	var f domain.FinancingState
	err := db.Pool.QueryRow(ctx, `
		SELECT deal_id, lender_name, lender_contact, loan_stage, commitment_date,
			appraisal_status, conditions_remaining, last_update_text, last_update_at,
			last_nudge_at, nudge_failed, version, created_at, updated_at
		FROM financing_states WHERE deal_id=$1
	`, dealID).Scan(&f.DealID, &f.LenderName, &f.LenderContact, &f.LoanStage, &f.CommitmentDate,
		&f.AppraisalStatus, &f.ConditionsRemaining, &f.LastUpdateText, &f.LastUpdateAt,
		&f.LastNudgeAt, &f.NudgeFailed, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FinancingState{}, domain.ErrNotFound
	}
	return f, err
}

func (db *DB) UpdateFinancing(ctx context.Context, f domain.FinancingState) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE financing_states SET lender_name=$2, lender_contact=$3, loan_stage=$4,
			commitment_date=$5, appraisal_status=$6, conditions_remaining=$7,
			last_update_text=$8, last_update_at=$9, last_nudge_at=$10, nudge_failed=$11,
			version=version+1, updated_at=$12
		WHERE deal_id=$1 AND version=$13
	`, f.DealID, f.LenderName, f.LenderContact, f.LoanStage,
		f.CommitmentDate, f.AppraisalStatus, f.ConditionsRemaining,
		f.LastUpdateText, f.LastUpdateAt, f.LastNudgeAt, f.NudgeFailed, f.UpdatedAt, f.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrMissing(ctx, db.Pool, `SELECT 1 FROM financing_states WHERE deal_id=$1`, f.DealID)
	}
	return nil
}

func (db *DB) AppendFinancingLog(ctx context.Context, entry domain.FinancingLogEntry) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO financing_log (id, deal_id, text, stage_after, recorded_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.DealID, entry.Text, entry.StageAfter, entry.RecordedAt)
	return err
}

func (db *DB) ListFinancingLog(ctx context.Context, dealID string) ([]domain.FinancingLogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, deal_id, text, stage_after, recorded_at
		FROM financing_log WHERE deal_id=$1 ORDER BY recorded_at, id
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FinancingLogEntry
	for rows.Next() {
		var e domain.FinancingLogEntry
		if err := rows.Scan(&e.ID, &e.DealID, &e.Text, &e.StageAfter, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) ListActiveFinancing(ctx context.Context) ([]domain.FinancingState, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT f.deal_id, f.lender_name, f.lender_contact, f.loan_stage, f.commitment_date,
			f.appraisal_status, f.conditions_remaining, f.last_update_text, f.last_update_at,
			f.last_nudge_at, f.nudge_failed, f.version, f.created_at, f.updated_at
		FROM financing_states f
		JOIN deals d ON d.id = f.deal_id
		WHERE d.archived = FALSE AND d.stage NOT IN ('closed', 'fallen_through')
		ORDER BY f.deal_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FinancingState
	for rows.Next() {
		var f domain.FinancingState
		if err := rows.Scan(&f.DealID, &f.LenderName, &f.LenderContact, &f.LoanStage,
			&f.CommitmentDate, &f.AppraisalStatus, &f.ConditionsRemaining,
			&f.LastUpdateText, &f.LastUpdateAt, &f.LastNudgeAt, &f.NudgeFailed,
			&f.Version, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
