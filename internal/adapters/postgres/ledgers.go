package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dealflow/internal/domain"
)

// Task ledger

// CreateTask inserts a task. Derived tasks ride the partial unique index on
// (deal, source rule, title), so a concurrent duplicate derivation is a
// silent no-op.
func (db *DB) CreateTask(ctx context.Context, t domain.TransactionTask) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transaction_tasks (id, deal_id, phase, title, priority, category,
			due_date, assignee_role, status, source_rule, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (deal_id, source_rule, title) WHERE source_rule <> '' DO NOTHING
	`, t.ID, t.DealID, t.Phase, t.Title, t.Priority, t.Category,
		t.DueDate, t.AssigneeRole, t.Status, t.SourceRule, t.Version, t.CreatedAt, t.UpdatedAt)
	return err
}

func (db *DB) GetTask(ctx context.Context, id string) (domain.TransactionTask, error) {
	var t domain.TransactionTask
	err := db.Pool.QueryRow(ctx, `
		SELECT id, deal_id, phase, title, priority, category, due_date,
			assignee_role, status, source_rule, version, created_at, updated_at
		FROM transaction_tasks WHERE id=$1
	`, id).Scan(&t.ID, &t.DealID, &t.Phase, &t.Title, &t.Priority, &t.Category,
		&t.DueDate, &t.AssigneeRole, &t.Status, &t.SourceRule, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TransactionTask{}, domain.ErrNotFound
	}
	return t, err
}

func (db *DB) UpdateTask(ctx context.Context, t domain.TransactionTask) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transaction_tasks SET phase=$2, title=$3, priority=$4, category=$5,
			due_date=$6, assignee_role=$7, status=$8, version=version+1, updated_at=$9
		WHERE id=$1 AND version=$10
	`, t.ID, t.Phase, t.Title, t.Priority, t.Category,
		t.DueDate, t.AssigneeRole, t.Status, t.UpdatedAt, t.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrMissing(ctx, db.Pool, `SELECT 1 FROM transaction_tasks WHERE id=$1`, t.ID)
	}
	return nil
}

func (db *DB) ListTasksByDeal(ctx context.Context, dealID string) ([]domain.TransactionTask, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, deal_id, phase, title, priority, category, due_date,
			assignee_role, status, source_rule, version, created_at, updated_at
		FROM transaction_tasks WHERE deal_id=$1 ORDER BY created_at, id
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionTask
	for rows.Next() {
		var t domain.TransactionTask
		if err := rows.Scan(&t.ID, &t.DealID, &t.Phase, &t.Title, &t.Priority, &t.Category,
			&t.DueDate, &t.AssigneeRole, &t.Status, &t.SourceRule, &t.Version,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Compliance ledger

func (db *DB) CreateComplianceItem(ctx context.Context, c domain.ComplianceChecklistItem) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO compliance_items (id, deal_id, document_name, status, source_rule,
			document_handle, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (deal_id, source_rule, document_name) DO NOTHING
	`, c.ID, c.DealID, c.DocumentName, c.Status, c.SourceRule,
		c.DocumentHandle, c.Version, c.CreatedAt, c.UpdatedAt)
	return err
}

func (db *DB) GetComplianceItem(ctx context.Context, id string) (domain.ComplianceChecklistItem, error) {
	var c domain.ComplianceChecklistItem
	err := db.Pool.QueryRow(ctx, `
		SELECT id, deal_id, document_name, status, source_rule, document_handle,
			version, created_at, updated_at
		FROM compliance_items WHERE id=$1
	`, id).Scan(&c.ID, &c.DealID, &c.DocumentName, &c.Status, &c.SourceRule,
		&c.DocumentHandle, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ComplianceChecklistItem{}, domain.ErrNotFound
	}
	return c, err
}

func (db *DB) UpdateComplianceItem(ctx context.Context, c domain.ComplianceChecklistItem) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE compliance_items SET status=$2, document_handle=$3,
			version=version+1, updated_at=$4
		WHERE id=$1 AND version=$5
	`, c.ID, c.Status, c.DocumentHandle, c.UpdatedAt, c.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrMissing(ctx, db.Pool, `SELECT 1 FROM compliance_items WHERE id=$1`, c.ID)
	}
	return nil
}

func (db *DB) ListComplianceByDeal(ctx context.Context, dealID string) ([]domain.ComplianceChecklistItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, deal_id, document_name, status, source_rule, document_handle,
			version, created_at, updated_at
		FROM compliance_items WHERE deal_id=$1 ORDER BY created_at, id
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ComplianceChecklistItem
	for rows.Next() {
		var c domain.ComplianceChecklistItem
		if err := rows.Scan(&c.ID, &c.DealID, &c.DocumentName, &c.Status, &c.SourceRule,
			&c.DocumentHandle, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
