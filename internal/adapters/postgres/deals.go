package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dealflow/internal/domain"
)

const dealColumns = `id, address, price, client_id, stage, stage_entered_at,
	year_built, property_type, financing_type, keywords, health, archived,
	version, created_at, updated_at`

// CreateDeal inserts the aggregate and its initial stage history atomically.
func (db *DB) CreateDeal(ctx context.Context, d domain.Deal) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO deals (id, address, price, client_id, stage, stage_entered_at,
			year_built, property_type, financing_type, keywords, health, archived,
			version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, d.ID, d.Address, d.Price, d.ClientID, d.Stage, d.StageEnteredAt,
		d.Attrs.YearBuilt, d.Attrs.PropertyType, d.Attrs.FinancingType, d.Attrs.Keywords,
		d.Health, d.Archived, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	for _, entry := range d.StageHistory {
		if _, err = tx.Exec(ctx, `
			INSERT INTO deal_stage_history (deal_id, stage, entered_at) VALUES ($1,$2,$3)
		`, d.ID, entry.Stage, entry.EnteredAt); err != nil {
			return err
		}
	}
	return nil
}

// GetDeal loads the aggregate including stage history.
func (db *DB) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	var d domain.Deal
	err := db.Pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id).Scan(
		&d.ID, &d.Address, &d.Price, &d.ClientID, &d.Stage, &d.StageEnteredAt,
		&d.Attrs.YearBuilt, &d.Attrs.PropertyType, &d.Attrs.FinancingType, &d.Attrs.Keywords,
		&d.Health, &d.Archived, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Deal{}, err
	}
	d.StageHistory, err = db.stageHistory(ctx, id)
	return d, err
}

// UpdateDeal writes conditionally on version and appends any new stage
// history entries in the same transaction.
func (db *DB) UpdateDeal(ctx context.Context, d domain.Deal) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE deals SET address=$2, price=$3, client_id=$4, stage=$5,
			stage_entered_at=$6, year_built=$7, property_type=$8,
			financing_type=$9, keywords=$10, health=$11, archived=$12,
			version=version+1, updated_at=$13
		WHERE id=$1 AND version=$14
	`, d.ID, d.Address, d.Price, d.ClientID, d.Stage, d.StageEnteredAt,
		d.Attrs.YearBuilt, d.Attrs.PropertyType, d.Attrs.FinancingType, d.Attrs.Keywords,
		d.Health, d.Archived, d.UpdatedAt, d.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = versionConflictOrMissing(ctx, tx, `SELECT 1 FROM deals WHERE id=$1`, d.ID)
		return err
	}

	var have int
	if err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM deal_stage_history WHERE deal_id=$1
	`, d.ID).Scan(&have); err != nil {
		return err
	}
	for i := have; i < len(d.StageHistory); i++ {
		entry := d.StageHistory[i]
		if _, err = tx.Exec(ctx, `
			INSERT INTO deal_stage_history (deal_id, stage, entered_at) VALUES ($1,$2,$3)
		`, d.ID, entry.Stage, entry.EnteredAt); err != nil {
			return err
		}
	}
	return nil
}

// ListOpenDeals returns unarchived deals in non-terminal stages.
func (db *DB) ListOpenDeals(ctx context.Context) ([]domain.Deal, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE archived = FALSE AND stage NOT IN ('closed', 'fallen_through')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Deal
	for rows.Next() {
		var d domain.Deal
		if err := rows.Scan(
			&d.ID, &d.Address, &d.Price, &d.ClientID, &d.Stage, &d.StageEnteredAt,
			&d.Attrs.YearBuilt, &d.Attrs.PropertyType, &d.Attrs.FinancingType, &d.Attrs.Keywords,
			&d.Health, &d.Archived, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) stageHistory(ctx context.Context, dealID string) ([]domain.StageEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT stage, entered_at FROM deal_stage_history
		WHERE deal_id=$1 ORDER BY entered_at
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StageEntry
	for rows.Next() {
		var e domain.StageEntry
		if err := rows.Scan(&e.Stage, &e.EnteredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// versionConflictOrMissing distinguishes a lost race from a missing row
// after a conditional update touched nothing.
func versionConflictOrMissing(ctx context.Context, q rowQuerier, existsQuery string, id string) error {
	var one int
	err := q.QueryRow(ctx, existsQuery, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}
