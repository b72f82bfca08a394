package mixing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfab/polyfab/internal/platform/db"
)

// Repository persists formulas and batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("mixing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetFormula loads a formula with its lines.
func (r *Repository) GetFormula(ctx context.Context, id int64) (Formula, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, active, created_by, created_at, updated_at FROM mix_formulas WHERE id=$1`, id)
	formula, err := scanFormula(row)
	if err != nil {
		return Formula{}, err
	}
	lines, err := r.formulaLines(ctx, id)
	if err != nil {
		return Formula{}, err
	}
	formula.Lines = lines
	return formula, nil
}

// ListFormulas lists recipes ordered by code.
func (r *Repository) ListFormulas(ctx context.Context, activeOnly bool) ([]Formula, error) {
	query := `SELECT id, code, name, active, created_by, created_at, updated_at FROM mix_formulas`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY code`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	formulas := []Formula{}
	for rows.Next() {
		formula, err := scanFormula(rows)
		if err != nil {
			return nil, err
		}
		formulas = append(formulas, formula)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range formulas {
		lines, err := r.formulaLines(ctx, formulas[i].ID)
		if err != nil {
			return nil, err
		}
		formulas[i].Lines = lines
	}
	return formulas, nil
}

// GetBatch loads one batch with its lines.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, formula_id, job_order_id, total_kg, mixed_by, mixed_at FROM mix_batches WHERE id=$1`, id)
	batch, err := scanBatch(row)
	if err != nil {
		return Batch{}, err
	}
	lines, err := r.batchLines(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	batch.Lines = lines
	return batch, nil
}

// ListBatches pages batches, newest first.
func (r *Repository) ListBatches(ctx context.Context, jobOrderID *int64, limit, offset int) ([]Batch, int, error) {
	where := ``
	args := []any{}
	if jobOrderID != nil {
		where = ` WHERE job_order_id=$1`
		args = append(args, *jobOrderID)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mix_batches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, code, formula_id, job_order_id, total_kg, mixed_by, mixed_at FROM mix_batches` + where
	if jobOrderID != nil {
		query += ` ORDER BY mixed_at DESC LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY mixed_at DESC LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range batches {
		lines, err := r.batchLines(ctx, batches[i].ID)
		if err != nil {
			return nil, 0, err
		}
		batches[i].Lines = lines
	}
	return batches, total, nil
}

func (r *Repository) formulaLines(ctx context.Context, formulaID int64) ([]FormulaLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, formula_id, material_id, percent FROM mix_formula_lines WHERE formula_id=$1 ORDER BY id`, formulaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []FormulaLine{}
	for rows.Next() {
		var line FormulaLine
		if err := rows.Scan(&line.ID, &line.FormulaID, &line.MaterialID, &line.Percent); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) batchLines(ctx context.Context, batchID int64) ([]BatchLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, material_id, qty FROM mix_batch_lines WHERE batch_id=$1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []BatchLine{}
	for rows.Next() {
		var line BatchLine
		if err := rows.Scan(&line.ID, &line.BatchID, &line.MaterialID, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertFormula(ctx context.Context, formula Formula) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO mix_formulas (code, name, active, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`,
		formula.Code, formula.Name, formula.Active, formula.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) ReplaceFormulaLines(ctx context.Context, formulaID int64, lines []FormulaLine) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM mix_formula_lines WHERE formula_id=$1`, formulaID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO mix_formula_lines (formula_id, material_id, percent) VALUES ($1,$2,$3)`,
			formulaID, line.MaterialID, line.Percent); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetFormulaForUpdate(ctx context.Context, id int64) (Formula, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, code, name, active, created_by, created_at, updated_at FROM mix_formulas WHERE id=$1 FOR UPDATE`, id)
	return scanFormula(row)
}

func (r *txRepository) UpdateFormula(ctx context.Context, formula Formula) error {
	tag, err := r.tx.Exec(ctx, `UPDATE mix_formulas SET name=$2, active=$3, updated_at=NOW() WHERE id=$1`,
		formula.ID, formula.Name, formula.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO mix_batches (code, formula_id, job_order_id, total_kg, mixed_by, mixed_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		batch.Code, batch.FormulaID, batch.JobOrderID, batch.TotalKg, batch.MixedBy, batch.MixedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertBatchLines(ctx context.Context, batchID int64, lines []BatchLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO mix_batch_lines (batch_id, material_id, qty) VALUES ($1,$2,$3)`,
			batchID, line.MaterialID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func scanFormula(row pgx.Row) (Formula, error) {
	var formula Formula
	err := row.Scan(&formula.ID, &formula.Code, &formula.Name, &formula.Active,
		&formula.CreatedBy, &formula.CreatedAt, &formula.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Formula{}, ErrNotFound
		}
		return Formula{}, err
	}
	return formula, nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var batch Batch
	err := row.Scan(&batch.ID, &batch.Code, &batch.FormulaID, &batch.JobOrderID,
		&batch.TotalKg, &batch.MixedBy, &batch.MixedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return batch, nil
}
