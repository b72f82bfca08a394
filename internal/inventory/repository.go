package inventory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfab/polyfab/internal/platform/db"
)

// Repository persists materials, balances and movements in PostgreSQL.
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
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const materialColumns = `id, code, name, category, unit, reorder_level, created_at, updated_at`

// GetMaterial loads one material by id.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id)
	return scanMaterial(row)
}

// GetMaterialByCode loads one material by code.
func (r *Repository) GetMaterialByCode(ctx context.Context, code string) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE code=$1`, code)
	return scanMaterial(row)
}

// ListMaterials pages the material master ordered by code.
func (r *Repository) ListMaterials(ctx context.Context, limit, offset int) ([]Material, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM materials`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	materials := []Material{}
	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		materials = append(materials, material)
	}
	return materials, total, rows.Err()
}

// GetBalance loads the balance row for one material.
func (r *Repository) GetBalance(ctx context.Context, materialID int64) (Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT material_id, qty, avg_cost, updated_at FROM material_balances WHERE material_id=$1`, materialID)
	return scanBalance(row)
}

// GetStockCard lists card entries for one material, newest first.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	query := `SELECT movement_code, type, posted_at, qty_in, qty_out, balance_qty, unit_cost, balance_cost, note
FROM material_stock_cards WHERE material_id=$1`
	args := []any{filter.MaterialID}
	argPos := 2
	if !filter.From.IsZero() {
		query += ` AND posted_at >= $2`
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		query += ` AND posted_at <= $` + strconv.Itoa(argPos)
		args = append(args, filter.To)
		argPos++
	}
	query += ` ORDER BY posted_at DESC, id DESC LIMIT $` + strconv.Itoa(argPos)
	args = append(args, filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []StockCardEntry{}
	for rows.Next() {
		var entry StockCardEntry
		var movementType string
		if err := rows.Scan(&entry.MovementCode, &movementType, &entry.PostedAt, &entry.QtyIn, &entry.QtyOut,
			&entry.BalanceQty, &entry.UnitCost, &entry.BalanceCost, &entry.Note); err != nil {
			return nil, err
		}
		entry.Type = MovementType(movementType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListLowStock returns materials at or below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.code, m.name, m.category, m.unit, m.reorder_level, m.created_at, m.updated_at,
b.material_id, b.qty, b.avg_cost, b.updated_at
FROM materials m
JOIN material_balances b ON b.material_id = m.id
WHERE m.reorder_level > 0 AND b.qty <= m.reorder_level
ORDER BY m.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		var category string
		if err := rows.Scan(&item.Material.ID, &item.Material.Code, &item.Material.Name, &category,
			&item.Material.Unit, &item.Material.ReorderLevel, &item.Material.CreatedAt, &item.Material.UpdatedAt,
			&item.Balance.MaterialID, &item.Balance.Qty, &item.Balance.AvgCost, &item.Balance.UpdatedAt); err != nil {
			return nil, err
		}
		item.Material.Category = MaterialCategory(category)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertMaterial(ctx context.Context, material Material) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO materials (code, name, category, unit, reorder_level, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`,
		material.Code, material.Name, string(material.Category), material.Unit, material.ReorderLevel).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) UpdateMaterial(ctx context.Context, material Material) error {
	tag, err := r.tx.Exec(ctx, `UPDATE materials SET name=$2, category=$3, unit=$4, reorder_level=$5, updated_at=NOW() WHERE id=$1`,
		material.ID, material.Name, string(material.Category), material.Unit, material.ReorderLevel)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1 FOR UPDATE`, id)
	return scanMaterial(row)
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, materialID int64) (Balance, error) {
	row := r.tx.QueryRow(ctx, `SELECT material_id, qty, avg_cost, updated_at FROM material_balances WHERE material_id=$1 FOR UPDATE`, materialID)
	return scanBalance(row)
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO material_balances (material_id, qty, avg_cost, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (material_id) DO UPDATE SET qty=EXCLUDED.qty, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		balance.MaterialID, balance.Qty, balance.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO material_movements
(code, type, material_id, qty, unit_cost, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		movement.Code, string(movement.Type), movement.MaterialID, movement.Qty, movement.UnitCost,
		movement.RefModule, movement.RefID, movement.Note, movement.PostedAt, movement.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertCardEntry(ctx context.Context, entry StockCardEntry, materialID, movementID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO material_stock_cards
(material_id, movement_id, movement_code, type, posted_at, qty_in, qty_out, balance_qty, unit_cost, balance_cost, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		materialID, movementID, entry.MovementCode, string(entry.Type), entry.PostedAt,
		entry.QtyIn, entry.QtyOut, entry.BalanceQty, entry.UnitCost, entry.BalanceCost, entry.Note)
	return err
}

func scanMaterial(row pgx.Row) (Material, error) {
	var material Material
	var category string
	err := row.Scan(&material.ID, &material.Code, &material.Name, &category, &material.Unit,
		&material.ReorderLevel, &material.CreatedAt, &material.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	material.Category = MaterialCategory(category)
	return material, nil
}

func scanBalance(row pgx.Row) (Balance, error) {
	var balance Balance
	err := row.Scan(&balance.MaterialID, &balance.Qty, &balance.AvgCost, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return balance, nil
}
