package production

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfab/polyfab/internal/platform/db"
)

// Repository persists job orders and rolls in PostgreSQL.
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
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, code, customer_name, product_name, quantity, produced_quantity, waste_quantity,
production_status, status, machine_id, notes, created_by, created_at, updated_at`

const rollColumns = `id, job_order_id, roll_number, extruding_qty, printing_qty, cutting_qty, status, qr_ref,
extruded_by, extruded_at, printed_by, printed_at, cut_by, cut_at, received_by, received_at, created_at, updated_at`

// GetOrder loads a single job order header.
func (r *Repository) GetOrder(ctx context.Context, id int64) (JobOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM job_orders WHERE id=$1`, id)
	return scanOrder(row)
}

// ListOrders returns job orders matching the filter plus the total count.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]JobOrder, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argPos := 1
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status=$%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.ProductionStatus != nil {
		conditions = append(conditions, fmt.Sprintf("production_status=$%d", argPos))
		args = append(args, string(*filter.ProductionStatus))
		argPos++
	}
	if filter.MachineID != nil {
		conditions = append(conditions, fmt.Sprintf("machine_id=$%d", argPos))
		args = append(args, *filter.MachineID)
		argPos++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM job_orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []JobOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// ListRolls returns a job order's rolls in roll-number order.
func (r *Repository) ListRolls(ctx context.Context, orderID int64) ([]Roll, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rollColumns+` FROM rolls WHERE job_order_id=$1 ORDER BY roll_number ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRolls(rows)
}

// ListActiveOrderIDs returns ids of orders still moving through production.
func (r *Repository) ListActiveOrderIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM job_orders WHERE status IN ('pending','in_progress') ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (JobOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM job_orders WHERE id=$1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (r *txRepository) InsertOrder(ctx context.Context, order JobOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO job_orders
(code, customer_name, product_name, quantity, production_status, status, machine_id, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		order.Code, order.CustomerName, order.ProductName, order.TargetQty,
		string(order.ProductionStatus), string(order.Status), order.MachineID, order.Notes, order.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateOrder(ctx context.Context, order JobOrder) error {
	tag, err := r.tx.Exec(ctx, `UPDATE job_orders SET
customer_name=$2, product_name=$3, quantity=$4, production_status=$5, machine_id=$6, notes=$7, updated_at=NOW()
WHERE id=$1`,
		order.ID, order.CustomerName, order.ProductName, order.TargetQty,
		string(order.ProductionStatus), order.MachineID, order.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE job_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateCachedTotals(ctx context.Context, id int64, produced, waste float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE job_orders SET produced_quantity=$2, waste_quantity=$3, updated_at=NOW() WHERE id=$1`,
		id, produced, waste)
	return err
}

func (r *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM job_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) GetRollForUpdate(ctx context.Context, rollID int64) (Roll, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+rollColumns+` FROM rolls WHERE id=$1 FOR UPDATE`, rollID)
	return scanRoll(row)
}

func (r *txRepository) NextRollNumber(ctx context.Context, orderID int64) (int, error) {
	var number int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(roll_number),0)+1 FROM rolls WHERE job_order_id=$1`, orderID).Scan(&number)
	return number, err
}

func (r *txRepository) InsertRoll(ctx context.Context, roll Roll) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO rolls
(job_order_id, roll_number, extruding_qty, status, qr_ref, extruded_by, extruded_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		roll.JobOrderID, roll.RollNumber, roll.ExtrudingQty, string(roll.Status), roll.QRRef,
		roll.ExtrudedBy, roll.ExtrudedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateRoll(ctx context.Context, roll Roll) error {
	tag, err := r.tx.Exec(ctx, `UPDATE rolls SET
extruding_qty=$2, printing_qty=$3, cutting_qty=$4, status=$5, qr_ref=$6,
printed_by=$7, printed_at=$8, cut_by=$9, cut_at=$10, received_by=$11, received_at=$12, updated_at=NOW()
WHERE id=$1`,
		roll.ID, roll.ExtrudingQty, roll.PrintingQty, roll.CuttingQty, string(roll.Status), roll.QRRef,
		roll.PrintedBy, roll.PrintedAt, roll.CutBy, roll.CutAt, roll.ReceivedBy, roll.ReceivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteRoll(ctx context.Context, rollID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM rolls WHERE id=$1`, rollID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) ListRolls(ctx context.Context, orderID int64) ([]Roll, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+rollColumns+` FROM rolls WHERE job_order_id=$1 ORDER BY roll_number ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRolls(rows)
}

func scanOrder(row pgx.Row) (JobOrder, error) {
	var order JobOrder
	var prodStatus, status string
	err := row.Scan(&order.ID, &order.Code, &order.CustomerName, &order.ProductName, &order.TargetQty,
		&order.ProducedQty, &order.WasteQty, &prodStatus, &status, &order.MachineID, &order.Notes,
		&order.CreatedBy, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JobOrder{}, ErrNotFound
		}
		return JobOrder{}, err
	}
	order.ProductionStatus = ProductionStatus(prodStatus)
	order.Status = OrderStatus(status)
	return order, nil
}

func scanRoll(row pgx.Row) (Roll, error) {
	var roll Roll
	var status string
	err := row.Scan(&roll.ID, &roll.JobOrderID, &roll.RollNumber, &roll.ExtrudingQty, &roll.PrintingQty,
		&roll.CuttingQty, &status, &roll.QRRef, &roll.ExtrudedBy, &roll.ExtrudedAt,
		&roll.PrintedBy, &roll.PrintedAt, &roll.CutBy, &roll.CutAt,
		&roll.ReceivedBy, &roll.ReceivedAt, &roll.CreatedAt, &roll.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Roll{}, ErrNotFound
		}
		return Roll{}, err
	}
	roll.Status = RollStatus(status)
	return roll, nil
}

func collectRolls(rows pgx.Rows) ([]Roll, error) {
	rolls := []Roll{}
	for rows.Next() {
		roll, err := scanRoll(rows)
		if err != nil {
			return nil, err
		}
		rolls = append(rolls, roll)
	}
	return rolls, rows.Err()
}
