package machines

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfab/polyfab/internal/platform/db"
)

// Repository persists machines in PostgreSQL.
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

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("machines repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const machineColumns = `id, code, name, type, status, capacity_kg_day, notes, created_at, updated_at`

// Get loads one machine.
func (r *Repository) Get(ctx context.Context, id int64) (Machine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+machineColumns+` FROM machines WHERE id=$1`, id)
	return scanMachine(row)
}

// List pages machines matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Machine, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argPos := 1
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type=$%d", argPos))
		args = append(args, string(*filter.Type))
		argPos++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status=$%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM machines WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM machines WHERE %s ORDER BY code LIMIT $%d OFFSET $%d`,
		machineColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	machines := []Machine{}
	for rows.Next() {
		machine, err := scanMachine(rows)
		if err != nil {
			return nil, 0, err
		}
		machines = append(machines, machine)
	}
	return machines, total, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Machine, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+machineColumns+` FROM machines WHERE id=$1 FOR UPDATE`, id)
	return scanMachine(row)
}

func (r *txRepository) Insert(ctx context.Context, machine Machine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO machines (code, name, type, status, capacity_kg_day, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		machine.Code, machine.Name, string(machine.Type), string(machine.Status),
		machine.CapacityKgDay, machine.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) Update(ctx context.Context, machine Machine) error {
	tag, err := r.tx.Exec(ctx, `UPDATE machines SET name=$2, type=$3, status=$4, capacity_kg_day=$5, notes=$6, updated_at=NOW() WHERE id=$1`,
		machine.ID, machine.Name, string(machine.Type), string(machine.Status), machine.CapacityKgDay, machine.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMachine(row pgx.Row) (Machine, error) {
	var machine Machine
	var machineType, status string
	err := row.Scan(&machine.ID, &machine.Code, &machine.Name, &machineType, &status,
		&machine.CapacityKgDay, &machine.Notes, &machine.CreatedAt, &machine.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Machine{}, ErrNotFound
		}
		return Machine{}, err
	}
	machine.Type = MachineType(machineType)
	machine.Status = MachineStatus(status)
	return machine, nil
}
