package tracking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository resolves roll references and persists scan events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrRollNotFound indicates an unknown roll id.
var ErrRollNotFound = errors.New("tracking: roll not found")

// QRRefForRoll returns the QR reference stored on a roll.
func (r *Repository) QRRefForRoll(ctx context.Context, rollID int64) (string, error) {
	var ref string
	err := r.pool.QueryRow(ctx, `SELECT qr_ref FROM rolls WHERE id=$1`, rollID).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRollNotFound
		}
		return "", err
	}
	return ref, nil
}

// RollOrder returns the job order a roll belongs to.
func (r *Repository) RollOrder(ctx context.Context, rollID int64) (int64, error) {
	var orderID int64
	err := r.pool.QueryRow(ctx, `SELECT job_order_id FROM rolls WHERE id=$1`, rollID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRollNotFound
		}
		return 0, err
	}
	return orderID, nil
}

// SetRollRef stores a freshly issued QR reference on a roll.
func (r *Repository) SetRollRef(ctx context.Context, rollID int64, ref string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rolls SET qr_ref=$2, updated_at=NOW() WHERE id=$1`, rollID, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRollNotFound
	}
	return nil
}

// InsertScan persists one scan event.
func (r *Repository) InsertScan(ctx context.Context, event ScanEvent) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO roll_scans (roll_id, job_order_id, station, scanned_by, scanned_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		event.RollID, event.JobOrderID, event.Station, event.ScannedBy, event.ScannedAt).Scan(&id)
	return id, err
}

// ListScans lists scan events for one roll, oldest first.
func (r *Repository) ListScans(ctx context.Context, rollID int64) ([]ScanEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, roll_id, job_order_id, station, scanned_by, scanned_at
FROM roll_scans WHERE roll_id=$1 ORDER BY scanned_at ASC, id ASC`, rollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []ScanEvent{}
	for rows.Next() {
		var event ScanEvent
		if err := rows.Scan(&event.ID, &event.RollID, &event.JobOrderID, &event.Station,
			&event.ScannedBy, &event.ScannedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
