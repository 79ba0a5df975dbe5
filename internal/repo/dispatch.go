package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Dispatch record states.
const (
	DispatchSearching = "searching"
	DispatchOffered   = "offered"
	DispatchFinished  = "finished"
	DispatchExhausted = "exhausted"
)

// DispatchRecord drives the coordinator loop: one row per order being
// matched, rescheduled with a growing radius until a driver accepts or the
// retry budget runs out.
type DispatchRecord struct {
	OrderID    int64
	State      string
	RadiusKM   float64
	Attempt    int
	NextTickAt time.Time
	UpdatedAt  time.Time
}

// DispatchRepo persists dispatch records. Rows are seeded by
// OrdersRepo.MarkReady inside the ready transition.
type DispatchRepo struct {
	db *sql.DB
}

func NewDispatchRepo(db *sql.DB) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// ListDue returns searching records whose next tick has arrived.
func (r *DispatchRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT order_id, state, radius_km, attempt, next_tick_at, updated_at FROM order_dispatch WHERE state = ? AND next_tick_at <= ? ORDER BY next_tick_at LIMIT ?`,
		DispatchSearching, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		if err := rows.Scan(&rec.OrderID, &rec.State, &rec.RadiusKM, &rec.Attempt, &rec.NextTickAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the dispatch record for an order.
func (r *DispatchRepo) Get(ctx context.Context, orderID int64) (DispatchRecord, error) {
	var rec DispatchRecord
	err := r.db.QueryRowContext(ctx, `SELECT order_id, state, radius_km, attempt, next_tick_at, updated_at FROM order_dispatch WHERE order_id = ?`, orderID).
		Scan(&rec.OrderID, &rec.State, &rec.RadiusKM, &rec.Attempt, &rec.NextTickAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DispatchRecord{}, ErrNotFound
	}
	if err != nil {
		return DispatchRecord{}, err
	}
	return rec, nil
}

// Reschedule grows the radius and pushes the next tick out, bumping the
// attempt counter.
func (r *DispatchRepo) Reschedule(ctx context.Context, orderID int64, radiusKM float64, nextTickAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_dispatch SET state = ?, radius_km = ?, attempt = attempt + 1, next_tick_at = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`,
		DispatchSearching, radiusKM, nextTickAt, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOffered parks the record while an offer is pending with a driver.
func (r *DispatchRepo) MarkOffered(ctx context.Context, orderID int64) error {
	return r.setState(ctx, orderID, DispatchOffered)
}

// Resume puts an offered record back into the searching queue after a
// rejection or an expired offer, for an immediate retick.
func (r *DispatchRepo) Resume(ctx context.Context, orderID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_dispatch SET state = ?, next_tick_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`,
		DispatchSearching, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish closes the record after an accepted offer or a cancellation.
func (r *DispatchRepo) Finish(ctx context.Context, orderID int64) error {
	return r.setState(ctx, orderID, DispatchFinished)
}

// MarkExhausted closes the record when the retry budget ran out with no
// eligible driver. The order stays ready; ops or the branch decide next.
func (r *DispatchRepo) MarkExhausted(ctx context.Context, orderID int64) error {
	return r.setState(ctx, orderID, DispatchExhausted)
}

func (r *DispatchRepo) setState(ctx context.Context, orderID int64, state string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_dispatch SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`, state, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
