package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver is the persistent driver record. Live coordinates live in Redis;
// this row carries identity, availability and the cumulative rating.
type Driver struct {
	ID             int64
	Name           string
	Phone          string
	City           string
	IsOnline       bool
	CurrentOrderID sql.NullInt64
	RatingTotal    int64
	RatingCount    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DriversRepo persists drivers and their ratings.
type DriversRepo struct {
	db *sql.DB
}

func NewDriversRepo(db *sql.DB) *DriversRepo {
	return &DriversRepo{db: db}
}

const driverColumns = `id, name, phone, city, is_online, current_order_id, rating_total, rating_count, created_at, updated_at`

// Get returns a driver by id.
func (r *DriversRepo) Get(ctx context.Context, id int64) (Driver, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id)
	return scanDriver(row)
}

// Reserve claims the driver for an order with a single conditional update.
// Losing the race against another dispatcher tick returns
// ErrDriverUnavailable.
func (r *DriversRepo) Reserve(ctx context.Context, driverID, orderID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE drivers SET current_order_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_online = 1 AND current_order_id IS NULL`, orderID, driverID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDriverUnavailable
	}
	return nil
}

// Release frees the driver, guarded on the same order still holding them.
func (r *DriversRepo) Release(ctx context.Context, driverID, orderID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE drivers SET current_order_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND current_order_id = ?`, driverID, orderID)
	return err
}

// SetOnline flips the availability flag. Going offline does not touch an
// in-flight assignment; the order keeps its driver until delivered.
func (r *DriversRepo) SetOnline(ctx context.Context, driverID int64, online bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE drivers SET is_online = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, online, driverID)
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

// RateDriver stores a customer's stars for a delivered order and moves the
// cumulative counters in the same transaction. A second rating from the
// same customer replaces the first through the delta path.
func (r *DriversRepo) RateDriver(ctx context.Context, orderID, driverID, customerID int64, stars int) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("stars must be between 1 and 5")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var old int
	err = tx.QueryRowContext(ctx, `SELECT stars FROM driver_ratings WHERE order_id = ? AND customer_id = ? FOR UPDATE`, orderID, customerID).Scan(&old)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err = tx.ExecContext(ctx, `INSERT INTO driver_ratings (order_id, driver_id, customer_id, stars) VALUES (?,?,?,?)`, orderID, driverID, customerID, stars); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `UPDATE drivers SET rating_total = rating_total + ?, rating_count = rating_count + 1 WHERE id = ?`, stars, driverID); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if _, err = tx.ExecContext(ctx, `UPDATE driver_ratings SET stars = ? WHERE order_id = ? AND customer_id = ?`, stars, orderID, customerID); err != nil {
			return err
		}
		if err = applyRatingDelta(ctx, tx, driverID, old, stars); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// applyRatingDelta moves the cumulative counters when an existing rating
// changes. Always called at the site that persists the rating row, inside
// the same transaction.
func applyRatingDelta(ctx context.Context, tx *sql.Tx, driverID int64, oldStars, newStars int) error {
	_, err := tx.ExecContext(ctx, `UPDATE drivers SET rating_total = rating_total + ? WHERE id = ?`, newStars-oldStars, driverID)
	return err
}

// RatingInfo is the per-driver slice the geo re-rank consumes.
type RatingInfo struct {
	RatingTotal int64
	RatingCount int64
}

// RatingsByIDs returns the cumulative rating counters for a candidate set.
func (r *DriversRepo) RatingsByIDs(ctx context.Context, ids []int64) (map[int64]RatingInfo, error) {
	out := make(map[int64]RatingInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, rating_total, rating_count FROM drivers WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var info RatingInfo
		if err := rows.Scan(&id, &info.RatingTotal, &info.RatingCount); err != nil {
			return nil, err
		}
		out[id] = info
	}
	return out, rows.Err()
}

// AssignmentMismatch describes one broken driver-order link found by the
// consistency check.
type AssignmentMismatch struct {
	DriverID int64
	OrderID  int64
	Detail   string
}

// CheckAssignmentConsistency verifies that a driver has current_order_id
// set if and only if that order points back via driver_id and sits in an
// active status. The two foreign keys are only ever mutated together inside
// one transaction; this check exists for tests and ops, not as a repair
// path.
func (r *DriversRepo) CheckAssignmentConsistency(ctx context.Context) ([]AssignmentMismatch, error) {
	var out []AssignmentMismatch

	// drivers pointing at orders that do not point back or are terminal
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.current_order_id, o.driver_id, o.status
		FROM drivers d
		LEFT JOIN orders o ON o.id = d.current_order_id
		WHERE d.current_order_id IS NOT NULL
		  AND (o.id IS NULL OR o.driver_id IS NULL OR o.driver_id != d.id
		       OR o.status IN ('delivered','cancelled'))`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m AssignmentMismatch
		var orderDriver sql.NullInt64
		var status sql.NullString
		if err := rows.Scan(&m.DriverID, &m.OrderID, &orderDriver, &status); err != nil {
			return nil, err
		}
		m.Detail = fmt.Sprintf("driver holds order but order has driver_id=%v status=%v", orderDriver, status)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// active assigned orders whose driver does not hold them
	rows2, err := r.db.QueryContext(ctx, `
		SELECT o.driver_id, o.id, d.current_order_id
		FROM orders o
		JOIN drivers d ON d.id = o.driver_id
		WHERE o.driver_id IS NOT NULL
		  AND o.status IN ('driver_assigned','picked_up','on_the_way')
		  AND (d.current_order_id IS NULL OR d.current_order_id != o.id)`)
	if err != nil {
		return nil, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var m AssignmentMismatch
		var held sql.NullInt64
		if err := rows2.Scan(&m.DriverID, &m.OrderID, &held); err != nil {
			return nil, err
		}
		m.Detail = fmt.Sprintf("order assigned but driver holds %v", held)
		out = append(out, m)
	}
	return out, rows2.Err()
}

func scanDriver(row rowScanner) (Driver, error) {
	var d Driver
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.City, &d.IsOnline, &d.CurrentOrderID, &d.RatingTotal, &d.RatingCount, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Driver{}, ErrNotFound
	}
	if err != nil {
		return Driver{}, err
	}
	return d, nil
}
