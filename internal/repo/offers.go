package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Offer states.
const (
	OfferProposed = "proposed"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
	OfferExpired  = "expired"
)

// Offer is one proposal of an order to a driver. Rejected and expired
// offers stay on record and exclude the driver from later rounds of the
// same order.
type Offer struct {
	ID        int64
	OrderID   int64
	DriverID  int64
	State     string
	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OffersRepo manages dispatch offers.
type OffersRepo struct {
	db *sql.DB
}

func NewOffersRepo(db *sql.DB) *OffersRepo {
	return &OffersRepo{db: db}
}

// Create records a proposed offer with its expiry deadline.
func (r *OffersRepo) Create(ctx context.Context, orderID, driverID int64, ttlAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO order_offers (order_id, driver_id, state, ttl_at) VALUES (?,?,?,?) ON DUPLICATE KEY UPDATE state = VALUES(state), ttl_at = VALUES(ttl_at), updated_at = CURRENT_TIMESTAMP`,
		orderID, driverID, OfferProposed, ttlAt)
	return err
}

// Get returns the offer for an order-driver pair.
func (r *OffersRepo) Get(ctx context.Context, orderID, driverID int64) (Offer, error) {
	var o Offer
	err := r.db.QueryRowContext(ctx, `SELECT id, order_id, driver_id, state, ttl_at, created_at, updated_at FROM order_offers WHERE order_id = ? AND driver_id = ?`, orderID, driverID).
		Scan(&o.ID, &o.OrderID, &o.DriverID, &o.State, &o.TTLAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Offer{}, ErrNotFound
	}
	if err != nil {
		return Offer{}, err
	}
	return o, nil
}

// Resolve moves a proposed offer to a terminal state. Zero rows affected
// means the offer already resolved the other way (accept racing the
// watchdog's expiry).
func (r *OffersRepo) Resolve(ctx context.Context, orderID, driverID int64, state string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_offers SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ? AND driver_id = ? AND state = ?`,
		state, orderID, driverID, OfferProposed)
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

// ExcludedDriverIDs returns drivers who already saw this order in any
// round, so re-dispatch never proposes it to them again.
func (r *OffersRepo) ExcludedDriverIDs(ctx context.Context, orderID int64) (map[int64]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT driver_id FROM order_offers WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// ListExpired returns proposed offers past their deadline, for the offer
// watchdog.
func (r *OffersRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Offer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, driver_id, state, ttl_at, created_at, updated_at FROM order_offers WHERE state = ? AND ttl_at <= ? ORDER BY ttl_at LIMIT ?`,
		OfferProposed, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.OrderID, &o.DriverID, &o.State, &o.TTLAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
