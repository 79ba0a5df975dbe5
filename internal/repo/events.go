package repo

import (
	"context"
	"database/sql"
	"time"
)

// Actor types recorded on events.
const (
	ActorCustomer = "customer"
	ActorBranch   = "branch"
	ActorDriver   = "driver"
	ActorSystem   = "system"
	ActorGateway  = "gateway"
)

// Event types. Rejected transitions never produce an event; the history is
// the sequence of things that actually happened to the order.
const (
	EventOrderCreated       = "order_created"
	EventCouponApplied      = "coupon_applied"
	EventBranchAccepted     = "branch_accepted"
	EventPaymentInitialized = "payment_initialized"
	EventPaymentInitFailed  = "payment_init_failed"
	EventPaymentConfirmed   = "payment_confirmed"
	EventPaymentFailed      = "payment_failed"
	EventMarkedReady        = "marked_ready"
	EventOfferProposed      = "offer_proposed"
	EventNoDrivers          = "dispatch_no_drivers"
	EventDriverAccepted     = "driver_accepted"
	EventDriverRejected     = "driver_rejected"
	EventOfferExpired       = "offer_expired"
	EventPickedUp           = "picked_up"
	EventDeparted           = "departed"
	EventDelivered          = "delivered"
	EventCancelled          = "cancelled"
	EventEscalated          = "escalated"
)

// Event is one append-only history row. Metadata is a small JSON blob whose
// shape depends on the event type.
type Event struct {
	ID        int64
	OrderID   int64
	Type      string
	ActorType string
	ActorID   int64
	OldStatus string
	NewStatus string
	Metadata  string
	CreatedAt time.Time
}

// EventsRepo reads the order history. Writes always happen through
// insertEvent inside the transaction that caused them.
type EventsRepo struct {
	db *sql.DB
}

func NewEventsRepo(db *sql.DB) *EventsRepo {
	return &EventsRepo{db: db}
}

// ListByOrder returns the order's history oldest first.
func (r *EventsRepo) ListByOrder(ctx context.Context, orderID int64) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, type, actor_type, actor_id, old_status, new_status, metadata, created_at FROM order_events WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Type, &e.ActorType, &e.ActorID, &e.OldStatus, &e.NewStatus, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordSystemEvent appends a standalone audit event outside a lifecycle
// transaction, for dispatcher and scheduler notes. Status columns stay
// empty: these events never move the order.
func (r *EventsRepo) RecordSystemEvent(ctx context.Context, orderID int64, eventType, metadata string) error {
	if metadata == "" {
		metadata = "{}"
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO order_events (order_id, type, actor_type, actor_id, old_status, new_status, metadata) VALUES (?,?,?,0,'','',?)`,
		orderID, eventType, ActorSystem, metadata)
	return err
}

func insertEvent(ctx context.Context, tx *sql.Tx, e Event) error {
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO order_events (order_id, type, actor_type, actor_id, old_status, new_status, metadata) VALUES (?,?,?,?,?,?,?)`,
		e.OrderID, e.Type, e.ActorType, e.ActorID, e.OldStatus, e.NewStatus, e.Metadata)
	return err
}
