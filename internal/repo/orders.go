package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tamaqBack/internal/lifecycle"
)

// Order is the authoritative fulfillment record. Money columns are DECIMAL
// and scanned through shopspring/decimal; item snapshots live in order_items.
type Order struct {
	ID                 int64
	OrderNumber        string
	CustomerID         int64
	CustomerEmail      string
	BranchID           int64
	DriverID           sql.NullInt64
	CouponID           sql.NullInt64
	Status             string
	Subtotal           decimal.Decimal
	DiscountTotal      decimal.Decimal
	DeliveryPrice      decimal.Decimal
	CommissionRate     decimal.Decimal
	GrandTotal         decimal.Decimal
	DeliverySecretHash string
	PaymentRef         sql.NullString
	Address            string
	Lat                float64
	Lon                float64
	ConfirmedAt        sql.NullTime
	PickedUpAt         sql.NullTime
	DeliveredAt        sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Items              []OrderItem
}

// OrderItem is an immutable snapshot of one menu line at checkout time.
// Snapshot holds the frozen name/variant/addon description as JSON.
type OrderItem struct {
	ID             int64
	OrderID        int64
	MenuItemID     int64
	CategoryID     int64
	Quantity       int
	UnitPrice      decimal.Decimal
	AddedTotal     decimal.Decimal
	LineTotal      decimal.Decimal
	DiscountAmount decimal.Decimal
	Snapshot       string
}

const orderColumns = `id, order_number, customer_id, customer_email, branch_id, driver_id, coupon_id, status,
	subtotal, discount_total, delivery_price, commission_rate, grand_total,
	delivery_secret_hash, payment_ref, address, lat, lon,
	confirmed_at, picked_up_at, delivered_at, created_at, updated_at`

// OrdersRepo persists orders, items and lifecycle transitions. Every
// transition runs in its own short transaction: lock the row, check the
// guard against the freshly read status, update, append the event, commit.
type OrdersRepo struct {
	db *sql.DB
}

func NewOrdersRepo(db *sql.DB) *OrdersRepo {
	return &OrdersRepo{db: db}
}

// Create inserts a new pending order with its item snapshots and the
// created event in one transaction.
func (r *OrdersRepo) Create(ctx context.Context, order Order) (int64, error) {
	if len(order.Items) == 0 {
		return 0, fmt.Errorf("order must contain at least one item")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, execErr := tx.ExecContext(ctx, `INSERT INTO orders (order_number, customer_id, customer_email, branch_id, status, subtotal, discount_total, delivery_price, commission_rate, grand_total, delivery_secret_hash, address, lat, lon) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		order.OrderNumber, order.CustomerID, order.CustomerEmail, order.BranchID, lifecycle.StatusPending,
		order.Subtotal, order.DiscountTotal, order.DeliveryPrice, order.CommissionRate, order.GrandTotal,
		order.DeliverySecretHash, order.Address, order.Lat, order.Lon)
	if execErr != nil {
		err = execErr
		return 0, err
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err = insertOrderItems(ctx, tx, orderID, order.Items); err != nil {
		return 0, err
	}

	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventOrderCreated,
		ActorType: ActorCustomer,
		ActorID:   order.CustomerID,
		NewStatus: lifecycle.StatusPending,
		Metadata:  fmt.Sprintf(`{"items":%d,"grand_total":%q}`, len(order.Items), order.GrandTotal.StringFixed(2)),
	}); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return orderID, nil
}

// Get returns an order with its items.
func (r *OrdersRepo) Get(ctx context.Context, id int64) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.fetchItems(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// NumberExists reports whether a human-facing order number is taken.
func (r *OrdersRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE order_number = ?`, number).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByPaymentRef resolves a gateway reference back to its order.
func (r *OrdersRepo) GetByPaymentRef(ctx context.Context, ref string) (Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = ?`, ref)
	return scanOrder(row)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrdersRepo) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListActiveByBranch returns the branch's non-terminal orders.
func (r *OrdersRepo) ListActiveByBranch(ctx context.Context, branchID int64) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE branch_id = ? AND status NOT IN (?, ?) ORDER BY created_at`, branchID, lifecycle.StatusDelivered, lifecycle.StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// BranchAccept moves pending -> confirmed on behalf of the branch.
func (r *OrdersRepo) BranchAccept(ctx context.Context, orderID, branchID int64) error {
	return r.transition(ctx, orderID, lifecycle.StatusConfirmed, Event{
		Type:      EventBranchAccepted,
		ActorType: ActorBranch,
		ActorID:   branchID,
	}, func(o Order) error {
		if o.BranchID != branchID {
			return ErrNotFound
		}
		return nil
	}, `UPDATE orders SET status = ?, confirmed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
}

// SetPaymentInitialized stores the gateway reference and moves
// confirmed -> payment_pending.
func (r *OrdersRepo) SetPaymentInitialized(ctx context.Context, orderID int64, ref string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !lifecycle.CanTransition(o.Status, lifecycle.StatusPaymentPending) {
		err = fmt.Errorf("%w: %s -> %s", lifecycle.ErrConflictingState, o.Status, lifecycle.StatusPaymentPending)
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = ?, payment_ref = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		lifecycle.StatusPaymentPending, ref, orderID); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventPaymentInitialized,
		ActorType: ActorSystem,
		OldStatus: o.Status,
		NewStatus: lifecycle.StatusPaymentPending,
		Metadata:  fmt.Sprintf(`{"reference":%q}`, ref),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordPaymentInitFailure appends an audit event without touching status,
// so a later retry can initialize payment again from confirmed.
func (r *OrdersRepo) RecordPaymentInitFailure(ctx context.Context, orderID int64, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventPaymentInitFailed,
		ActorType: ActorSystem,
		Metadata:  fmt.Sprintf(`{"reason":%q}`, reason),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ConfirmPayment applies a successful charge for the reference. Duplicate
// deliveries of the same webhook find the order already past payment and
// return applied=false without a second event.
func (r *OrdersRepo) ConfirmPayment(ctx context.Context, ref string) (Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = ? FOR UPDATE`, ref)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, false, err
	}

	switch o.Status {
	case lifecycle.StatusConfirmed, lifecycle.StatusPaymentPending:
		// fall through to apply
	case lifecycle.StatusCancelled:
		err = fmt.Errorf("%w: paid while %s", lifecycle.ErrConflictingState, o.Status)
		return Order{}, false, err
	default:
		// already preparing or further along: duplicate delivery
		if err = tx.Commit(); err != nil {
			return Order{}, false, err
		}
		return o, false, nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, lifecycle.StatusPreparing, o.ID); err != nil {
		return Order{}, false, err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   o.ID,
		Type:      EventPaymentConfirmed,
		ActorType: ActorGateway,
		OldStatus: o.Status,
		NewStatus: lifecycle.StatusPreparing,
		Metadata:  fmt.Sprintf(`{"reference":%q}`, ref),
	}); err != nil {
		return Order{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return Order{}, false, err
	}
	o.Status = lifecycle.StatusPreparing
	return o, true, nil
}

// RecordPaymentFailure appends a failed-charge event. Status does not move;
// the payment timeout or the customer decides what happens next.
func (r *OrdersRepo) RecordPaymentFailure(ctx context.Context, ref, reason string) (Order, error) {
	o, err := r.GetByPaymentRef(ctx, ref)
	if err != nil {
		return Order{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = insertEvent(ctx, tx, Event{
		OrderID:   o.ID,
		Type:      EventPaymentFailed,
		ActorType: ActorGateway,
		Metadata:  fmt.Sprintf(`{"reference":%q,"reason":%q}`, ref, reason),
	}); err != nil {
		return Order{}, err
	}
	if err = tx.Commit(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// MarkReady moves preparing -> ready and seeds the dispatch record that the
// coordinator loop picks up, all in one transaction.
func (r *OrdersRepo) MarkReady(ctx context.Context, orderID, branchID int64, radiusKM float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.BranchID != branchID {
		err = ErrNotFound
		return err
	}
	if !lifecycle.CanTransition(o.Status, lifecycle.StatusReady) {
		err = fmt.Errorf("%w: %s -> %s", lifecycle.ErrConflictingState, o.Status, lifecycle.StatusReady)
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, lifecycle.StatusReady, orderID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO order_dispatch (order_id, state, radius_km, attempt, next_tick_at) VALUES (?,?,?,0,CURRENT_TIMESTAMP) ON DUPLICATE KEY UPDATE state = VALUES(state), radius_km = VALUES(radius_km), attempt = 0, next_tick_at = CURRENT_TIMESTAMP`,
		orderID, DispatchSearching, radiusKM); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventMarkedReady,
		ActorType: ActorBranch,
		ActorID:   branchID,
		OldStatus: o.Status,
		NewStatus: lifecycle.StatusReady,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignDriver reserves the order for a driver with a compare-and-set on
// status and the empty driver slot. Zero rows affected means another
// dispatcher tick or a customer cancellation won the race.
func (r *OrdersRepo) AssignDriver(ctx context.Context, orderID, driverID int64, metadata string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, execErr := tx.ExecContext(ctx, `UPDATE orders SET driver_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ? AND driver_id IS NULL`,
		driverID, lifecycle.StatusDriverAssigned, orderID, lifecycle.StatusReady)
	if execErr != nil {
		err = execErr
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = lifecycle.ErrConflictingState
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventOfferProposed,
		ActorType: ActorSystem,
		ActorID:   driverID,
		OldStatus: lifecycle.StatusReady,
		NewStatus: lifecycle.StatusDriverAssigned,
		Metadata:  metadata,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RollbackAssignment undoes driver_assigned back to ready after a rejection
// or an expired offer, guarded on the same driver still holding the order.
func (r *OrdersRepo) RollbackAssignment(ctx context.Context, orderID, driverID int64, eventType string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, execErr := tx.ExecContext(ctx, `UPDATE orders SET driver_id = NULL, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ? AND driver_id = ?`,
		lifecycle.StatusReady, orderID, lifecycle.StatusDriverAssigned, driverID)
	if execErr != nil {
		err = execErr
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = lifecycle.ErrConflictingState
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      eventType,
		ActorType: ActorSystem,
		ActorID:   driverID,
		OldStatus: lifecycle.StatusDriverAssigned,
		NewStatus: lifecycle.StatusReady,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DriverAccept records the driver's confirmation of an assigned offer. The
// status stays driver_assigned; only the audit event is added.
func (r *OrdersRepo) DriverAccept(ctx context.Context, orderID, driverID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !o.DriverID.Valid || o.DriverID.Int64 != driverID {
		err = ErrNotFound
		return err
	}
	if o.Status != lifecycle.StatusDriverAssigned {
		err = fmt.Errorf("%w: accept while %s", lifecycle.ErrConflictingState, o.Status)
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventDriverAccepted,
		ActorType: ActorDriver,
		ActorID:   driverID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkPickedUp moves driver_assigned -> picked_up.
func (r *OrdersRepo) MarkPickedUp(ctx context.Context, orderID, driverID int64) error {
	return r.driverTransition(ctx, orderID, driverID, lifecycle.StatusPickedUp, EventPickedUp,
		`UPDATE orders SET status = ?, picked_up_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
}

// MarkOnTheWay moves picked_up -> on_the_way.
func (r *OrdersRepo) MarkOnTheWay(ctx context.Context, orderID, driverID int64) error {
	return r.driverTransition(ctx, orderID, driverID, lifecycle.StatusOnTheWay, EventDeparted, "")
}

// Deliver completes the order if the spoken phrase matches the stored
// bcrypt hash. A wrong phrase changes nothing and leaves no event.
func (r *OrdersRepo) Deliver(ctx context.Context, orderID, driverID int64, phrase string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !o.DriverID.Valid || o.DriverID.Int64 != driverID {
		err = ErrNotFound
		return err
	}
	if o.Status != lifecycle.StatusOnTheWay {
		err = fmt.Errorf("%w: %s -> %s", lifecycle.ErrConflictingState, o.Status, lifecycle.StatusDelivered)
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(o.DeliverySecretHash), []byte(phrase)) != nil {
		err = ErrWrongDeliveryCode
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = ?, delivered_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, lifecycle.StatusDelivered, orderID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE drivers SET current_order_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND current_order_id = ?`, driverID, orderID); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventDelivered,
		ActorType: ActorDriver,
		ActorID:   driverID,
		OldStatus: o.Status,
		NewStatus: lifecycle.StatusDelivered,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Cancel applies a cancellation if the lifecycle still allows one. The
// driver slot and any live dispatch record are released in the same
// transaction.
func (r *OrdersRepo) Cancel(ctx context.Context, orderID int64, actorType string, actorID int64, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !lifecycle.Cancellable(o.Status) {
		err = fmt.Errorf("%w: cancel while %s", lifecycle.ErrConflictingState, o.Status)
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, lifecycle.StatusCancelled, orderID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE order_dispatch SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE order_id = ?`, DispatchFinished, orderID); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventCancelled,
		ActorType: actorType,
		ActorID:   actorID,
		OldStatus: o.Status,
		NewStatus: lifecycle.StatusCancelled,
		Metadata:  fmt.Sprintf(`{"reason":%q}`, reason),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyCoupon binds a coupon to a pending order: consumes one use with a
// conditional increment, writes per-line discounts and the recomputed
// totals, and appends the audit event. Losing the uses_count race rolls the
// whole thing back with ErrCouponExhausted.
func (r *OrdersRepo) ApplyCoupon(ctx context.Context, orderID int64, couponID int64, lineDiscounts map[int64]decimal.Decimal, discountTotal, deliveryPrice, grandTotal decimal.Decimal, code string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.Status != lifecycle.StatusPending {
		err = fmt.Errorf("%w: coupon while %s", lifecycle.ErrConflictingState, o.Status)
		return err
	}
	if o.CouponID.Valid {
		err = ErrCouponAlreadyApplied
		return err
	}

	if err = consumeCoupon(ctx, tx, couponID); err != nil {
		return err
	}

	for itemID, amount := range lineDiscounts {
		if _, err = tx.ExecContext(ctx, `UPDATE order_items SET discount_amount = ? WHERE id = ? AND order_id = ?`, amount, itemID, orderID); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `UPDATE orders SET coupon_id = ?, discount_total = ?, delivery_price = ?, grand_total = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		couponID, discountTotal, deliveryPrice, grandTotal, orderID); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, Event{
		OrderID:   orderID,
		Type:      EventCouponApplied,
		ActorType: ActorCustomer,
		ActorID:   o.CustomerID,
		Metadata:  fmt.Sprintf(`{"code":%q,"discount_total":%q}`, code, discountTotal.StringFixed(2)),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// transition is the common lock-guard-update-event shape used by the
// simpler branch transitions.
func (r *OrdersRepo) transition(ctx context.Context, orderID int64, nextStatus string, event Event, check func(Order) error, updateSQL string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if check != nil {
		if err = check(o); err != nil {
			return err
		}
	}
	if !lifecycle.CanTransition(o.Status, nextStatus) {
		err = fmt.Errorf("%w: %s -> %s", lifecycle.ErrConflictingState, o.Status, nextStatus)
		return err
	}

	if updateSQL == "" {
		updateSQL = `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	}
	if _, err = tx.ExecContext(ctx, updateSQL, nextStatus, orderID); err != nil {
		return err
	}
	event.OrderID = orderID
	event.OldStatus = o.Status
	event.NewStatus = nextStatus
	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *OrdersRepo) driverTransition(ctx context.Context, orderID, driverID int64, nextStatus, eventType, updateSQL string) error {
	return r.transition(ctx, orderID, nextStatus, Event{
		Type:      eventType,
		ActorType: ActorDriver,
		ActorID:   driverID,
	}, func(o Order) error {
		if !o.DriverID.Valid || o.DriverID.Int64 != driverID {
			return ErrNotFound
		}
		return nil
	}, updateSQL)
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID int64) (Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, orderID)
	return scanOrder(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerEmail, &o.BranchID, &o.DriverID, &o.CouponID, &o.Status,
		&o.Subtotal, &o.DiscountTotal, &o.DeliveryPrice, &o.CommissionRate, &o.GrandTotal,
		&o.DeliverySecretHash, &o.PaymentRef, &o.Address, &o.Lat, &o.Lon,
		&o.ConfirmedAt, &o.PickedUpAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func scanOrders(rows *sql.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrdersRepo) fetchItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, menu_item_id, category_id, quantity, unit_price, added_total, line_total, discount_amount, snapshot FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.CategoryID, &it.Quantity, &it.UnitPrice, &it.AddedTotal, &it.LineTotal, &it.DiscountAmount, &it.Snapshot); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []OrderItem) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (order_id, menu_item_id, category_id, quantity, unit_price, added_total, line_total, discount_amount, snapshot) VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, orderID, it.MenuItemID, it.CategoryID, it.Quantity, it.UnitPrice, it.AddedTotal, it.LineTotal, it.DiscountAmount, it.Snapshot); err != nil {
			return err
		}
	}
	return nil
}
