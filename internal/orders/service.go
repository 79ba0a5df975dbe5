// Package orders orchestrates the fulfillment flow on top of the
// repositories: creation and pricing, coupon application, branch, driver
// and gateway transitions, and the timeout escalations. The repositories
// own atomicity; this layer owns sequencing and side effects
// (payment initialization, geo index moves, notifications, timers).
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/rand"

	"tamaqBack/internal/catalog"
	"tamaqBack/internal/pay"
	"tamaqBack/internal/repo"
	"tamaqBack/internal/sched"
)

var (
	// ErrBranchClosed rejects order creation against a closed branch.
	ErrBranchClosed = errors.New("orders: branch is closed")
	// ErrItemUnavailable rejects order creation with an unavailable item.
	ErrItemUnavailable = errors.New("orders: item unavailable")
	// ErrNotDelivered rejects a rating before the order completed.
	ErrNotDelivered = errors.New("orders: order not delivered yet")
)

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Ledger is the order persistence surface; *repo.OrdersRepo satisfies it.
type Ledger interface {
	Create(ctx context.Context, order repo.Order) (int64, error)
	Get(ctx context.Context, id int64) (repo.Order, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]repo.Order, error)
	ListActiveByBranch(ctx context.Context, branchID int64) ([]repo.Order, error)
	ApplyCoupon(ctx context.Context, orderID, couponID int64, lineDiscounts map[int64]decimal.Decimal, discountTotal, deliveryPrice, grandTotal decimal.Decimal, code string) error
	BranchAccept(ctx context.Context, orderID, branchID int64) error
	SetPaymentInitialized(ctx context.Context, orderID int64, ref string) error
	RecordPaymentInitFailure(ctx context.Context, orderID int64, reason string) error
	ConfirmPayment(ctx context.Context, ref string) (repo.Order, bool, error)
	RecordPaymentFailure(ctx context.Context, ref, reason string) (repo.Order, error)
	MarkReady(ctx context.Context, orderID, branchID int64, radiusKM float64) error
	DriverAccept(ctx context.Context, orderID, driverID int64) error
	MarkPickedUp(ctx context.Context, orderID, driverID int64) error
	MarkOnTheWay(ctx context.Context, orderID, driverID int64) error
	Deliver(ctx context.Context, orderID, driverID int64, phrase string) error
	RollbackAssignment(ctx context.Context, orderID, driverID int64, eventType string) error
	Cancel(ctx context.Context, orderID int64, actorType string, actorID int64, reason string) error
}

// CouponSource resolves coupon codes.
type CouponSource interface {
	GetByCode(ctx context.Context, code string) (repo.Coupon, error)
}

// Menu is the read-only catalog surface used at creation time.
type Menu interface {
	BranchInfo(ctx context.Context, branchID int64) (catalog.Branch, error)
	ItemPricing(ctx context.Context, branchID, itemID int64) (catalog.ItemPricing, error)
	Modifiers(ctx context.Context, itemID int64, modifierIDs []int64) ([]catalog.Modifier, error)
}

// Gateway initializes payment transactions.
type Gateway interface {
	InitializeTransaction(ctx context.Context, amount decimal.Decimal, email, reference string) (pay.InitResult, error)
}

// DriverStore is the driver persistence surface.
type DriverStore interface {
	Get(ctx context.Context, id int64) (repo.Driver, error)
	Release(ctx context.Context, driverID, orderID int64) error
	SetOnline(ctx context.Context, driverID int64, online bool) error
	RateDriver(ctx context.Context, orderID, driverID, customerID int64, stars int) error
}

// OfferStore resolves dispatch offers.
type OfferStore interface {
	Resolve(ctx context.Context, orderID, driverID int64, state string) error
}

// DispatchQueue controls the order's dispatch record.
type DispatchQueue interface {
	Finish(ctx context.Context, orderID int64) error
	Resume(ctx context.Context, orderID int64) error
}

// GeoIndex is the live location index surface.
type GeoIndex interface {
	UpdateLocation(ctx context.Context, city string, driverID int64, lon, lat float64, busy bool) error
	MoveDriver(ctx context.Context, city string, driverID int64, toBusy bool) error
	Remove(ctx context.Context, city string, driverID int64) error
}

// Auditor appends standalone audit events.
type Auditor interface {
	RecordSystemEvent(ctx context.Context, orderID int64, eventType, metadata string) error
}

// Scheduler arms fire-and-forget delayed checks.
type Scheduler interface {
	ScheduleAt(delay time.Duration, orderID int64, fn sched.Callback)
}

// Publisher fans updates out; delivery failures never affect transitions.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte)
}

// Config carries the service tuning.
type Config struct {
	// ConfirmTimeout escalates orders the branch ignored.
	ConfirmTimeout time.Duration
	// PaymentTimeout cancels orders nobody paid for.
	PaymentTimeout time.Duration
	// StartRadiusKM seeds the dispatch record on ready.
	StartRadiusKM float64
	// NumberAttempts caps order-number generation retries.
	NumberAttempts int
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout: 10 * time.Minute,
		PaymentTimeout: 30 * time.Minute,
		StartRadiusKM:  5,
		NumberAttempts: 5,
	}
}

// Service wires the fulfillment operations together.
type Service struct {
	cfg      Config
	ledger   Ledger
	coupons  CouponSource
	menu     Menu
	gateway  Gateway
	drivers  DriverStore
	offers   OfferStore
	dispatch DispatchQueue
	geoIndex GeoIndex
	audit    Auditor
	sched    Scheduler
	pub      Publisher
	log      Logger
}

// Deps bundles the service collaborators for construction.
type Deps struct {
	Ledger   Ledger
	Coupons  CouponSource
	Menu     Menu
	Gateway  Gateway
	Drivers  DriverStore
	Offers   OfferStore
	Dispatch DispatchQueue
	GeoIndex GeoIndex
	Audit    Auditor
	Sched    Scheduler
	Pub      Publisher
	Log      Logger
}

func NewService(cfg Config, d Deps) *Service {
	if cfg.NumberAttempts <= 0 {
		cfg.NumberAttempts = 5
	}
	rand.Seed(uint64(time.Now().UnixNano()))
	return &Service{
		cfg:      cfg,
		ledger:   d.Ledger,
		coupons:  d.Coupons,
		menu:     d.Menu,
		gateway:  d.Gateway,
		drivers:  d.Drivers,
		offers:   d.Offers,
		dispatch: d.Dispatch,
		geoIndex: d.GeoIndex,
		audit:    d.Audit,
		sched:    d.Sched,
		pub:      d.Pub,
		log:      d.Log,
	}
}

// Get returns an order for its owner, branch or assigned driver; anyone
// else gets not-found.
func (s *Service) Get(ctx context.Context, orderID int64) (repo.Order, error) {
	return s.ledger.Get(ctx, orderID)
}

// ListCustomerOrders returns one page of the customer's order history.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID int64, limit, offset int) ([]repo.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListByCustomer(ctx, customerID, limit, offset)
}

// ListBranchOrders returns the branch's active queue.
func (s *Service) ListBranchOrders(ctx context.Context, branchID int64) ([]repo.Order, error) {
	return s.ledger.ListActiveByBranch(ctx, branchID)
}

func (s *Service) publish(ctx context.Context, topic string, fields map[string]any) {
	payload, err := json.Marshal(fields)
	if err != nil {
		s.log.Errorf("orders: marshal update: %v", err)
		return
	}
	s.pub.Publish(ctx, topic, payload)
}
