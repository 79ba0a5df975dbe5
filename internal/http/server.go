// Package http exposes the fulfillment API: customer checkout and order
// tracking, branch and driver transitions, the payment webhook and the
// websocket endpoints. Handlers stay thin; the orders service owns the
// flow.
package http

import (
	"context"

	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/orders"
	"tamaqBack/internal/repo"
	"tamaqBack/internal/ws"
)

// OrderService is the surface the handlers call; *orders.Service satisfies
// it, tests stub it.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateRequest) (orders.CreateResult, error)
	Get(ctx context.Context, orderID int64) (repo.Order, error)
	ListCustomerOrders(ctx context.Context, customerID int64, limit, offset int) ([]repo.Order, error)
	ListBranchOrders(ctx context.Context, branchID int64) ([]repo.Order, error)
	ApplyCoupon(ctx context.Context, customerID, orderID int64, code string) (repo.Order, error)
	CancelByCustomer(ctx context.Context, customerID, orderID int64, reason string) error
	RateOrder(ctx context.Context, customerID, orderID int64, stars int) error
	BranchDo(ctx context.Context, branchID, orderID int64, action lifecycle.BranchAction, reason string) error
	DriverDo(ctx context.Context, driverID, orderID int64, action lifecycle.DriverAction, deliveryCode string) error
	DriverOnline(ctx context.Context, driverID int64, lon, lat float64) error
	DriverOffline(ctx context.Context, driverID int64) error
	Heartbeat(ctx context.Context, driverID int64, lon, lat float64) error
	PaymentSucceeded(ctx context.Context, ref string) error
	PaymentFailed(ctx context.Context, ref, reason string) error
}

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// EventSource reads the order audit trail.
type EventSource interface {
	ListByOrder(ctx context.Context, orderID int64) ([]repo.Event, error)
}

// CouponAdmin is the branch-facing promotion management surface;
// *repo.CouponsRepo satisfies it.
type CouponAdmin interface {
	Get(ctx context.Context, id int64) (repo.Coupon, error)
	Create(ctx context.Context, c repo.Coupon) (int64, error)
	Deactivate(ctx context.Context, id int64) error
}

// Server bundles the handler dependencies.
type Server struct {
	svc       OrderService
	events    EventSource
	coupons   CouponAdmin
	hubs      *ws.Hubs
	paySecret string
	log       Logger
}

func NewServer(svc OrderService, events EventSource, coupons CouponAdmin, hubs *ws.Hubs, paySecret string, log Logger) *Server {
	return &Server{svc: svc, events: events, coupons: coupons, hubs: hubs, paySecret: paySecret, log: log}
}
