package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	customerAuth := standardMiddleware.Append(app.withRole(roleCustomer))
	branchAuth := standardMiddleware.Append(app.withRole(roleBranch))
	driverAuth := standardMiddleware.Append(app.withRole(roleDriver))

	mux := pat.New()

	// Customer
	mux.Post("/api/orders", customerAuth.ThenFunc(app.server.CreateOrder))
	mux.Get("/api/orders", customerAuth.ThenFunc(app.server.ListOrders))
	mux.Get("/api/orders/:id", customerAuth.ThenFunc(app.server.GetOrder))
	mux.Get("/api/orders/:id/events", customerAuth.ThenFunc(app.server.OrderEvents))
	mux.Post("/api/orders/:id/coupon", customerAuth.ThenFunc(app.server.ApplyCoupon))
	mux.Post("/api/orders/:id/cancel", customerAuth.ThenFunc(app.server.CancelOrder))
	mux.Post("/api/orders/:id/rating", customerAuth.ThenFunc(app.server.RateOrder))

	// Branch
	mux.Get("/api/branch/orders", branchAuth.ThenFunc(app.server.BranchOrders))
	mux.Post("/api/branch/orders/:id", branchAuth.ThenFunc(app.server.BranchTransition))
	mux.Post("/api/branch/coupons", branchAuth.ThenFunc(app.server.CreateCoupon))
	mux.Post("/api/branch/coupons/:id/deactivate", branchAuth.ThenFunc(app.server.DeactivateCoupon))

	// Driver
	mux.Post("/api/driver/orders/:id", driverAuth.ThenFunc(app.server.DriverTransition))
	mux.Post("/api/driver/online", driverAuth.ThenFunc(app.server.DriverOnline))
	mux.Post("/api/driver/offline", driverAuth.ThenFunc(app.server.DriverOffline))
	mux.Post("/api/driver/location", driverAuth.ThenFunc(app.server.DriverLocation))

	// Gateway callbacks; authenticated by signature, not by token.
	mux.Post("/api/webhooks/paystack", standardMiddleware.ThenFunc(app.server.PaystackWebhook))

	// Websockets
	mux.Get("/ws/customer", http.HandlerFunc(app.server.CustomerWS))
	mux.Get("/ws/branch", http.HandlerFunc(app.server.BranchWS))
	mux.Get("/ws/driver", http.HandlerFunc(app.server.DriverWS))

	return mux
}
