package lifecycle

import "errors"

// Status constants used by the order state machine.
const (
	StatusPending        = "pending"
	StatusConfirmed      = "confirmed"
	StatusPaymentPending = "payment_pending"
	StatusPreparing      = "preparing"
	StatusReady          = "ready"
	StatusDriverAssigned = "driver_assigned"
	StatusPickedUp       = "picked_up"
	StatusOnTheWay       = "on_the_way"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

// ErrConflictingState is returned when a transition guard fails against the
// current authoritative status. Callers must re-fetch status, not retry.
var ErrConflictingState = errors.New("lifecycle: conflicting order state")

var transitions = map[string]map[string]struct{}{
	StatusPending: {
		StatusConfirmed: {},
		StatusCancelled: {},
	},
	StatusConfirmed: {
		StatusPaymentPending: {},
		StatusPreparing:      {},
		StatusCancelled:      {},
	},
	StatusPaymentPending: {
		StatusPreparing: {},
		StatusCancelled: {},
	},
	StatusPreparing: {
		StatusReady: {},
	},
	StatusReady: {
		StatusDriverAssigned: {},
	},
	StatusDriverAssigned: {
		StatusPickedUp: {},
		// rollback when the driver rejects or the offer expires
		StatusReady: {},
	},
	StatusPickedUp: {
		StatusOnTheWay: {},
	},
	StatusOnTheWay: {
		StatusDelivered: {},
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition returns whether an order may move from the current status to
// the target status. A same-status request is not in the table and is
// rejected like any other unlisted pair; callers that need duplicate
// tolerance (the payment webhook) handle it themselves.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusDelivered || status == StatusCancelled
}

// Cancellable reports whether a cancellation is still legal. Once the branch
// starts preparing, "too late" applies; once the driver has the food, nobody
// cancels.
func Cancellable(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusPaymentPending:
		return true
	}
	return false
}

// Statuses lists every known status, for validation and tests.
func Statuses() []string {
	return []string{
		StatusPending,
		StatusConfirmed,
		StatusPaymentPending,
		StatusPreparing,
		StatusReady,
		StatusDriverAssigned,
		StatusPickedUp,
		StatusOnTheWay,
		StatusDelivered,
		StatusCancelled,
	}
}
