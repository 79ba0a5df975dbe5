package repo

import "errors"

var (
	// ErrNotFound indicates a missing entity in the fulfillment repositories.
	ErrNotFound = errors.New("fulfillment: not found")
	// ErrCouponExhausted is returned when the atomic uses_count increment
	// affects zero rows: the cap was reached by a concurrent consumer or the
	// coupon was deactivated mid-flight.
	ErrCouponExhausted = errors.New("fulfillment: coupon no longer valid")
	// ErrCouponAlreadyApplied rejects a second coupon on the same order.
	ErrCouponAlreadyApplied = errors.New("fulfillment: coupon already applied")
	// ErrWrongDeliveryCode rejects a delivery proof attempt. The message is
	// identical regardless of how close the guess was.
	ErrWrongDeliveryCode = errors.New("fulfillment: wrong delivery code")
	// ErrDriverUnavailable is returned when the reserve CAS loses the race.
	ErrDriverUnavailable = errors.New("fulfillment: driver unavailable")
	// ErrCodeSpaceExhausted is returned when unique code generation gives up
	// after the configured number of attempts.
	ErrCodeSpaceExhausted = errors.New("fulfillment: could not generate a unique code")
)
