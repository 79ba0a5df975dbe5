// Package notify fans order updates out to the interested parties. The
// core only decides what to publish and when; delivery is fire-and-forget
// and a failed push never affects an order transition.
package notify

import (
	"context"
	"fmt"
)

// Publisher is the narrow interface the fulfillment core publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte)
}

// Topic helpers. A topic names one audience.
func CustomerTopic(customerID int64) string { return fmt.Sprintf("customer:%d", customerID) }
func BranchTopic(branchID int64) string     { return fmt.Sprintf("branch:%d", branchID) }
func DriverTopic(driverID int64) string     { return fmt.Sprintf("driver:%d", driverID) }

// Fanout publishes to every backend in order. Backends swallow their own
// errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload []byte) {
	for _, p := range f {
		p.Publish(ctx, topic, payload)
	}
}

// Discard drops everything. Used in tests and when no transport is wired.
type Discard struct{}

func (Discard) Publish(context.Context, string, []byte) {}
