package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/notify"
	"tamaqBack/internal/repo"
)

// BranchDo executes one branch action on an order. The switch is
// exhaustive over lifecycle.BranchAction.
func (s *Service) BranchDo(ctx context.Context, branchID, orderID int64, action lifecycle.BranchAction, reason string) error {
	switch action {
	case lifecycle.BranchAccept:
		return s.branchAccept(ctx, branchID, orderID)
	case lifecycle.BranchReady:
		return s.branchReady(ctx, branchID, orderID)
	case lifecycle.BranchCancel:
		return s.cancel(ctx, repo.ActorBranch, branchID, orderID, reason)
	}
	return fmt.Errorf("unknown branch action %q", action)
}

// branchAccept confirms the order and initializes payment. A gateway
// failure leaves the order confirmed with an audit event; accept can be
// retried through payment initialization, never by re-accepting.
func (s *Service) branchAccept(ctx context.Context, branchID, orderID int64) error {
	if err := s.ledger.BranchAccept(ctx, orderID, branchID); err != nil {
		return err
	}
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}

	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "order_confirmed",
		"order_id": orderID,
	})
	return s.InitializePayment(ctx, order)
}

// InitializePayment opens a gateway transaction for a confirmed order and
// moves it to payment_pending. Exposed separately so a failed
// initialization can be retried.
func (s *Service) InitializePayment(ctx context.Context, order repo.Order) error {
	ref := uuid.NewString()
	res, err := s.gateway.InitializeTransaction(ctx, order.GrandTotal, order.CustomerEmail, ref)
	if err != nil {
		if recErr := s.ledger.RecordPaymentInitFailure(ctx, order.ID, err.Error()); recErr != nil {
			s.log.Errorf("orders: record init failure for %d: %v", order.ID, recErr)
		}
		return fmt.Errorf("initialize payment: %w", err)
	}

	if err := s.ledger.SetPaymentInitialized(ctx, order.ID, res.Reference); err != nil {
		return err
	}
	s.sched.ScheduleAt(s.cfg.PaymentTimeout, order.ID, s.paymentTimeoutCheck)
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":        "payment_required",
		"order_id":    order.ID,
		"payment_url": res.AuthorizationURL,
	})
	return nil
}

func (s *Service) branchReady(ctx context.Context, branchID, orderID int64) error {
	if err := s.ledger.MarkReady(ctx, orderID, branchID, s.cfg.StartRadiusKM); err != nil {
		return err
	}
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "order_ready",
		"order_id": orderID,
	})
	return nil
}

// CancelByCustomer cancels the customer's own order while the lifecycle
// still allows it.
func (s *Service) CancelByCustomer(ctx context.Context, customerID, orderID int64, reason string) error {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CustomerID != customerID {
		return repo.ErrNotFound
	}
	return s.cancel(ctx, repo.ActorCustomer, customerID, orderID, reason)
}

func (s *Service) cancel(ctx context.Context, actorType string, actorID, orderID int64, reason string) error {
	if err := s.ledger.Cancel(ctx, orderID, actorType, actorID, reason); err != nil {
		return err
	}
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "order_cancelled",
		"order_id": orderID,
		"reason":   reason,
	})
	s.publish(ctx, notify.BranchTopic(order.BranchID), map[string]any{
		"type":     "order_cancelled",
		"order_id": orderID,
	})
	return nil
}

// DriverDo executes one driver action on an order. The switch is
// exhaustive over lifecycle.DriverAction.
func (s *Service) DriverDo(ctx context.Context, driverID, orderID int64, action lifecycle.DriverAction, deliveryCode string) error {
	switch action {
	case lifecycle.DriverAccept:
		return s.driverAccept(ctx, driverID, orderID)
	case lifecycle.DriverReject:
		return s.driverReject(ctx, driverID, orderID)
	case lifecycle.DriverPickup:
		return s.driverPickup(ctx, driverID, orderID)
	case lifecycle.DriverDepart:
		return s.driverDepart(ctx, driverID, orderID)
	case lifecycle.DriverDeliver:
		return s.driverDeliver(ctx, driverID, orderID, deliveryCode)
	}
	return fmt.Errorf("unknown driver action %q", action)
}

func (s *Service) driverAccept(ctx context.Context, driverID, orderID int64) error {
	if err := s.ledger.DriverAccept(ctx, orderID, driverID); err != nil {
		return err
	}
	if err := s.offers.Resolve(ctx, orderID, driverID, repo.OfferAccepted); err != nil {
		// the watchdog may have expired the offer a heartbeat ago; the
		// order transition already succeeded, so log and continue
		s.log.Errorf("orders: resolve offer %d/%d: %v", orderID, driverID, err)
	}
	if err := s.dispatch.Finish(ctx, orderID); err != nil {
		s.log.Errorf("orders: finish dispatch %d: %v", orderID, err)
	}

	driver, err := s.drivers.Get(ctx, driverID)
	if err == nil {
		if moveErr := s.geoIndex.MoveDriver(ctx, driver.City, driverID, true); moveErr != nil {
			s.log.Errorf("orders: move driver %d busy: %v", driverID, moveErr)
		}
	}

	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":      "driver_assigned",
		"order_id":  orderID,
		"driver_id": driverID,
	})
	s.publish(ctx, notify.BranchTopic(order.BranchID), map[string]any{
		"type":      "driver_assigned",
		"order_id":  orderID,
		"driver_id": driverID,
	})
	return nil
}

// driverReject rolls the assignment back and puts the order back into the
// dispatch queue, excluding this driver from later rounds.
func (s *Service) driverReject(ctx context.Context, driverID, orderID int64) error {
	if err := s.offers.Resolve(ctx, orderID, driverID, repo.OfferRejected); err != nil {
		return err
	}
	if err := s.ledger.RollbackAssignment(ctx, orderID, driverID, repo.EventDriverRejected); err != nil {
		return err
	}
	if err := s.drivers.Release(ctx, driverID, orderID); err != nil {
		s.log.Errorf("orders: release driver %d: %v", driverID, err)
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err == nil {
		if moveErr := s.geoIndex.MoveDriver(ctx, driver.City, driverID, false); moveErr != nil {
			s.log.Errorf("orders: move driver %d free: %v", driverID, moveErr)
		}
	}
	return s.dispatch.Resume(ctx, orderID)
}

func (s *Service) driverPickup(ctx context.Context, driverID, orderID int64) error {
	if err := s.ledger.MarkPickedUp(ctx, orderID, driverID); err != nil {
		return err
	}
	s.notifyCustomer(ctx, orderID, "picked_up")
	return nil
}

func (s *Service) driverDepart(ctx context.Context, driverID, orderID int64) error {
	if err := s.ledger.MarkOnTheWay(ctx, orderID, driverID); err != nil {
		return err
	}
	s.notifyCustomer(ctx, orderID, "on_the_way")
	return nil
}

func (s *Service) driverDeliver(ctx context.Context, driverID, orderID int64, code string) error {
	if err := s.ledger.Deliver(ctx, orderID, driverID, code); err != nil {
		return err
	}
	driver, err := s.drivers.Get(ctx, driverID)
	if err == nil {
		if moveErr := s.geoIndex.MoveDriver(ctx, driver.City, driverID, false); moveErr != nil {
			s.log.Errorf("orders: move driver %d free: %v", driverID, moveErr)
		}
	}
	s.notifyCustomer(ctx, orderID, "delivered")
	return nil
}

func (s *Service) notifyCustomer(ctx context.Context, orderID int64, kind string) {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		s.log.Errorf("orders: load %d for notify: %v", orderID, err)
		return
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     kind,
		"order_id": orderID,
	})
}

// PaymentSucceeded applies a verified charge.success for a reference.
// Duplicate deliveries acknowledge without re-applying.
func (s *Service) PaymentSucceeded(ctx context.Context, ref string) error {
	order, applied, err := s.ledger.ConfirmPayment(ctx, ref)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Infof("orders: duplicate charge.success for %s", ref)
		return nil
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "payment_confirmed",
		"order_id": order.ID,
	})
	s.publish(ctx, notify.BranchTopic(order.BranchID), map[string]any{
		"type":     "start_preparing",
		"order_id": order.ID,
	})
	return nil
}

// PaymentFailed records a failed charge. Status does not move; the
// customer can retry until the payment timeout fires.
func (s *Service) PaymentFailed(ctx context.Context, ref, reason string) error {
	order, err := s.ledger.RecordPaymentFailure(ctx, ref, reason)
	if err != nil {
		return err
	}
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "payment_failed",
		"order_id": order.ID,
		"reason":   reason,
	})
	return nil
}

// confirmTimeoutCheck fires after the branch-confirmation window. A still
// pending order is escalated, not cancelled; ops and the customer decide.
func (s *Service) confirmTimeoutCheck(ctx context.Context, orderID int64) {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		s.log.Errorf("orders: confirm timeout load %d: %v", orderID, err)
		return
	}
	if order.Status != lifecycle.StatusPending {
		return
	}
	if err := s.audit.RecordSystemEvent(ctx, orderID, repo.EventEscalated, `{"reason":"confirmation timeout"}`); err != nil {
		s.log.Errorf("orders: confirm timeout event %d: %v", orderID, err)
	}
	s.publish(ctx, notify.BranchTopic(order.BranchID), map[string]any{
		"type":     "confirmation_overdue",
		"order_id": orderID,
	})
	s.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
		"type":     "order_delayed",
		"order_id": orderID,
	})
}

// paymentTimeoutCheck cancels orders still unpaid when the window closes.
// An order that progressed past payment is left alone.
func (s *Service) paymentTimeoutCheck(ctx context.Context, orderID int64) {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		s.log.Errorf("orders: payment timeout load %d: %v", orderID, err)
		return
	}
	switch order.Status {
	case lifecycle.StatusConfirmed, lifecycle.StatusPaymentPending:
	default:
		return
	}
	if err := s.cancel(ctx, repo.ActorSystem, 0, orderID, "payment timeout"); err != nil {
		s.log.Errorf("orders: payment timeout cancel %d: %v", orderID, err)
	}
}

// DriverOnline registers the driver in the live index.
func (s *Service) DriverOnline(ctx context.Context, driverID int64, lon, lat float64) error {
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if err := s.drivers.SetOnline(ctx, driverID, true); err != nil {
		return err
	}
	return s.geoIndex.UpdateLocation(ctx, driver.City, driverID, lon, lat, driver.CurrentOrderID.Valid)
}

// DriverOffline removes the driver from the live index. An in-flight
// assignment stays with them until delivered.
func (s *Service) DriverOffline(ctx context.Context, driverID int64) error {
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if err := s.drivers.SetOnline(ctx, driverID, false); err != nil {
		return err
	}
	return s.geoIndex.Remove(ctx, driver.City, driverID)
}

// Heartbeat refreshes the driver's coordinate and last-seen timestamp.
func (s *Service) Heartbeat(ctx context.Context, driverID int64, lon, lat float64) error {
	driver, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if !driver.IsOnline {
		return repo.ErrDriverUnavailable
	}
	return s.geoIndex.UpdateLocation(ctx, driver.City, driverID, lon, lat, driver.CurrentOrderID.Valid)
}

// RateOrder stores the customer's stars for a delivered order.
func (s *Service) RateOrder(ctx context.Context, customerID, orderID int64, stars int) error {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CustomerID != customerID {
		return repo.ErrNotFound
	}
	if order.Status != lifecycle.StatusDelivered || !order.DriverID.Valid {
		return ErrNotDelivered
	}
	return s.drivers.RateDriver(ctx, orderID, order.DriverID.Int64, customerID, stars)
}
