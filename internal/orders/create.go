package orders

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/rand"

	"tamaqBack/internal/discount"
	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/notify"
	"tamaqBack/internal/pricing"
	"tamaqBack/internal/repo"
)

// CreateLine is one requested menu line.
type CreateLine struct {
	MenuItemID  int64
	Quantity    int
	ModifierIDs []int64
}

// CreateRequest is a checkout submission.
type CreateRequest struct {
	CustomerID    int64
	CustomerEmail string
	BranchID      int64
	Address       string
	Lat           float64
	Lon           float64
	Lines         []CreateLine
}

// CreateResult returns the persisted order and the delivery secret phrase.
// The phrase is shown exactly once; only its hash survives.
type CreateResult struct {
	Order        repo.Order
	SecretPhrase string
}

// lineSnapshot freezes what the customer bought, independent of later
// catalog edits.
type lineSnapshot struct {
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Modifiers []struct {
		Name  string `json:"name"`
		Delta string `json:"delta"`
	} `json:"modifiers,omitempty"`
}

// CreateOrder validates the composition against the catalog, snapshots
// pricing, and persists the pending order with its created event. The
// branch-confirmation timeout is armed on success.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if len(req.Lines) == 0 {
		return CreateResult{}, fmt.Errorf("order must contain at least one item")
	}

	branch, err := s.menu.BranchInfo(ctx, req.BranchID)
	if err != nil {
		return CreateResult{}, err
	}
	if !branch.IsOpen {
		return CreateResult{}, ErrBranchClosed
	}

	items := make([]repo.OrderItem, 0, len(req.Lines))
	subtotal := decimal.Zero
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return CreateResult{}, fmt.Errorf("quantity must be at least 1")
		}
		item, err := s.buildItem(ctx, req.BranchID, line)
		if err != nil {
			return CreateResult{}, err
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal)
	}

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	phrase, err := generateSecretPhrase()
	if err != nil {
		return CreateResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(phrase), bcrypt.DefaultCost)
	if err != nil {
		return CreateResult{}, err
	}

	order := repo.Order{
		OrderNumber:        number,
		CustomerID:         req.CustomerID,
		CustomerEmail:      req.CustomerEmail,
		BranchID:           req.BranchID,
		Status:             lifecycle.StatusPending,
		Subtotal:           subtotal,
		DiscountTotal:      decimal.Zero,
		DeliveryPrice:      branch.DeliveryPrice,
		CommissionRate:     branch.CommissionRate,
		GrandTotal:         pricing.GrandTotal(subtotal, decimal.Zero, branch.CommissionRate, branch.DeliveryPrice),
		DeliverySecretHash: string(hash),
		Address:            req.Address,
		Lat:                req.Lat,
		Lon:                req.Lon,
		Items:              items,
	}

	orderID, err := s.ledger.Create(ctx, order)
	if err != nil {
		return CreateResult{}, err
	}

	created, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return CreateResult{}, err
	}

	s.sched.ScheduleAt(s.cfg.ConfirmTimeout, orderID, s.confirmTimeoutCheck)
	s.publish(ctx, notify.BranchTopic(req.BranchID), map[string]any{
		"type":     "new_order",
		"order_id": orderID,
		"number":   number,
	})

	return CreateResult{Order: created, SecretPhrase: phrase}, nil
}

func (s *Service) buildItem(ctx context.Context, branchID int64, line CreateLine) (repo.OrderItem, error) {
	p, err := s.menu.ItemPricing(ctx, branchID, line.MenuItemID)
	if err != nil {
		return repo.OrderItem{}, err
	}
	if !p.IsAvailable {
		return repo.OrderItem{}, fmt.Errorf("%w: %s", ErrItemUnavailable, p.Name)
	}

	mods, err := s.menu.Modifiers(ctx, line.MenuItemID, line.ModifierIDs)
	if err != nil {
		return repo.OrderItem{}, err
	}

	added := decimal.Zero
	snap := lineSnapshot{Name: p.Name, UnitPrice: p.Price.StringFixed(2)}
	for _, m := range mods {
		added = added.Add(m.Delta)
		snap.Modifiers = append(snap.Modifiers, struct {
			Name  string `json:"name"`
			Delta string `json:"delta"`
		}{Name: m.Name, Delta: m.Delta.StringFixed(2)})
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return repo.OrderItem{}, err
	}

	return repo.OrderItem{
		MenuItemID:     line.MenuItemID,
		CategoryID:     p.CategoryID,
		Quantity:       line.Quantity,
		UnitPrice:      p.Price,
		AddedTotal:     added,
		LineTotal:      pricing.LineTotal(p.Price, added, line.Quantity),
		DiscountAmount: decimal.Zero,
		Snapshot:       string(snapJSON),
	}, nil
}

const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateOrderNumber builds a date-prefixed human-facing number and
// retries against collisions a capped number of times.
func (s *Service) generateOrderNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.cfg.NumberAttempts; attempt++ {
		suffix := make([]byte, 5)
		for i := range suffix {
			suffix[i] = numberAlphabet[rand.Intn(len(numberAlphabet))]
		}
		number := fmt.Sprintf("%s-%s", time.Now().Format("20060102"), suffix)

		taken, err := s.ledger.NumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", repo.ErrCodeSpaceExhausted
}

// generateSecretPhrase draws the one-time proof-of-handoff phrase from the
// OS entropy source. The alphabet length divides 256, so the byte modulo
// stays uniform.
func generateSecretPhrase() (string, error) {
	buf := make([]byte, 6)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = numberAlphabet[int(buf[i])%len(numberAlphabet)]
	}
	return string(buf), nil
}

// ApplyCoupon evaluates a coupon code against a pending order and persists
// the discount atomically with one consumed use. A race-lost consumption
// surfaces repo.ErrCouponExhausted and changes nothing.
func (s *Service) ApplyCoupon(ctx context.Context, customerID, orderID int64, code string) (repo.Order, error) {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return repo.Order{}, err
	}
	if order.CustomerID != customerID {
		return repo.Order{}, repo.ErrNotFound
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return repo.Order{}, err
	}

	result, err := discount.Apply(coupon, order.BranchID, order.Items, time.Now())
	if err != nil {
		return repo.Order{}, err
	}

	deliveryPrice := order.DeliveryPrice
	if result.FreeDelivery {
		deliveryPrice = decimal.Zero
	}
	grandTotal := pricing.GrandTotal(order.Subtotal, result.DiscountTotal, order.CommissionRate, deliveryPrice)

	if err := s.ledger.ApplyCoupon(ctx, orderID, coupon.ID, result.LineDiscounts, result.DiscountTotal, deliveryPrice, grandTotal, coupon.Code); err != nil {
		return repo.Order{}, err
	}

	s.publish(ctx, notify.CustomerTopic(customerID), map[string]any{
		"type":           "coupon_applied",
		"order_id":       orderID,
		"discount_total": result.DiscountTotal.StringFixed(2),
		"grand_total":    grandTotal.StringFixed(2),
	})
	return s.ledger.Get(ctx, orderID)
}
