// Package discount evaluates coupons against an order's line items. The
// engine is pure: it reads the coupon and the snapshot lines and returns
// per-line discount amounts, without touching storage. Consumption of a
// coupon use happens separately, inside the order transaction.
package discount

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tamaqBack/internal/repo"
)

// ErrNotEligible covers every eligibility failure. Callers get the concrete
// reason in the wrapped message; the order stays untouched.
var ErrNotEligible = errors.New("discount: coupon not eligible")

var hundred = decimal.NewFromInt(100)

// Result is the outcome of applying one coupon to an order's items.
type Result struct {
	// LineDiscounts maps order_item id to its discount amount. Lines
	// without a discount are absent.
	LineDiscounts map[int64]decimal.Decimal
	DiscountTotal decimal.Decimal
	FreeDelivery  bool
}

// CheckEligible validates the coupon against the order without computing
// amounts.
func CheckEligible(c repo.Coupon, branchID int64, items []repo.OrderItem, now time.Time) error {
	if !c.IsActive {
		return fmt.Errorf("%w: inactive", ErrNotEligible)
	}
	if now.Before(c.ValidFrom) {
		return fmt.Errorf("%w: not started", ErrNotEligible)
	}
	if c.ValidUntil.Valid && now.After(c.ValidUntil.Time) {
		return fmt.Errorf("%w: expired", ErrNotEligible)
	}
	if c.MaxUses.Valid && c.UsesCount >= c.MaxUses.Int64 {
		return fmt.Errorf("%w: uses exhausted", ErrNotEligible)
	}
	if c.Scope == repo.ScopeBranch {
		if !c.BranchID.Valid || c.BranchID.Int64 != branchID {
			return fmt.Errorf("%w: wrong branch", ErrNotEligible)
		}
	}

	switch c.Type {
	case repo.CouponDeliveryWaiver:
		return nil
	case repo.CouponItemDiscount:
		if !c.TargetID.Valid || !anyLine(items, func(it repo.OrderItem) bool { return it.MenuItemID == c.TargetID.Int64 }) {
			return fmt.Errorf("%w: no line matches item", ErrNotEligible)
		}
	case repo.CouponCategoryDiscount:
		if !c.TargetID.Valid || !anyLine(items, func(it repo.OrderItem) bool { return it.CategoryID == c.TargetID.Int64 }) {
			return fmt.Errorf("%w: no line matches category", ErrNotEligible)
		}
	case repo.CouponBuyXGetY:
		if !c.BuyItemID.Valid || !c.GetItemID.Valid || c.BuyQty <= 0 || c.GetQty <= 0 {
			return fmt.Errorf("%w: malformed bxgy coupon", ErrNotEligible)
		}
		if !anyLine(items, func(it repo.OrderItem) bool { return it.MenuItemID == c.BuyItemID.Int64 }) {
			return fmt.Errorf("%w: no line matches buy item", ErrNotEligible)
		}
	default:
		return fmt.Errorf("%w: unknown coupon type %q", ErrNotEligible, c.Type)
	}
	return nil
}

// Apply checks eligibility and computes the discount for every affected
// line. Line amounts are clamped so no line's discount exceeds its own
// total; the overall total is the sum of line amounts.
func Apply(c repo.Coupon, branchID int64, items []repo.OrderItem, now time.Time) (Result, error) {
	if err := CheckEligible(c, branchID, items, now); err != nil {
		return Result{}, err
	}

	res := Result{LineDiscounts: make(map[int64]decimal.Decimal)}
	switch c.Type {
	case repo.CouponDeliveryWaiver:
		res.FreeDelivery = true

	case repo.CouponItemDiscount:
		applyRateToLines(&res, c, items, func(it repo.OrderItem) bool { return it.MenuItemID == c.TargetID.Int64 })

	case repo.CouponCategoryDiscount:
		applyRateToLines(&res, c, items, func(it repo.OrderItem) bool { return it.CategoryID == c.TargetID.Int64 })

	case repo.CouponBuyXGetY:
		applyBuyXGetY(&res, c, items)
	}

	total := decimal.Zero
	for _, amount := range res.LineDiscounts {
		total = total.Add(amount)
	}
	res.DiscountTotal = total
	return res, nil
}

// perUnit computes the discount applied to a single unit's base price.
// Fixed discounts never exceed the unit price; nothing goes negative.
func perUnit(c repo.Coupon, price decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountKind {
	case repo.KindPercent:
		d = price.Mul(c.DiscountValue).Div(hundred)
	case repo.KindFixed:
		d = decimal.Min(c.DiscountValue, price)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func applyRateToLines(res *Result, c repo.Coupon, items []repo.OrderItem, match func(repo.OrderItem) bool) {
	for _, it := range items {
		if !match(it) {
			continue
		}
		amount := perUnit(c, it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		if amount.GreaterThan(it.LineTotal) {
			amount = it.LineTotal
		}
		if amount.IsPositive() {
			res.LineDiscounts[it.ID] = amount
		}
	}
}

// applyBuyXGetY grants free units of the get-item based on how many buy-item
// units the order carries. Full groups earn their full free quota; the
// leftover earns a pro-rata share with integer division, rounding down in
// the platform's favor. Free units burn down against get-item lines oldest
// first.
func applyBuyXGetY(res *Result, c repo.Coupon, items []repo.OrderItem) {
	bought := 0
	for _, it := range items {
		if it.MenuItemID == c.BuyItemID.Int64 {
			bought += it.Quantity
		}
	}

	groupSize := c.BuyQty + c.GetQty
	free := (bought / groupSize) * c.GetQty
	leftover := bought % groupSize
	free += (leftover * c.GetQty) / groupSize
	if free <= 0 {
		return
	}

	for _, it := range items {
		if free == 0 {
			break
		}
		if it.MenuItemID != c.GetItemID.Int64 {
			continue
		}
		n := free
		if n > it.Quantity {
			n = it.Quantity
		}
		amount := it.UnitPrice.Mul(decimal.NewFromInt(int64(n))).Round(2)
		if amount.GreaterThan(it.LineTotal) {
			amount = it.LineTotal
		}
		if amount.IsPositive() {
			res.LineDiscounts[it.ID] = amount
		}
		free -= n
	}
}

func anyLine(items []repo.OrderItem, match func(repo.OrderItem) bool) bool {
	for _, it := range items {
		if match(it) {
			return true
		}
	}
	return false
}
