package discount

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tamaqBack/internal/repo"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func ni(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func activeCoupon(typ string) repo.Coupon {
	return repo.Coupon{
		ID:        1,
		Code:      "TESTCODE",
		Type:      typ,
		Scope:     repo.ScopePlatform,
		IsActive:  true,
		ValidFrom: testNow.Add(-time.Hour),
	}
}

func line(id, itemID, categoryID int64, qty int, price string) repo.OrderItem {
	p := d(price)
	return repo.OrderItem{
		ID:         id,
		MenuItemID: itemID,
		CategoryID: categoryID,
		Quantity:   qty,
		UnitPrice:  p,
		LineTotal:  p.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func TestCheckEligible(t *testing.T) {
	items := []repo.OrderItem{line(1, 100, 7, 2, "1500")}

	t.Run("inactive", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		c.IsActive = false
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})

	t.Run("not started", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		c.ValidFrom = testNow.Add(time.Hour)
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		c.ValidUntil = sql.NullTime{Time: testNow.Add(-time.Minute), Valid: true}
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})

	t.Run("open ended validity", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		if err := CheckEligible(c, 5, items, testNow.AddDate(10, 0, 0)); err != nil {
			t.Fatalf("open-ended coupon rejected: %v", err)
		}
	})

	t.Run("uses exhausted", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		c.MaxUses = ni(10)
		c.UsesCount = 10
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})

	t.Run("wrong branch", func(t *testing.T) {
		c := activeCoupon(repo.CouponDeliveryWaiver)
		c.Scope = repo.ScopeBranch
		c.BranchID = ni(9)
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
		if err := CheckEligible(c, 9, items, testNow); err != nil {
			t.Fatalf("matching branch rejected: %v", err)
		}
	})

	t.Run("no matching item line", func(t *testing.T) {
		c := activeCoupon(repo.CouponItemDiscount)
		c.DiscountKind = repo.KindPercent
		c.DiscountValue = d("10")
		c.TargetID = ni(999)
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})

	t.Run("malformed bxgy", func(t *testing.T) {
		c := activeCoupon(repo.CouponBuyXGetY)
		c.BuyItemID = ni(100)
		if err := CheckEligible(c, 5, items, testNow); !errors.Is(err, ErrNotEligible) {
			t.Fatalf("got %v, want ErrNotEligible", err)
		}
	})
}

func TestApplyDeliveryWaiver(t *testing.T) {
	c := activeCoupon(repo.CouponDeliveryWaiver)
	res, err := Apply(c, 5, []repo.OrderItem{line(1, 100, 7, 1, "3000")}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FreeDelivery {
		t.Fatal("expected free delivery")
	}
	if !res.DiscountTotal.IsZero() || len(res.LineDiscounts) != 0 {
		t.Fatalf("waiver must not discount lines, got total %s", res.DiscountTotal)
	}
}

func TestApplyItemPercent(t *testing.T) {
	c := activeCoupon(repo.CouponItemDiscount)
	c.DiscountKind = repo.KindPercent
	c.DiscountValue = d("10")
	c.TargetID = ni(100)

	items := []repo.OrderItem{
		line(1, 100, 7, 2, "1500"),
		line(2, 200, 7, 1, "2000"),
	}
	res, err := Apply(c, 5, items, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !res.DiscountTotal.Equal(d("300")) {
		t.Fatalf("DiscountTotal = %s, want 300", res.DiscountTotal)
	}
	if got := res.LineDiscounts[1]; !got.Equal(d("300")) {
		t.Fatalf("line 1 discount = %s, want 300", got)
	}
	if _, ok := res.LineDiscounts[2]; ok {
		t.Fatal("line 2 must not be discounted")
	}
}

func TestApplyCategoryFixedClamped(t *testing.T) {
	c := activeCoupon(repo.CouponCategoryDiscount)
	c.DiscountKind = repo.KindFixed
	c.DiscountValue = d("5000")
	c.TargetID = ni(7)

	items := []repo.OrderItem{line(1, 100, 7, 2, "1200")}
	res, err := Apply(c, 5, items, testNow)
	if err != nil {
		t.Fatal(err)
	}
	// fixed amount clamps at the unit price, so the line goes free but
	// never negative
	if !res.DiscountTotal.Equal(d("2400")) {
		t.Fatalf("DiscountTotal = %s, want 2400", res.DiscountTotal)
	}
}

func TestApplyBuyXGetY(t *testing.T) {
	newCoupon := func() repo.Coupon {
		c := activeCoupon(repo.CouponBuyXGetY)
		c.BuyQty = 2
		c.GetQty = 1
		c.BuyItemID = ni(100)
		c.GetItemID = ni(200)
		return c
	}

	t.Run("seven bought earns two free", func(t *testing.T) {
		items := []repo.OrderItem{
			line(1, 100, 7, 7, "1000"),
			line(2, 200, 7, 3, "800"),
		}
		res, err := Apply(newCoupon(), 5, items, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if !res.DiscountTotal.Equal(d("1600")) {
			t.Fatalf("DiscountTotal = %s, want 1600", res.DiscountTotal)
		}
	})

	t.Run("two bought earns nothing", func(t *testing.T) {
		items := []repo.OrderItem{
			line(1, 100, 7, 2, "1000"),
			line(2, 200, 7, 1, "800"),
		}
		res, err := Apply(newCoupon(), 5, items, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if !res.DiscountTotal.IsZero() {
			t.Fatalf("DiscountTotal = %s, want 0", res.DiscountTotal)
		}
	})

	t.Run("free units clamp at line quantity", func(t *testing.T) {
		items := []repo.OrderItem{
			line(1, 100, 7, 12, "1000"),
			line(2, 200, 7, 1, "800"),
		}
		res, err := Apply(newCoupon(), 5, items, testNow)
		if err != nil {
			t.Fatal(err)
		}
		if !res.DiscountTotal.Equal(d("800")) {
			t.Fatalf("DiscountTotal = %s, want 800", res.DiscountTotal)
		}
	})

	t.Run("free units spread oldest line first", func(t *testing.T) {
		items := []repo.OrderItem{
			line(1, 100, 7, 8, "1000"),
			line(2, 200, 7, 1, "800"),
			line(3, 200, 7, 5, "800"),
		}
		res, err := Apply(newCoupon(), 5, items, testNow)
		if err != nil {
			t.Fatal(err)
		}
		// 8 bought, group size 3: 2 full groups plus leftover 2 earning 0
		if got := res.LineDiscounts[2]; !got.Equal(d("800")) {
			t.Fatalf("line 2 discount = %s, want 800", got)
		}
		if got := res.LineDiscounts[3]; !got.Equal(d("800")) {
			t.Fatalf("line 3 discount = %s, want 800", got)
		}
	})
}
