package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(d("1500"), d("200"), 3)
	if !got.Equal(d("5100")) {
		t.Fatalf("LineTotal = %s, want 5100", got)
	}
	got = LineTotal(d("990.50"), decimal.Zero, 2)
	if !got.Equal(d("1981")) {
		t.Fatalf("LineTotal = %s, want 1981", got)
	}
}

func TestGrandTotal(t *testing.T) {
	// two items at 6000, no discount, 10% commission, 700 delivery
	got := GrandTotal(d("12000"), decimal.Zero, d("0.10"), d("700"))
	if !got.Equal(d("13900")) {
		t.Fatalf("GrandTotal = %s, want 13900", got)
	}

	// commission applies to the discounted subtotal only, not the fee
	got = GrandTotal(d("12000"), d("2000"), d("0.10"), d("700"))
	if !got.Equal(d("11700")) {
		t.Fatalf("GrandTotal = %s, want 11700", got)
	}

	// fully discounted order still pays delivery
	got = GrandTotal(d("5000"), d("5000"), d("0.15"), d("700"))
	if !got.Equal(d("700")) {
		t.Fatalf("GrandTotal = %s, want 700", got)
	}

	// result is rounded to two decimals
	got = GrandTotal(d("999.99"), decimal.Zero, d("0.125"), decimal.Zero)
	if !got.Equal(d("1124.99")) {
		t.Fatalf("GrandTotal = %s, want 1124.99", got)
	}
}

func TestConsistent(t *testing.T) {
	if !Consistent(d("12000"), d("2000"), d("0.10"), d("700"), d("11700")) {
		t.Fatal("expected stored total to be consistent")
	}
	if Consistent(d("12000"), d("2000"), d("0.10"), d("700"), d("11700.01")) {
		t.Fatal("expected drifted total to be inconsistent")
	}
}
