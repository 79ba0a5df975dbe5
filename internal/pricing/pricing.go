// Package pricing holds the order money arithmetic. Everything is
// fixed-point decimal; floats never touch a monetary value.
package pricing

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// LineTotal computes a snapshot line's total: (price + addedTotal) * qty.
func LineTotal(price, addedTotal decimal.Decimal, quantity int) decimal.Decimal {
	return price.Add(addedTotal).Mul(decimal.NewFromInt(int64(quantity)))
}

// GrandTotal applies the platform commission to the discounted subtotal and
// adds the delivery fee on top. Commission does not apply to the delivery
// fee itself.
func GrandTotal(subtotal, discountTotal, commissionRate, deliveryPrice decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discountTotal).
		Mul(one.Add(commissionRate)).
		Add(deliveryPrice).
		Round(2)
}

// Consistent reports whether the stored grand total matches the invariant
// recomputed from its parts.
func Consistent(subtotal, discountTotal, commissionRate, deliveryPrice, grandTotal decimal.Decimal) bool {
	return GrandTotal(subtotal, discountTotal, commissionRate, deliveryPrice).Equal(grandTotal)
}
