// Package pricing implements the store's unit-price policy: prices always
// end in round hundreds of minor units, and percentage discounts are floored
// to the same grid before subtraction.
package pricing

// Step is the pricing grid in minor units. Unit prices and discount amounts
// are floored to multiples of this value.
const Step = 100

// FloorToStep floors a non-negative amount to the nearest multiple of Step.
// Negative inputs clamp to zero.
func FloorToStep(v int64) int64 {
	if v <= 0 {
		return 0
	}
	return v - v%Step
}

// Unit computes the final unit price for a raw price and an optional
// percentage discount. The raw price is floored to the grid first; the
// discount amount is computed on the raw price and floored to the grid as
// well, then subtracted. The result never goes below zero.
func Unit(raw, discountPercent int64) int64 {
	price := FloorToStep(raw)
	if discountPercent > 0 {
		discount := FloorToStep(raw * discountPercent / 100)
		price -= discount
	}
	if price < 0 {
		price = 0
	}
	return price
}

// Subtotal is the line subtotal for a unit price and quantity.
func Subtotal(unit int64, quantity int32) int64 {
	return unit * int64(quantity)
}
