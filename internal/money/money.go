// Package money converts between the integer minor-unit amounts used
// internally and the decimal strings exposed on the API. All arithmetic in
// the order core happens on int64 minor units; decimals exist only at the
// boundary.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerUnit is the number of minor units in one whole currency unit.
const MinorUnitsPerUnit = 100

var ErrTooPrecise = errors.New("amount has more than two decimal places")

var minorScale = decimal.NewFromInt(MinorUnitsPerUnit)

// FromDecimal converts a decimal amount of whole currency units into minor
// units. "46.00" becomes 4600. Amounts finer than the minor unit are
// rejected rather than silently rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(minorScale)
	if !scaled.IsInteger() {
		return 0, ErrTooPrecise
	}
	return scaled.IntPart(), nil
}

// Parse converts an amount string like "46.00" into minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return FromDecimal(d)
}

// ToDecimal converts minor units back to whole currency units.
func ToDecimal(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(minorScale)
}

// Format renders minor units as a fixed two-decimal string for responses.
func Format(v int64) string {
	return ToDecimal(v).StringFixed(2)
}

// RoundToUnit rounds minor units to the nearest whole currency unit,
// half away from zero. Used only for the declared-total comparison;
// line-level arithmetic stays exact.
func RoundToUnit(v int64) int64 {
	if v >= 0 {
		return (v + MinorUnitsPerUnit/2) / MinorUnitsPerUnit * MinorUnitsPerUnit
	}
	return -((-v + MinorUnitsPerUnit/2) / MinorUnitsPerUnit * MinorUnitsPerUnit)
}
