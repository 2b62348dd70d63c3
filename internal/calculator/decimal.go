package calculator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by value and percentage math.
const Precision = 18

var (
	ErrOverflow     = errors.New("arithmetic overflow")
	ErrDivideByZero = errors.New("division by zero")
)

// MaxAmount is the largest integer amount a balance or trade may carry (2^128 - 1).
var MaxAmount = decimal.RequireFromString("340282366920938463463374607431768211455")

// Threshold below which a reserve-override percentage sum is rejected.
var MinPercentageSum = decimal.RequireFromString("0.9999")

var One = decimal.NewFromInt(1)

// Bps converts basis points into a fraction (10000 bps = 1).
func Bps(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}

// Mul multiplies and truncates to Precision.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Precision)
}

// Quo divides a by b truncating toward zero at Precision digits.
func Quo(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivideByZero
	}
	q, _ := a.QuoRem(b, Precision)
	return q, nil
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func SaturatingSub(a, b decimal.Decimal) decimal.Decimal {
	if b.GreaterThanOrEqual(a) {
		return decimal.Zero
	}
	return a.Sub(b)
}

// CeilAmount rounds a value up to a whole amount. Negative inputs yield zero.
func CeilAmount(v decimal.Decimal) (decimal.Decimal, error) {
	if v.Sign() <= 0 {
		return decimal.Zero, nil
	}
	a := v.Ceil()
	if err := CheckAmount(a); err != nil {
		return decimal.Zero, err
	}
	return a, nil
}

// FloorAmount rounds a value down to a whole amount. Negative inputs yield zero.
func FloorAmount(v decimal.Decimal) (decimal.Decimal, error) {
	if v.Sign() <= 0 {
		return decimal.Zero, nil
	}
	a := v.Floor()
	if err := CheckAmount(a); err != nil {
		return decimal.Zero, err
	}
	return a, nil
}

// CheckAmount verifies a is a non-negative integer within MaxAmount.
func CheckAmount(a decimal.Decimal) error {
	if a.Sign() < 0 {
		return fmt.Errorf("negative amount %s", a)
	}
	if !a.Equal(a.Truncate(0)) {
		return fmt.Errorf("fractional amount %s", a)
	}
	if a.GreaterThan(MaxAmount) {
		return fmt.Errorf("amount %s: %w", a, ErrOverflow)
	}
	return nil
}

// ParseAmount parses a non-negative integer amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	a, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if err := CheckAmount(a); err != nil {
		return decimal.Zero, err
	}
	return a, nil
}
