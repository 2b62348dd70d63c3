package calculator

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gains are the proportional, integral and derivative coefficients.
type Gains struct {
	P decimal.Decimal
	I decimal.Decimal
	D decimal.Decimal
}

// PIDInput is the state fed into a single controller step for one target.
type PIDInput struct {
	Setpoint  decimal.Decimal  // desired value
	Input     decimal.Decimal  // current value
	LastInput *decimal.Decimal // nil on the first run
	LastI     decimal.Decimal
	DT        decimal.Decimal
}

// PIDOutput carries the signed correction and the integral term to carry forward.
type PIDOutput struct {
	Value decimal.Decimal
	I     decimal.Decimal
}

// PIDStep computes P + I - D over the error Setpoint - Input.
func PIDStep(g Gains, in PIDInput) PIDOutput {
	e := in.Setpoint.Sub(in.Input)

	p := Mul(e, g.P)
	i := in.LastI.Add(Mul(Mul(e, g.I), in.DT))

	d := decimal.Zero
	if in.LastInput != nil && !in.DT.IsZero() {
		// DT is checked above, Quo cannot fail here.
		d, _ = Quo(Mul(in.Input.Sub(*in.LastInput), g.D), in.DT)
	}

	return PIDOutput{Value: p.Add(i).Sub(d), I: i}
}

// DeltaT is the elapsed time since last expressed in cycle periods; 1 when last is zero.
// Periods are counted in whole seconds, so a period under one second yields zero.
func DeltaT(now, last time.Time, period time.Duration) decimal.Decimal {
	if last.IsZero() {
		return One
	}
	elapsed := now.Unix() - last.Unix()
	if elapsed <= 0 || period < time.Second {
		return decimal.Zero
	}
	// the divisor is at least one second here
	dt, _ := Quo(decimal.NewFromInt(elapsed), decimal.NewFromInt(int64(period/time.Second)))
	return dt
}
