package rebalance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
)

// Plan is the outcome of the controller for one account, before venue minimums are known.
type Plan struct {
	Account string
	Total   decimal.Decimal
	Sell    []Holding
	Buy     []Holding
	// Config carries the control state to persist: per-target last input and
	// integral term, and the rebalance timestamp.
	Config   model.AccountConfig
	MaxLimit decimal.Decimal
}

// Prepare aggregates inputs, applies the reserve override and runs the PID step
// for every target of acc.
func Prepare(acc model.Account, balances map[string]decimal.Decimal, prices model.PriceTable, now time.Time, period time.Duration) (*Plan, error) {
	cfg := acc.Config.Clone()

	total, holdings, err := Inputs(&cfg, balances, prices)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return nil, ErrAccountBalanceZero
	}

	if cfg.HasMinBalance {
		if err := Override(cfg.OverrideStrategy, total, holdings); err != nil {
			return nil, err
		}
	}

	dt := calculator.DeltaT(now, cfg.LastRebalance, period)
	sell, buy := ApplyPID(cfg.PID, total, holdings, dt)

	// Percentages stay as registered; only the controller memory moves forward.
	for _, h := range holdings {
		t := &cfg.Targets[h.Index]
		t.LastInput = h.Target.LastInput
		t.LastI = h.Target.LastI
	}
	cfg.LastRebalance = now

	return &Plan{
		Account:  acc.ID,
		Total:    total,
		Sell:     sell,
		Buy:      buy,
		Config:   cfg,
		MaxLimit: cfg.MaxLimit,
	}, nil
}

// ApplyPID runs one controller step per holding and splits them into sells and buys.
// Each holding's Target memory (LastInput, LastI) is advanced in place.
func ApplyPID(pid model.PID, total decimal.Decimal, holdings []Holding, dt decimal.Decimal) (sell, buy []Holding) {
	gains := calculator.Gains{P: pid.P, I: pid.I, D: pid.D}
	for i := range holdings {
		h := &holdings[i]
		out := calculator.PIDStep(gains, calculator.PIDInput{
			Setpoint:  calculator.Mul(total, h.Target.Percentage),
			Input:     h.Value,
			LastInput: h.Target.LastInput,
			LastI:     h.Target.LastI,
			DT:        dt,
		})

		v := h.Value
		h.Target.LastInput = &v
		h.Target.LastI = out.I

		if out.Value.Sign() < 0 {
			h.ToTrade = out.Value.Neg()
			sell = append(sell, *h)
		} else {
			h.ToTrade = out.Value
			buy = append(buy, *h)
		}
	}
	return sell, buy
}

// SellDenoms lists the distinct denoms the plan wants to sell, sorted.
func (p *Plan) SellDenoms() []string {
	seen := make(map[string]bool, len(p.Sell))
	var out []string
	for _, h := range p.Sell {
		if !seen[h.Target.Denom] {
			seen[h.Target.Denom] = true
			out = append(out, h.Target.Denom)
		}
	}
	sort.Strings(out)
	return out
}

// SetMinimums converts the venue minimum amount of every sell denom into value.
func (p *Plan) SetMinimums(amounts map[string]decimal.Decimal) error {
	for i := range p.Sell {
		h := &p.Sell[i]
		amt, ok := amounts[h.Target.Denom]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoMinTradeAmount, h.Target.Denom)
		}
		v, err := calculator.Quo(amt, h.Price)
		if err != nil {
			return fmt.Errorf("min value of %s: %w", h.Target.Denom, err)
		}
		h.MinValue = v
	}
	return nil
}
