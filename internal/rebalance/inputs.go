package rebalance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
)

// Holding is the working set of one target during a rebalance.
type Holding struct {
	Index    int // position in AccountConfig.Targets
	Target   model.Target
	Price    decimal.Decimal // target denom per unit of base denom
	Balance  decimal.Decimal // amount
	Value    decimal.Decimal // Balance / Price
	ToTrade  decimal.Decimal // value
	MinValue decimal.Decimal // venue minimum, in value
}

// Floor is the reserve amount the holding may never sell below.
func (h *Holding) Floor() decimal.Decimal {
	if h.Target.MinBalance == nil {
		return decimal.Zero
	}
	return *h.Target.MinBalance
}

// Inputs values every target of cfg in base units and returns the account total.
func Inputs(cfg *model.AccountConfig, balances map[string]decimal.Decimal, prices model.PriceTable) (decimal.Decimal, []Holding, error) {
	total := decimal.Zero
	holdings := make([]Holding, 0, len(cfg.Targets))

	for i, t := range cfg.Targets {
		price := calculator.One
		if t.Denom != cfg.BaseDenom {
			p, ok := prices.Lookup(cfg.BaseDenom, t.Denom)
			if !ok || p.Sign() <= 0 {
				return decimal.Zero, nil, fmt.Errorf("%w: %s/%s", model.ErrMissingPrice, cfg.BaseDenom, t.Denom)
			}
			price = p
		}

		balance := balances[t.Denom]
		if err := calculator.CheckAmount(balance); err != nil {
			return decimal.Zero, nil, fmt.Errorf("balance of %s: %w", t.Denom, err)
		}
		value, err := calculator.Quo(balance, price)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("value of %s: %w", t.Denom, err)
		}

		total = total.Add(value)
		holdings = append(holdings, Holding{
			Index:   i,
			Target:  t,
			Price:   price,
			Balance: balance,
			Value:   value,
		})
	}
	return total, holdings, nil
}

// Override raises the reserve target's percentage so its floor is covered and
// shrinks the other targets per the account's strategy. Holdings are modified in place.
func Override(strategy model.OverrideStrategy, total decimal.Decimal, holdings []Holding) error {
	r := -1
	for i := range holdings {
		if holdings[i].Target.MinBalance != nil {
			r = i
			break
		}
	}
	if r < 0 {
		return ErrNoMinBalanceTarget
	}
	reserve := &holdings[r]

	reserveValue, err := calculator.Quo(reserve.Floor(), reserve.Price)
	if err != nil {
		return fmt.Errorf("reserve value: %w", err)
	}
	if reserveValue.LessThan(calculator.Mul(reserve.Target.Percentage, total)) {
		return nil
	}

	newPct := calculator.One
	if reserveValue.LessThan(total) {
		newPct, err = calculator.Quo(reserveValue, total)
		if err != nil {
			return fmt.Errorf("reserve percentage: %w", err)
		}
	}
	leftover := calculator.One.Sub(newPct)
	oldLeftover := calculator.One.Sub(reserve.Target.Percentage)

	sum := newPct
	for i := range holdings {
		h := &holdings[i]
		if i == r {
			continue
		}
		switch {
		case leftover.IsZero():
			h.Target.Percentage = decimal.Zero
		case strategy == model.OverridePriority:
			if leftover.GreaterThanOrEqual(h.Target.Percentage) {
				leftover = leftover.Sub(h.Target.Percentage)
			} else {
				h.Target.Percentage = leftover
				leftover = decimal.Zero
			}
		default:
			share, err := calculator.Quo(h.Target.Percentage, oldLeftover)
			if err != nil {
				return fmt.Errorf("%w: reserve held the whole account", ErrInvalidTargetPercentage)
			}
			h.Target.Percentage = calculator.Mul(share, leftover)
		}
		sum = sum.Add(h.Target.Percentage)
	}
	reserve.Target.Percentage = newPct

	if sum.GreaterThan(calculator.One) || sum.LessThan(calculator.MinPercentageSum) {
		return fmt.Errorf("%w: %s", ErrInvalidTargetPercentage, sum)
	}
	return nil
}
