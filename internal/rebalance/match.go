package rebalance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
)

// Match pairs sells with buys into trades. Venue minimums must be set first.
//
// Selling never crosses a reserve floor, the total sold value never exceeds
// MaxLimit * Total (except the forced reserve top-up), and no trade is smaller
// than the seller's venue minimum.
func Match(p *Plan) ([]model.Trade, error) {
	sell := append([]Holding(nil), p.Sell...)
	buy := append([]Holding(nil), p.Buy...)
	budget := calculator.Mul(p.MaxLimit, p.Total)

	sellable := make([]decimal.Decimal, len(sell))
	for i := range sell {
		sellable[i] = calculator.SaturatingSub(sell[i].Balance, sell[i].Floor())
	}

	var trades []model.Trade

	if len(sell) > 0 {
		for j := range buy {
			if buy[j].Target.MinBalance == nil {
				continue
			}
			t, ok, err := topUpReserve(&sell[0], &buy[j], &sellable[0], &budget)
			if err != nil {
				return nil, err
			}
			if ok {
				trades = append(trades, t)
			}
			break
		}
	}

	for i := range sell {
		s := &sell[i]
		for j := range buy {
			b := &buy[j]
			if b.ToTrade.Sign() <= 0 || s.ToTrade.Sign() <= 0 || budget.Sign() <= 0 {
				continue
			}

			maxValue, err := calculator.Quo(sellable[i], s.Price)
			if err != nil {
				return nil, fmt.Errorf("sellable value of %s: %w", s.Target.Denom, err)
			}
			if s.ToTrade.GreaterThan(maxValue) {
				s.ToTrade = maxValue
			}
			if s.ToTrade.IsZero() || s.ToTrade.LessThan(s.MinValue) {
				s.ToTrade = decimal.Zero
				continue
			}

			matched := decimal.Min(s.ToTrade, b.ToTrade, budget)
			if matched.LessThan(s.MinValue) {
				continue
			}

			amount, err := calculator.CeilAmount(calculator.Mul(matched, s.Price))
			if err != nil {
				return nil, fmt.Errorf("trade %s->%s: %w", s.Target.Denom, b.Target.Denom, err)
			}
			if amount.GreaterThan(sellable[i]) {
				amount = sellable[i]
			}
			if amount.IsZero() {
				continue
			}

			trades = append(trades, model.Trade{Sell: s.Target.Denom, Buy: b.Target.Denom, Amount: amount})
			sellable[i] = sellable[i].Sub(amount)
			s.ToTrade = calculator.SaturatingSub(s.ToTrade, matched)
			b.ToTrade = calculator.SaturatingSub(b.ToTrade, matched)
			budget = calculator.SaturatingSub(budget, matched)
		}
	}
	return trades, nil
}

// topUpReserve covers a reserve deficit too small for the seller's venue minimum by
// selling exactly that minimum into the reserve denom.
func topUpReserve(s, reserve *Holding, sellable, budget *decimal.Decimal) (model.Trade, bool, error) {
	if reserve.ToTrade.Sign() <= 0 || !reserve.ToTrade.LessThan(s.MinValue) {
		return model.Trade{}, false, nil
	}
	amount, err := calculator.CeilAmount(calculator.Mul(s.MinValue, s.Price))
	if err != nil {
		return model.Trade{}, false, fmt.Errorf("reserve top-up %s->%s: %w", s.Target.Denom, reserve.Target.Denom, err)
	}
	if amount.IsZero() || amount.GreaterThan(*sellable) {
		return model.Trade{}, false, nil
	}

	*sellable = sellable.Sub(amount)
	s.ToTrade = calculator.SaturatingSub(s.ToTrade, s.MinValue)
	reserve.ToTrade = decimal.Zero
	*budget = calculator.SaturatingSub(*budget, s.MinValue)

	return model.Trade{Sell: s.Target.Denom, Buy: reserve.Target.Denom, Amount: amount}, true, nil
}
