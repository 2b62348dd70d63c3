package model

import (
	"github.com/shopspring/decimal"
)

// Pair is an ordered (base, quote) denom pair.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// PricePoint is the price of one pair: how much quote one unit of base is worth.
type PricePoint struct {
	Pair  Pair            `json:"pair"`
	Price decimal.Decimal `json:"price"`
}

// PriceTable is a frozen, ordered price snapshot valid for one cycle.
type PriceTable []PricePoint

// Lookup finds the price of base/quote.
func (t PriceTable) Lookup(base, quote string) (decimal.Decimal, bool) {
	for _, p := range t {
		if p.Pair.Base == base && p.Pair.Quote == quote {
			return p.Price, true
		}
	}
	return decimal.Zero, false
}
