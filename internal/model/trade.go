package model

import "github.com/shopspring/decimal"

// Trade sends Amount of Sell to the venue in exchange for Buy.
type Trade struct {
	Sell   string          `json:"sell"`
	Buy    string          `json:"buy"`
	Amount decimal.Decimal `json:"amount"`
}

func (t Trade) Pair() Pair { return Pair{Base: t.Sell, Quote: t.Buy} }

// Instruction groups the trades of one account for one invocation.
// Trades are independent: one failing does not undo the others.
type Instruction struct {
	ID      string  `json:"id"`
	Account string  `json:"account"`
	Trades  []Trade `json:"trades"`
}

// BaseDenom is a denom accounts may value themselves in.
type BaseDenom struct {
	Denom           string          `json:"denom"`
	MinBalanceLimit decimal.Decimal `json:"min_balance_limit"`
}

// Whitelist lists the denoms accounts may target and value in.
type Whitelist struct {
	Denoms     []string    `json:"denoms"`
	BaseDenoms []BaseDenom `json:"base_denoms"`
}

func (w Whitelist) HasDenom(denom string) bool {
	for _, d := range w.Denoms {
		if d == denom {
			return true
		}
	}
	return false
}

func (w Whitelist) BaseDenom(denom string) (BaseDenom, bool) {
	for _, bd := range w.BaseDenoms {
		if bd.Denom == denom {
			return bd, true
		}
	}
	return BaseDenom{}, false
}
