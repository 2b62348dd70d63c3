package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/model"
)

// BalanceSource returns every balance an account holds, keyed by denom.
type BalanceSource interface {
	GetBalances(ctx context.Context, account string) (map[string]decimal.Decimal, error)
}

// Venue executes the trades of an instruction. Trades are independent: every
// trade gets its own Result and one failing leaves the others in place.
type Venue interface {
	Submit(ctx context.Context, ins model.Instruction) []Result
}

// Result is the execution outcome of a single trade.
type Result struct {
	ID          string          `json:"id"`
	Instruction string          `json:"instruction"`
	Account     string          `json:"account"`
	Trade       model.Trade     `json:"trade"`
	Received    decimal.Decimal `json:"received"`
	Error       string          `json:"error,omitempty"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

func (r Result) OK() bool { return r.Error == "" }
