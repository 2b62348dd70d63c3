package collector

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceSource defines the interface for pricing pairs and looking up venue trade minimums.
type PriceSource interface {
	// GetPrice returns how much quote one unit of base is worth.
	GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error)
	// GetMinimumAmount returns the smallest sellable amount of denom; false when the venue has none.
	GetMinimumAmount(ctx context.Context, denom string) (decimal.Decimal, bool, error)
}
