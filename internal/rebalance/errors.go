package rebalance

import (
	"errors"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
)

// Per-account errors. The driver skips the account and leaves its state untouched.
var (
	ErrAccountBalanceZero      = errors.New("account balance is zero")
	ErrNoMinTradeAmount        = errors.New("no minimum trade amount found")
	ErrNoMinBalanceTarget      = errors.New("no min balance target found")
	ErrInvalidTargetPercentage = errors.New("invalid target percentage")
)

// IsFatal reports whether err must abort the whole page instead of skipping one account.
func IsFatal(err error) bool {
	return errors.Is(err, model.ErrMissingPrice) || errors.Is(err, calculator.ErrOverflow)
}
