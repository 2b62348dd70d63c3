package service

import (
	"errors"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/cycle"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/rebalance"
)

// Timing.
var ErrCycleNotStarted = cycle.ErrCycleNotStarted

// Authorization.
var (
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotAuthorizedToPause  = errors.New("not authorized to pause")
	ErrNotAuthorizedToResume = errors.New("not authorized to resume")
)

// Preconditions and validation.
var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrAccountAlreadyRegistered  = errors.New("account already registered")
	ErrTwoTargetsMinimum         = errors.New("at least two targets are required")
	ErrTargetsMustBeUnique       = errors.New("target denoms must be unique")
	ErrMultipleMinBalanceTargets = errors.New("only one target may have a min balance")
	ErrDenomNotWhitelisted       = errors.New("denom not whitelisted")
	ErrBaseDenomNotWhitelisted   = errors.New("base denom not whitelisted")
	ErrInvalidAccountMinValue    = errors.New("account value below the minimum")
	ErrInvalidMaxLimit           = errors.New("max limit must be between 1 and 10000 bps")
	ErrInvalidTargetBps          = errors.New("target bps must be between 1 and 9999")
	ErrInvalidPID                = errors.New("invalid pid parameters")
	ErrInvalidOverrideStrategy   = errors.New("invalid target override strategy")
	ErrInvalidMinBalance         = errors.New("invalid min balance")
	ErrInvalidLimit              = errors.New("limit must not be negative")
	ErrAccountAlreadyPaused      = errors.New("account already paused")
	ErrNotPaused                 = errors.New("account is not paused")
	ErrPairPriceIsZero           = errors.New("pair price is zero")

	// ErrInvalidTargetPercentage is raised both here (sum of bps) and by the override.
	ErrInvalidTargetPercentage = rebalance.ErrInvalidTargetPercentage
)

// Per-account rebalance failures, re-exported for callers of the service.
var (
	ErrMissingPrice       = model.ErrMissingPrice
	ErrOverflow           = calculator.ErrOverflow
	ErrAccountBalanceZero = rebalance.ErrAccountBalanceZero
	ErrNoMinTradeAmount   = rebalance.ErrNoMinTradeAmount
	ErrNoMinBalanceTarget = rebalance.ErrNoMinBalanceTarget
)

// Class groups errors by how a caller should react.
type Class string

const (
	ClassTiming        Class = "timing"
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassNotFound      Class = "not_found"
	ClassFatal         Class = "fatal"
)

var (
	authorizationErrs = []error{ErrNotAuthorized, ErrNotAuthorizedToPause, ErrNotAuthorizedToResume}
	validationErrs    = []error{
		ErrAccountAlreadyRegistered, ErrTwoTargetsMinimum, ErrTargetsMustBeUnique,
		ErrMultipleMinBalanceTargets, ErrDenomNotWhitelisted, ErrBaseDenomNotWhitelisted,
		ErrInvalidAccountMinValue, ErrInvalidMaxLimit, ErrInvalidTargetBps, ErrInvalidPID,
		ErrInvalidOverrideStrategy, ErrInvalidMinBalance, ErrInvalidLimit,
		ErrAccountAlreadyPaused, ErrNotPaused, ErrPairPriceIsZero, ErrInvalidTargetPercentage,
	}
	conflictErrs = []error{ErrAccountAlreadyRegistered, ErrAccountAlreadyPaused, ErrNotPaused}
)

// Classify maps err onto a Class. Unknown errors are fatal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCycleNotStarted):
		return ClassTiming
	case isAny(err, authorizationErrs):
		return ClassAuthorization
	case errors.Is(err, ErrAccountNotFound):
		return ClassNotFound
	case isAny(err, validationErrs):
		return ClassValidation
	default:
		return ClassFatal
	}
}

// IsConflict reports validation errors caused by the current state rather than the request.
func IsConflict(err error) bool { return isAny(err, conflictErrs) }

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
