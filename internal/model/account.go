package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverrideStrategy selects how percentage left over by a reserve override is redistributed.
type OverrideStrategy string

const (
	OverrideProportional OverrideStrategy = "proportional"
	OverridePriority     OverrideStrategy = "priority"
)

func (s OverrideStrategy) Valid() bool {
	switch s {
	case OverrideProportional, OverridePriority:
		return true
	default:
		return false
	}
}

// PID holds the controller gains of an account.
type PID struct {
	P decimal.Decimal `json:"p"`
	I decimal.Decimal `json:"i"`
	D decimal.Decimal `json:"d"`
}

// Target is one allocation line of an account.
type Target struct {
	Denom      string           `json:"denom"`
	Percentage decimal.Decimal  `json:"percentage"`
	MinBalance *decimal.Decimal `json:"min_balance,omitempty"` // reserve floor, in amount
	LastInput  *decimal.Decimal `json:"last_input,omitempty"`
	LastI      decimal.Decimal  `json:"last_i"`
}

// AccountConfig is the persisted rebalance configuration and control state of one account.
type AccountConfig struct {
	Trustee          string           `json:"trustee,omitempty"`
	BaseDenom        string           `json:"base_denom"`
	Targets          []Target         `json:"targets"`
	PID              PID              `json:"pid"`
	MaxLimit         decimal.Decimal  `json:"max_limit"` // fraction of total value sellable per cycle
	OverrideStrategy OverrideStrategy `json:"target_override_strategy"`
	LastRebalance    time.Time        `json:"last_rebalance"`
	HasMinBalance    bool             `json:"has_min_balance"`
	PausedBy         string           `json:"paused_by,omitempty"`
}

func (c *AccountConfig) Paused() bool { return c.PausedBy != "" }

// ReserveTarget returns the index of the target carrying a reserve floor.
func (c *AccountConfig) ReserveTarget() (int, bool) {
	for i := range c.Targets {
		if c.Targets[i].MinBalance != nil {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy safe to mutate.
func (c AccountConfig) Clone() AccountConfig {
	out := c
	out.Targets = make([]Target, len(c.Targets))
	for i, t := range c.Targets {
		out.Targets[i] = t.clone()
	}
	return out
}

func (t Target) clone() Target {
	out := t
	if t.MinBalance != nil {
		v := *t.MinBalance
		out.MinBalance = &v
	}
	if t.LastInput != nil {
		v := *t.LastInput
		out.LastInput = &v
	}
	return out
}

// Account pairs a config with its identifier, the pagination key.
type Account struct {
	ID     string        `json:"id"`
	Config AccountConfig `json:"config"`
}
