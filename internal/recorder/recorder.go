package recorder

import (
	"errors"
	"time"

	"RebalanceKeeper/internal/venue"
)

// RunEvent summarizes one cycle invocation.
type RunEvent struct {
	ID           string    `json:"id"`
	At           time.Time `json:"at"`
	CycleStarted time.Time `json:"cycle_started,omitempty"`
	Status       string    `json:"status"` // cycle status kind after the run
	Visited      int       `json:"visited"`
	Rebalanced   int       `json:"rebalanced"`
	Skipped      int       `json:"skipped"`
	Paused       int       `json:"paused"`
	Instructions int       `json:"instructions"`
	Error        string    `json:"error,omitempty"`
}

// SkipEvent records an account left untouched by a run.
type SkipEvent struct {
	RunID   string    `json:"run_id"`
	At      time.Time `json:"at"`
	Account string    `json:"account"`
	Reason  string    `json:"reason"`
}

// TradeEvent records the venue outcome of one trade.
type TradeEvent struct {
	RunID  string       `json:"run_id"`
	Result venue.Result `json:"result"`
}

// Recorder journals cycle runs for later analysis.
type Recorder interface {
	RecordRun(evt *RunEvent) error
	RecordSkip(evt *SkipEvent) error
	RecordTrade(evt *TradeEvent) error
	Close() error
}

// Multi fans every record out to all recorders and joins their errors.
type Multi []Recorder

func (m Multi) RecordRun(evt *RunEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordRun(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordSkip(evt *SkipEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordSkip(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordTrade(evt *TradeEvent) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordTrade(evt))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
