package cycle

import (
	"errors"
	"fmt"
	"time"

	"RebalanceKeeper/internal/model"
)

const (
	DefaultLimit  = 50
	DefaultPeriod = 24 * time.Hour
	// MaxStartAhead bounds how far in the future the first cycle may be scheduled.
	MaxStartAhead = 30 * 24 * time.Hour
)

var ErrCycleNotStarted = errors.New("cycle not started yet")

// NotStartedError carries the earliest time the next cycle may run.
type NotStartedError struct {
	Next time.Time
}

func (e *NotStartedError) Error() string {
	return fmt.Sprintf("%v: next cycle at %s", ErrCycleNotStarted, e.Next.Format(time.RFC3339))
}

func (e *NotStartedError) Is(target error) bool { return target == ErrCycleNotStarted }

// Page is where an invocation resumes: the cycle it belongs to, the exclusive
// cursor, and the cycle's frozen prices. Fresh pages carry no prices and must
// snapshot them; a resumed page keeps whatever table was stored, even an empty one.
type Page struct {
	CycleStarted time.Time
	After        string
	Prices       model.PriceTable
	Fresh        bool
}

// Begin resolves status at now into the page to process.
func Begin(status model.CycleStatus, now time.Time, period time.Duration) (Page, error) {
	switch s := status.(type) {
	case model.NotStarted:
		if now.Before(s.CycleStart) {
			return Page{}, &NotStartedError{Next: s.CycleStart}
		}
		return Page{CycleStarted: PeriodStart(now, period), Fresh: true}, nil
	case model.Processing:
		if now.After(s.CycleStarted.Add(period)) {
			return Page{CycleStarted: PeriodStart(now, period), Fresh: true}, nil
		}
		return Page{CycleStarted: s.CycleStarted, After: s.Cursor, Prices: s.Prices}, nil
	case model.Finished:
		if now.Before(s.NextCycle) {
			return Page{}, &NotStartedError{Next: s.NextCycle}
		}
		return Page{CycleStarted: s.NextCycle, Fresh: true}, nil
	default:
		return Page{}, fmt.Errorf("unknown cycle status %T", status)
	}
}

// End computes the status after visiting visited accounts, the last being lastKey.
func End(p Page, visited, limit int, lastKey string, period time.Duration) model.CycleStatus {
	if visited < limit {
		return model.Finished{NextCycle: p.CycleStarted.Add(period)}
	}
	cursor := p.After
	if visited > 0 {
		cursor = lastKey
	}
	return model.Processing{CycleStarted: p.CycleStarted, Cursor: cursor, Prices: p.Prices}
}

// PeriodStart truncates t to the start of its cycle period (UTC midnight for 24h).
func PeriodStart(t time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(period)
}

// ValidateStart rejects a first cycle scheduled more than MaxStartAhead after now.
func ValidateStart(start, now time.Time) error {
	if start.After(now.Add(MaxStartAhead)) {
		return fmt.Errorf("cycle start %s is more than 30 days ahead", start.Format(time.RFC3339))
	}
	return nil
}
