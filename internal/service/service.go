package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"RebalanceKeeper/internal/collector"
	"RebalanceKeeper/internal/cycle"
	"RebalanceKeeper/internal/metrics"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/recorder"
	"RebalanceKeeper/internal/store"
	"RebalanceKeeper/internal/venue"
)

// Options configure a Service. Zero values fall back to the cycle defaults.
type Options struct {
	Period       time.Duration
	DefaultLimit int
	CycleStart   time.Time // first cycle; zero means now
	Whitelist    model.Whitelist
	Operators    []string // identities allowed to manage any account
	Now          func() time.Time
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Store    store.Store
	Prices   collector.PriceSource
	Balances venue.BalanceSource
	Venue    venue.Venue
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
}

// Listener observes every cycle run that got past the timing check.
type Listener func(report *RunReport, err error)

// Service serializes cycle runs and account management.
type Service struct {
	mu        sync.Mutex
	opts      Options
	deps      Deps
	driver    *cycle.Driver
	listeners []Listener
}

// New wires a Service and seeds the cycle status on first start.
func New(ctx context.Context, deps Deps, opts Options) (*Service, error) {
	if opts.Period <= 0 {
		opts.Period = cycle.DefaultPeriod
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = cycle.DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Service{
		opts: opts,
		deps: deps,
		driver: &cycle.Driver{
			Prices:    deps.Prices,
			Balances:  deps.Balances,
			Accounts:  deps.Store,
			Whitelist: opts.Whitelist,
			Period:    opts.Period,
		},
	}

	st, err := deps.Store.Status(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		now := opts.Now()
		start := opts.CycleStart
		if start.IsZero() {
			start = now
		}
		if err := cycle.ValidateStart(start, now); err != nil {
			return nil, err
		}
		st = model.NotStarted{CycleStart: start.UTC()}
		if err := deps.Store.InitStatus(ctx, st); err != nil {
			return nil, fmt.Errorf("init status: %w", err)
		}
		log.Printf("[INFO] First cycle scheduled at %s", start.UTC().Format(time.RFC3339))
	case err != nil:
		return nil, fmt.Errorf("load status: %w", err)
	}
	deps.Metrics.Status(st.Kind())
	return s, nil
}

// OnRun registers l to be called after every run.
func (s *Service) OnRun(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RunReport describes one cycle invocation.
type RunReport struct {
	RunID        string                `json:"run_id"`
	At           time.Time             `json:"at"`
	CycleStarted time.Time             `json:"cycle_started"`
	Status       model.CycleStatus     `json:"-"`
	Visited      int                   `json:"visited"`
	Accounts     []cycle.AccountResult `json:"accounts"`
	Instructions []model.Instruction   `json:"instructions"`
	Results      []venue.Result        `json:"results"`
}

func (r RunReport) MarshalJSON() ([]byte, error) {
	type alias RunReport
	var raw json.RawMessage
	if r.Status != nil {
		b, err := model.MarshalStatus(r.Status)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(struct {
		alias
		Status json.RawMessage `json:"status,omitempty"`
	}{alias(r), raw})
}

// Count returns how many visited accounts ended with outcome.
func (r *RunReport) Count(outcome cycle.Outcome) int {
	n := 0
	for _, a := range r.Accounts {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}

// FailedTrades counts venue results carrying an error.
func (r *RunReport) FailedTrades() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// RunCycle advances the current cycle by up to limit accounts (DefaultLimit when nil).
func (s *Service) RunCycle(ctx context.Context, limit *int) (*RunReport, error) {
	s.mu.Lock()
	report, err := s.runLocked(ctx, limit)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if !errors.Is(err, ErrCycleNotStarted) && !errors.Is(err, ErrInvalidLimit) {
		for _, l := range listeners {
			l(report, err)
		}
	}
	return report, err
}

func (s *Service) runLocked(ctx context.Context, limit *int) (*RunReport, error) {
	n := s.opts.DefaultLimit
	if limit != nil {
		if *limit < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, *limit)
		}
		n = *limit
	}

	status, err := s.deps.Store.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}

	now := s.opts.Now()
	report := &RunReport{RunID: uuid.New().String(), At: now}

	began := time.Now()
	res, err := s.driver.Step(ctx, status, n, now)
	s.deps.Metrics.PageDuration(time.Since(began))
	if err != nil {
		if errors.Is(err, ErrCycleNotStarted) {
			s.deps.Metrics.Run("not_started")
			return nil, err
		}
		return report, s.fail(report, err)
	}

	if err := s.deps.Store.CommitPage(ctx, res.Status, res.Updated); err != nil {
		return report, s.fail(report, fmt.Errorf("commit page: %w", err))
	}

	report.CycleStarted = res.CycleStarted
	report.Status = res.Status
	report.Visited = res.Visited
	report.Accounts = res.Accounts
	report.Instructions = res.Instructions

	for _, a := range res.Accounts {
		s.deps.Metrics.Account(string(a.Outcome))
		if a.Outcome != cycle.OutcomeSkipped {
			continue
		}
		if err := s.deps.Recorder.RecordSkip(&recorder.SkipEvent{RunID: report.RunID, At: now, Account: a.Account, Reason: a.Error}); err != nil {
			log.Printf("[WARN] record skip: %v", err)
		}
	}

	for _, ins := range res.Instructions {
		for _, r := range s.deps.Venue.Submit(ctx, ins) {
			s.deps.Metrics.Trade(r.OK())
			if !r.OK() {
				log.Printf("[WARN] Trade %s %s->%s for %s failed: %s", r.Trade.Amount, r.Trade.Sell, r.Trade.Buy, r.Account, r.Error)
			}
			if err := s.deps.Recorder.RecordTrade(&recorder.TradeEvent{RunID: report.RunID, Result: r}); err != nil {
				log.Printf("[WARN] record trade: %v", err)
			}
			report.Results = append(report.Results, r)
		}
	}

	if err := s.deps.Recorder.RecordRun(s.runEvent(report, "")); err != nil {
		log.Printf("[WARN] record run: %v", err)
	}
	s.deps.Metrics.Run("ok")
	s.deps.Metrics.Status(res.Status.Kind())

	log.Printf("[INFO] Cycle page done: visited=%d rebalanced=%d skipped=%d instructions=%d status=%s",
		report.Visited, report.Count(cycle.OutcomeRebalanced), report.Count(cycle.OutcomeSkipped),
		len(report.Instructions), res.Status.Kind())
	return report, nil
}

func (s *Service) fail(report *RunReport, err error) error {
	s.deps.Metrics.Run("error")
	log.Printf("[ERROR] Cycle run failed: %v", err)
	if rerr := s.deps.Recorder.RecordRun(s.runEvent(report, err.Error())); rerr != nil {
		log.Printf("[WARN] record run: %v", rerr)
	}
	return err
}

func (s *Service) runEvent(r *RunReport, errMsg string) *recorder.RunEvent {
	evt := &recorder.RunEvent{
		ID:           r.RunID,
		At:           r.At,
		CycleStarted: r.CycleStarted,
		Visited:      r.Visited,
		Rebalanced:   r.Count(cycle.OutcomeRebalanced),
		Skipped:      r.Count(cycle.OutcomeSkipped),
		Paused:       r.Count(cycle.OutcomePaused),
		Instructions: len(r.Instructions),
		Error:        errMsg,
	}
	if r.Status != nil {
		evt.Status = string(r.Status.Kind())
	}
	return evt
}

// Status returns the persisted cycle status.
func (s *Service) Status(ctx context.Context) (model.CycleStatus, error) {
	st, err := s.deps.Store.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return st, nil
}

// Account returns the configuration of one registered account.
func (s *Service) Account(ctx context.Context, id string) (model.Account, error) {
	acc, err := s.deps.Store.Account(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return acc, err
}

// Accounts lists registered accounts after the cursor; limit <= 0 uses DefaultLimit.
func (s *Service) Accounts(ctx context.Context, after string, limit int) ([]model.Account, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	return s.deps.Store.Accounts(ctx, after, limit)
}

// Prices returns the frozen prices of the cycle in progress, or a live snapshot otherwise.
func (s *Service) Prices(ctx context.Context) (model.PriceTable, error) {
	st, err := s.deps.Store.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	if p, ok := st.(model.Processing); ok && p.Prices != nil {
		return p.Prices, nil
	}
	return collector.Snapshot(ctx, s.deps.Prices, s.opts.Whitelist)
}

func (s *Service) Whitelist() model.Whitelist { return s.opts.Whitelist }
