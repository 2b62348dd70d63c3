package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/store"
)

// TargetRequest is one requested allocation line.
type TargetRequest struct {
	Denom      string  `json:"denom"`
	Bps        int64   `json:"bps"`
	MinBalance *string `json:"min_balance,omitempty"`
}

// PIDRequest carries controller gains as decimal strings.
type PIDRequest struct {
	P string `json:"p"`
	I string `json:"i"`
	D string `json:"d"`
}

type RegisterRequest struct {
	Trustee          string                 `json:"trustee,omitempty"`
	BaseDenom        string                 `json:"base_denom"`
	Targets          []TargetRequest        `json:"targets"`
	PID              PIDRequest             `json:"pid"`
	MaxLimitBps      *int64                 `json:"max_limit_bps,omitempty"`
	OverrideStrategy model.OverrideStrategy `json:"target_override_strategy,omitempty"`
}

// UpdateRequest changes only the fields that are set. An empty Trustee clears it.
type UpdateRequest struct {
	Trustee          *string                 `json:"trustee,omitempty"`
	BaseDenom        *string                 `json:"base_denom,omitempty"`
	Targets          []TargetRequest         `json:"targets,omitempty"`
	PID              *PIDRequest             `json:"pid,omitempty"`
	MaxLimitBps      *int64                  `json:"max_limit_bps,omitempty"`
	OverrideStrategy *model.OverrideStrategy `json:"target_override_strategy,omitempty"`
}

func (s *Service) authorize(actor, account string) error {
	if actor != "" && actor == account {
		return nil
	}
	for _, op := range s.opts.Operators {
		if actor != "" && actor == op {
			return nil
		}
	}
	return fmt.Errorf("%w: %q for %s", ErrNotAuthorized, actor, account)
}

// Register validates req and stores a new account configuration.
func (s *Service) Register(ctx context.Context, actor, account string, req RegisterRequest) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(actor, account); err != nil {
		return model.Account{}, err
	}
	if _, err := s.deps.Store.Account(ctx, account); err == nil {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountAlreadyRegistered, account)
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Account{}, err
	}

	if _, ok := s.opts.Whitelist.BaseDenom(req.BaseDenom); !ok {
		return model.Account{}, fmt.Errorf("%w: %s", ErrBaseDenomNotWhitelisted, req.BaseDenom)
	}
	targets, hasMin, err := s.buildTargets(req.Targets)
	if err != nil {
		return model.Account{}, err
	}

	maxLimit := calculator.One
	if req.MaxLimitBps != nil {
		if maxLimit, err = parseMaxLimit(*req.MaxLimitBps); err != nil {
			return model.Account{}, err
		}
	}
	pid, err := parsePID(req.PID)
	if err != nil {
		return model.Account{}, err
	}
	strategy := req.OverrideStrategy
	if strategy == "" {
		strategy = model.OverrideProportional
	}
	if !strategy.Valid() {
		return model.Account{}, fmt.Errorf("%w: %q", ErrInvalidOverrideStrategy, strategy)
	}

	acc := model.Account{
		ID: account,
		Config: model.AccountConfig{
			Trustee:          req.Trustee,
			BaseDenom:        req.BaseDenom,
			Targets:          targets,
			PID:              pid,
			MaxLimit:         maxLimit,
			OverrideStrategy: strategy,
			HasMinBalance:    hasMin,
		},
	}
	if err := s.checkMinValue(ctx, acc); err != nil {
		return model.Account{}, err
	}

	if err := s.deps.Store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, store.ErrExists) {
			return model.Account{}, fmt.Errorf("%w: %s", ErrAccountAlreadyRegistered, account)
		}
		return model.Account{}, err
	}
	log.Printf("[INFO] Account %s registered by %s with %d targets", account, actor, len(targets))
	return acc, nil
}

// Deregister removes an account.
func (s *Service) Deregister(ctx context.Context, actor, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(actor, account); err != nil {
		return err
	}
	if err := s.deps.Store.DeleteAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		return err
	}
	log.Printf("[INFO] Account %s deregistered by %s", account, actor)
	return nil
}

// Update applies a partial change. New targets, or a new base denom, reset the controller memory.
func (s *Service) Update(ctx context.Context, actor, account string, req UpdateRequest) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(actor, account); err != nil {
		return model.Account{}, err
	}
	acc, err := s.load(ctx, account)
	if err != nil {
		return model.Account{}, err
	}
	cfg := acc.Config.Clone()

	if len(req.Targets) > 0 {
		targets, hasMin, err := s.buildTargets(req.Targets)
		if err != nil {
			return model.Account{}, err
		}
		cfg.Targets = targets
		cfg.HasMinBalance = hasMin
	} else {
		for _, t := range cfg.Targets {
			if !s.opts.Whitelist.HasDenom(t.Denom) {
				return model.Account{}, fmt.Errorf("%w: %s", ErrDenomNotWhitelisted, t.Denom)
			}
		}
	}

	if req.Trustee != nil {
		cfg.Trustee = *req.Trustee
	}
	if req.BaseDenom != nil {
		if _, ok := s.opts.Whitelist.BaseDenom(*req.BaseDenom); !ok {
			return model.Account{}, fmt.Errorf("%w: %s", ErrBaseDenomNotWhitelisted, *req.BaseDenom)
		}
		if *req.BaseDenom != cfg.BaseDenom {
			cfg.BaseDenom = *req.BaseDenom
			for i := range cfg.Targets {
				cfg.Targets[i].LastInput = nil
				cfg.Targets[i].LastI = decimal.Zero
			}
		}
	}
	if req.PID != nil {
		if cfg.PID, err = parsePID(*req.PID); err != nil {
			return model.Account{}, err
		}
	}
	if req.MaxLimitBps != nil {
		if cfg.MaxLimit, err = parseMaxLimit(*req.MaxLimitBps); err != nil {
			return model.Account{}, err
		}
	}
	if req.OverrideStrategy != nil {
		if !req.OverrideStrategy.Valid() {
			return model.Account{}, fmt.Errorf("%w: %q", ErrInvalidOverrideStrategy, *req.OverrideStrategy)
		}
		cfg.OverrideStrategy = *req.OverrideStrategy
	}

	acc.Config = cfg
	if err := s.deps.Store.PutAccount(ctx, acc); err != nil {
		return model.Account{}, err
	}
	log.Printf("[INFO] Account %s updated by %s", account, actor)
	return acc, nil
}

// Pause stops rebalancing an account. The account itself may take over a
// trustee's pause; any other repeated pause fails.
func (s *Service) Pause(ctx context.Context, account, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.load(ctx, account)
	if err != nil {
		return err
	}
	cfg := &acc.Config

	if cfg.Paused() {
		if cfg.Trustee != "" && cfg.PausedBy == cfg.Trustee && actor == account {
			cfg.PausedBy = account
		} else {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyPaused, account)
		}
	} else {
		switch {
		case actor == account:
			cfg.PausedBy = account
		case cfg.Trustee != "" && actor == cfg.Trustee:
			cfg.PausedBy = cfg.Trustee
		default:
			return fmt.Errorf("%w: %q for %s", ErrNotAuthorizedToPause, actor, account)
		}
	}

	if err := s.deps.Store.PutAccount(ctx, acc); err != nil {
		return err
	}
	log.Printf("[INFO] Account %s paused by %s", account, actor)
	return nil
}

// Resume restarts rebalancing. The account can always resume; a trustee only
// its own pause. The account must still meet its base denom's minimum value.
func (s *Service) Resume(ctx context.Context, account, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.load(ctx, account)
	if err != nil {
		return err
	}
	cfg := &acc.Config

	if !cfg.Paused() {
		return fmt.Errorf("%w: %s", ErrNotPaused, account)
	}
	allowed := actor == account || (cfg.Trustee != "" && actor == cfg.Trustee && cfg.PausedBy == cfg.Trustee)
	if !allowed {
		return fmt.Errorf("%w: %q for %s", ErrNotAuthorizedToResume, actor, account)
	}
	if err := s.checkMinValue(ctx, acc); err != nil {
		return err
	}

	cfg.PausedBy = ""
	if err := s.deps.Store.PutAccount(ctx, acc); err != nil {
		return err
	}
	log.Printf("[INFO] Account %s resumed by %s", account, actor)
	return nil
}

func (s *Service) load(ctx context.Context, account string) (model.Account, error) {
	acc, err := s.deps.Store.Account(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}
	return acc, err
}

func (s *Service) buildTargets(reqs []TargetRequest) ([]model.Target, bool, error) {
	if len(reqs) < 2 {
		return nil, false, ErrTwoTargetsMinimum
	}
	seen := make(map[string]bool, len(reqs))
	var total int64
	hasMin := false
	targets := make([]model.Target, 0, len(reqs))

	for _, r := range reqs {
		if r.Bps < 1 || r.Bps > 9999 {
			return nil, false, fmt.Errorf("%w: %s has %d", ErrInvalidTargetBps, r.Denom, r.Bps)
		}
		total += r.Bps
		if seen[r.Denom] {
			return nil, false, fmt.Errorf("%w: %s", ErrTargetsMustBeUnique, r.Denom)
		}
		seen[r.Denom] = true
		if !s.opts.Whitelist.HasDenom(r.Denom) {
			return nil, false, fmt.Errorf("%w: %s", ErrDenomNotWhitelisted, r.Denom)
		}

		t := model.Target{Denom: r.Denom, Percentage: calculator.Bps(r.Bps)}
		if r.MinBalance != nil {
			if hasMin {
				return nil, false, ErrMultipleMinBalanceTargets
			}
			hasMin = true
			floor, err := calculator.ParseAmount(*r.MinBalance)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrInvalidMinBalance, err)
			}
			t.MinBalance = &floor
		}
		targets = append(targets, t)
	}

	if total != 10000 {
		return nil, false, fmt.Errorf("%w: targets sum to %d bps", ErrInvalidTargetPercentage, total)
	}
	return targets, hasMin, nil
}

// checkMinValue sums floor(balance / price) over the targets until the base
// denom's minimum account value is reached. Prices are queried live.
func (s *Service) checkMinValue(ctx context.Context, acc model.Account) error {
	cfg := acc.Config
	bd, ok := s.opts.Whitelist.BaseDenom(cfg.BaseDenom)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBaseDenomNotWhitelisted, cfg.BaseDenom)
	}
	balances, err := s.deps.Balances.GetBalances(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	total := decimal.Zero
	for _, t := range cfg.Targets {
		bal := balances[t.Denom]
		value := bal
		if t.Denom != cfg.BaseDenom {
			price, err := s.deps.Prices.GetPrice(ctx, cfg.BaseDenom, t.Denom)
			if err != nil {
				return fmt.Errorf("price %s/%s: %w", cfg.BaseDenom, t.Denom, err)
			}
			if price.Sign() <= 0 {
				return fmt.Errorf("%w: %s/%s", ErrPairPriceIsZero, cfg.BaseDenom, t.Denom)
			}
			v, err := calculator.Quo(bal, price)
			if err != nil {
				return err
			}
			if value, err = calculator.FloorAmount(v); err != nil {
				return err
			}
		}
		total = total.Add(value)
		if total.GreaterThanOrEqual(bd.MinBalanceLimit) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s < %s", ErrInvalidAccountMinValue, total, bd.MinBalanceLimit)
}

func parseMaxLimit(bps int64) (decimal.Decimal, error) {
	if bps < 1 || bps > 10000 {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidMaxLimit, bps)
	}
	return calculator.Bps(bps), nil
}

// parsePID accepts Kp and Ki in [0, 1] and any non-negative Kd. Empty strings read as zero.
func parsePID(r PIDRequest) (model.PID, error) {
	parse := func(name, s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidPID, name, s)
		}
		if v.Sign() < 0 {
			return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidPID, name)
		}
		return v, nil
	}
	p, err := parse("p", r.P)
	if err != nil {
		return model.PID{}, err
	}
	i, err := parse("i", r.I)
	if err != nil {
		return model.PID{}, err
	}
	d, err := parse("d", r.D)
	if err != nil {
		return model.PID{}, err
	}
	if p.GreaterThan(calculator.One) || i.GreaterThan(calculator.One) {
		return model.PID{}, fmt.Errorf("%w: p and i must not exceed 1", ErrInvalidPID)
	}
	return model.PID{P: p, I: i, D: d}, nil
}
