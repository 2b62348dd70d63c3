package cycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/collector"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/rebalance"
	"RebalanceKeeper/internal/venue"
)

// AccountPager lists registered accounts in ascending id order, strictly after the cursor.
type AccountPager interface {
	Accounts(ctx context.Context, after string, limit int) ([]model.Account, error)
}

// Outcome classifies what happened to one visited account.
type Outcome string

const (
	OutcomeRebalanced Outcome = "rebalanced"
	OutcomePaused     Outcome = "paused"
	OutcomeSkipped    Outcome = "skipped"
)

// AccountResult reports one visited account.
type AccountResult struct {
	Account string  `json:"account"`
	Outcome Outcome `json:"outcome"`
	Trades  int     `json:"trades"`
	Error   string  `json:"error,omitempty"`
}

// Result is everything a page produced. Status and Updated must be committed
// together before Instructions are submitted.
type Result struct {
	Status       model.CycleStatus
	CycleStarted time.Time
	Fresh        bool // the page opened a new cycle
	Visited      int
	Updated      []model.Account
	Instructions []model.Instruction
	Accounts     []AccountResult
}

// Driver runs one page of a cycle.
type Driver struct {
	Prices    collector.PriceSource
	Balances  venue.BalanceSource
	Accounts  AccountPager
	Whitelist model.Whitelist
	Period    time.Duration
}

// Step advances status by at most limit accounts at now. Timing errors
// (ErrCycleNotStarted) and fatal errors (missing price, overflow, storage) are
// returned; any other per-account failure only skips that account.
func (d *Driver) Step(ctx context.Context, status model.CycleStatus, limit int, now time.Time) (*Result, error) {
	page, err := Begin(status, now, d.Period)
	if err != nil {
		return nil, err
	}
	res := &Result{CycleStarted: page.CycleStarted, Fresh: page.Fresh}

	if page.Fresh {
		prices, err := collector.Snapshot(ctx, d.Prices, d.Whitelist)
		if err != nil {
			return nil, fmt.Errorf("snapshot prices: %w", err)
		}
		page.Prices = prices
		log.Printf("[INFO] Cycle %s opened with %d prices", page.CycleStarted.Format(time.RFC3339), len(prices))
	}

	accounts, err := d.Accounts.Accounts(ctx, page.After, limit)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	mins := newMinimumCache(d.Prices)
	last := ""
	for _, acc := range accounts {
		res.Visited++
		last = acc.ID

		if acc.Config.Paused() {
			res.Accounts = append(res.Accounts, AccountResult{Account: acc.ID, Outcome: OutcomePaused})
			continue
		}

		updated, trades, err := d.rebalance(ctx, acc, page.Prices, mins, now)
		if err != nil {
			if rebalance.IsFatal(err) {
				return nil, fmt.Errorf("account %s: %w", acc.ID, err)
			}
			if errors.Is(err, rebalance.ErrInvalidTargetPercentage) {
				log.Printf("[ERROR] Invariant violated for account %s: %v", acc.ID, err)
			} else {
				log.Printf("[WARN] Account %s skipped: %v", acc.ID, err)
			}
			res.Accounts = append(res.Accounts, AccountResult{Account: acc.ID, Outcome: OutcomeSkipped, Error: err.Error()})
			continue
		}

		res.Updated = append(res.Updated, model.Account{ID: acc.ID, Config: updated})
		if len(trades) > 0 {
			res.Instructions = append(res.Instructions, model.Instruction{
				ID:      uuid.New().String(),
				Account: acc.ID,
				Trades:  trades,
			})
		}
		res.Accounts = append(res.Accounts, AccountResult{Account: acc.ID, Outcome: OutcomeRebalanced, Trades: len(trades)})
	}

	res.Status = End(page, res.Visited, limit, last, d.Period)
	return res, nil
}

func (d *Driver) rebalance(ctx context.Context, acc model.Account, prices model.PriceTable, mins *minimumCache, now time.Time) (model.AccountConfig, []model.Trade, error) {
	balances, err := d.Balances.GetBalances(ctx, acc.ID)
	if err != nil {
		return model.AccountConfig{}, nil, fmt.Errorf("fetch balances: %w", err)
	}

	plan, err := rebalance.Prepare(acc, balances, prices, now, d.Period)
	if err != nil {
		return model.AccountConfig{}, nil, err
	}

	amounts := make(map[string]decimal.Decimal)
	for _, denom := range plan.SellDenoms() {
		amt, ok, err := mins.get(ctx, denom)
		if err != nil {
			return model.AccountConfig{}, nil, fmt.Errorf("min amount of %s: %w", denom, err)
		}
		if ok {
			amounts[denom] = amt
		}
	}
	if err := plan.SetMinimums(amounts); err != nil {
		return model.AccountConfig{}, nil, err
	}

	trades, err := rebalance.Match(plan)
	if err != nil {
		return model.AccountConfig{}, nil, err
	}
	return plan.Config, trades, nil
}

type minimum struct {
	amount decimal.Decimal
	found  bool
}

// minimumCache remembers venue minimums for the duration of one page.
type minimumCache struct {
	src     collector.PriceSource
	entries map[string]minimum
}

func newMinimumCache(src collector.PriceSource) *minimumCache {
	return &minimumCache{src: src, entries: make(map[string]minimum)}
}

func (c *minimumCache) get(ctx context.Context, denom string) (decimal.Decimal, bool, error) {
	if m, ok := c.entries[denom]; ok {
		return m.amount, m.found, nil
	}
	amt, found, err := c.src.GetMinimumAmount(ctx, denom)
	if err != nil {
		return decimal.Zero, false, err
	}
	c.entries[denom] = minimum{amount: amt, found: found}
	return amt, found, nil
}
