package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/calculator"
	"RebalanceKeeper/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount below venue minimum")
	ErrUnknownPrice        = errors.New("unknown price")
)

// Paper is an in-memory exchange that fills every trade immediately at its
// configured prices. Prices are quoted against a single base denom.
type Paper struct {
	Base string

	mu       sync.Mutex
	prices   map[string]decimal.Decimal // denom per unit of Base
	minimums map[string]decimal.Decimal
	balances map[string]map[string]decimal.Decimal
}

func NewPaper(base string) *Paper {
	return &Paper{
		Base:     base,
		prices:   make(map[string]decimal.Decimal),
		minimums: make(map[string]decimal.Decimal),
		balances: make(map[string]map[string]decimal.Decimal),
	}
}

func (p *Paper) Name() string { return "paper" }

// SetPrice sets how much denom one unit of the base denom buys.
func (p *Paper) SetPrice(denom string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[denom] = price
}

func (p *Paper) SetMinimum(denom string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimums[denom] = amount
}

// Deposit credits amount of denom to account.
func (p *Paper) Deposit(account, denom string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credit(account, denom, amount)
}

func (p *Paper) credit(account, denom string, amount decimal.Decimal) {
	b, ok := p.balances[account]
	if !ok {
		b = make(map[string]decimal.Decimal)
		p.balances[account] = b
	}
	b[denom] = b[denom].Add(amount)
}

func (p *Paper) priceOf(denom string) (decimal.Decimal, error) {
	if denom == p.Base {
		return calculator.One, nil
	}
	price, ok := p.prices[denom]
	if !ok || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrUnknownPrice, p.Base, denom)
	}
	return price, nil
}

// GetPrice quotes base/quote through the base denom.
func (p *Paper) GetPrice(_ context.Context, base, quote string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pb, err := p.priceOf(base)
	if err != nil {
		return decimal.Zero, err
	}
	pq, err := p.priceOf(quote)
	if err != nil {
		return decimal.Zero, err
	}
	return calculator.Quo(pq, pb)
}

func (p *Paper) GetMinimumAmount(_ context.Context, denom string) (decimal.Decimal, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.minimums[denom]
	return m, ok, nil
}

func (p *Paper) GetBalances(_ context.Context, account string) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(p.balances[account]))
	for denom, amt := range p.balances[account] {
		out[denom] = amt
	}
	return out, nil
}

// Submit fills each trade at the current prices: received = floor(amount / sellPrice * buyPrice).
func (p *Paper) Submit(_ context.Context, ins model.Instruction) []Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]Result, 0, len(ins.Trades))
	for _, t := range ins.Trades {
		r := Result{
			ID:          uuid.New().String(),
			Instruction: ins.ID,
			Account:     ins.Account,
			Trade:       t,
			ExecutedAt:  time.Now().UTC(),
		}
		received, err := p.fill(ins.Account, t)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Received = received
		}
		results = append(results, r)
	}
	return results
}

func (p *Paper) fill(account string, t model.Trade) (decimal.Decimal, error) {
	if t.Amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive amount %s", t.Amount)
	}
	if min, ok := p.minimums[t.Sell]; ok && t.Amount.LessThan(min) {
		return decimal.Zero, fmt.Errorf("%w: %s %s < %s", ErrBelowMinimum, t.Amount, t.Sell, min)
	}
	held := p.balances[account][t.Sell]
	if held.LessThan(t.Amount) {
		return decimal.Zero, fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, account, held, t.Sell, t.Amount)
	}
	sellPrice, err := p.priceOf(t.Sell)
	if err != nil {
		return decimal.Zero, err
	}
	buyPrice, err := p.priceOf(t.Buy)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := calculator.Quo(t.Amount, sellPrice)
	if err != nil {
		return decimal.Zero, err
	}
	received, err := calculator.FloorAmount(calculator.Mul(value, buyPrice))
	if err != nil {
		return decimal.Zero, err
	}

	p.balances[account][t.Sell] = held.Sub(t.Amount)
	p.credit(account, t.Buy, received)
	return received, nil
}
