package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/model"
)

// StaticSource returns controllable fixed data for development and testing.
type StaticSource struct {
	mu       sync.RWMutex
	prices   map[model.Pair]decimal.Decimal
	minimums map[string]decimal.Decimal
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices:   make(map[model.Pair]decimal.Decimal),
		minimums: make(map[string]decimal.Decimal),
	}
}

func (s *StaticSource) SetPrice(base, quote string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[model.Pair{Base: base, Quote: quote}] = price
}

func (s *StaticSource) SetMinimum(denom string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minimums[denom] = amount
}

func (s *StaticSource) GetPrice(_ context.Context, base, quote string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[model.Pair{Base: base, Quote: quote}]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s/%s", base, quote)
	}
	return p, nil
}

func (s *StaticSource) GetMinimumAmount(_ context.Context, denom string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.minimums[denom]
	return m, ok, nil
}

// Pairs lists every (base, quote) pair a snapshot needs, sorted, skipping base == quote.
func Pairs(w model.Whitelist) []model.Pair {
	seen := make(map[model.Pair]bool)
	var pairs []model.Pair
	for _, bd := range w.BaseDenoms {
		for _, denom := range w.Denoms {
			if denom == bd.Denom {
				continue
			}
			p := model.Pair{Base: bd.Denom, Quote: denom}
			if seen[p] {
				continue
			}
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Base != pairs[j].Base {
			return pairs[i].Base < pairs[j].Base
		}
		return pairs[i].Quote < pairs[j].Quote
	})
	return pairs
}

// Snapshot prices every pair of the whitelist. Any pair that errors or prices at or
// below zero aborts the whole snapshot with model.ErrMissingPrice.
func Snapshot(ctx context.Context, src PriceSource, w model.Whitelist) (model.PriceTable, error) {
	pairs := Pairs(w)
	table := make(model.PriceTable, 0, len(pairs))
	for _, p := range pairs {
		price, err := src.GetPrice(ctx, p.Base, p.Quote)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrMissingPrice, p, err)
		}
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s: non-positive price %s", model.ErrMissingPrice, p, price)
		}
		table = append(table, model.PricePoint{Pair: p, Price: price})
	}
	return table, nil
}
