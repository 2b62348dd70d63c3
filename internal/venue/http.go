package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RebalanceKeeper/internal/collector"
	"RebalanceKeeper/internal/model"
)

// HTTPVenue implements BalanceSource and Venue against a REST trade venue.
type HTTPVenue struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPVenue creates a new venue client with optional proxy support.
func NewHTTPVenue(baseURL, apiKey, proxyURL string) *HTTPVenue {
	return &HTTPVenue{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  collector.NewHTTPClient(proxyURL, 30*time.Second),
	}
}

func (v *HTTPVenue) Name() string { return "http" }

func (v *HTTPVenue) GetBalances(ctx context.Context, account string) (map[string]decimal.Decimal, error) {
	var result struct {
		Balances map[string]decimal.Decimal `json:"balances"`
	}
	path := "/api/v1/accounts/" + url.PathEscape(account) + "/balances"
	if err := v.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fetch balances of %s: %w", account, err)
	}
	if result.Balances == nil {
		result.Balances = map[string]decimal.Decimal{}
	}
	return result.Balances, nil
}

type tradeRequest struct {
	Instruction string          `json:"instruction_id"`
	Account     string          `json:"account"`
	Sell        string          `json:"sell"`
	Buy         string          `json:"buy"`
	Amount      decimal.Decimal `json:"amount"`
}

// Submit posts each trade separately so that one rejected trade does not affect the rest.
func (v *HTTPVenue) Submit(ctx context.Context, ins model.Instruction) []Result {
	results := make([]Result, 0, len(ins.Trades))
	for _, t := range ins.Trades {
		r := Result{
			ID:          uuid.New().String(),
			Instruction: ins.ID,
			Account:     ins.Account,
			Trade:       t,
		}
		var resp struct {
			Received decimal.Decimal `json:"received"`
		}
		err := v.do(ctx, http.MethodPost, "/api/v1/trades", tradeRequest{
			Instruction: ins.ID,
			Account:     ins.Account,
			Sell:        t.Sell,
			Buy:         t.Buy,
			Amount:      t.Amount,
		}, &resp)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Received = resp.Received
		}
		r.ExecutedAt = time.Now().UTC()
		results = append(results, r)
	}
	return results
}

func (v *HTTPVenue) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, v.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.APIKey)
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
