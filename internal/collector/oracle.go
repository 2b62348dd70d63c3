package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPPriceSource implements PriceSource using a REST price oracle.
type HTTPPriceSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPPriceSource creates a new oracle client with optional proxy support.
func NewHTTPPriceSource(baseURL, apiKey, proxyURL string) *HTTPPriceSource {
	return &HTTPPriceSource{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  NewHTTPClient(proxyURL, 30*time.Second),
	}
}

// NewHTTPClient builds a client that routes through proxyURL when set.
func NewHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (s *HTTPPriceSource) GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	q := url.Values{"base": {base}, "quote": {quote}}
	var result struct {
		Price decimal.Decimal `json:"price"`
	}
	found, err := s.get(ctx, "/api/v1/price?"+q.Encode(), &result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price %s/%s: %w", base, quote, err)
	}
	if !found {
		return decimal.Zero, fmt.Errorf("fetch price %s/%s: not found", base, quote)
	}
	return result.Price, nil
}

func (s *HTTPPriceSource) GetMinimumAmount(ctx context.Context, denom string) (decimal.Decimal, bool, error) {
	q := url.Values{"denom": {denom}}
	var result struct {
		MinAmount decimal.Decimal `json:"min_amount"`
	}
	found, err := s.get(ctx, "/api/v1/min_amount?"+q.Encode(), &result)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("fetch min amount %s: %w", denom, err)
	}
	if !found {
		return decimal.Zero, false, nil
	}
	return result.MinAmount, true, nil
}

// get decodes a JSON body into out. A 404 reports found=false without error.
func (s *HTTPPriceSource) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return false, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return true, nil
}
