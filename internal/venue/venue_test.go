package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RebalanceKeeper/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPaper_Prices(t *testing.T) {
	p := NewPaper("uatom")
	p.SetPrice("untrn", d("4"))
	p.SetPrice("uosmo", d("2"))
	ctx := context.Background()

	price, err := p.GetPrice(ctx, "uatom", "untrn")
	require.NoError(t, err)
	assert.Equal(t, "4", price.String())

	price, err = p.GetPrice(ctx, "uosmo", "untrn")
	require.NoError(t, err)
	assert.Equal(t, "2", price.String())

	_, err = p.GetPrice(ctx, "uatom", "ujuno")
	assert.ErrorIs(t, err, ErrUnknownPrice)
}

func TestPaper_SubmitIndependentTrades(t *testing.T) {
	p := NewPaper("uatom")
	p.SetPrice("untrn", d("3"))
	p.SetMinimum("uatom", d("5"))
	p.Deposit("acct-1", "uatom", d("100"))

	results := p.Submit(context.Background(), model.Instruction{
		ID:      "ins-1",
		Account: "acct-1",
		Trades: []model.Trade{
			{Sell: "uatom", Buy: "untrn", Amount: d("10")},
			{Sell: "uatom", Buy: "untrn", Amount: d("2")},
			{Sell: "uatom", Buy: "untrn", Amount: d("500")},
		},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Equal(t, "30", results[0].Received.String())
	assert.Equal(t, "ins-1", results[0].Instruction)
	assert.NotEmpty(t, results[0].ID)

	assert.False(t, results[1].OK())
	assert.Contains(t, results[1].Error, "below venue minimum")
	assert.False(t, results[2].OK())
	assert.Contains(t, results[2].Error, "insufficient balance")

	bal, err := p.GetBalances(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "90", bal["uatom"].String())
	assert.Equal(t, "30", bal["untrn"].String())
}

func TestPaper_ReceiveRoundsDown(t *testing.T) {
	p := NewPaper("uatom")
	p.SetPrice("untrn", d("3"))
	p.Deposit("acct-1", "untrn", d("10"))

	results := p.Submit(context.Background(), model.Instruction{
		Account: "acct-1",
		Trades:  []model.Trade{{Sell: "untrn", Buy: "uatom", Amount: d("10")}},
	})
	require.Len(t, results, 1)
	require.True(t, results[0].OK(), results[0].Error)
	assert.Equal(t, "3", results[0].Received.String())
}

func TestHTTPVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/accounts/acct-1/balances":
			_ = json.NewEncoder(w).Encode(map[string]any{"balances": map[string]string{"uatom": "1000"}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/trades":
			var req tradeRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Buy == "uosmo" {
				http.Error(w, "no auction", http.StatusConflict)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"received": req.Amount.String()})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := NewHTTPVenue(srv.URL, "", "")
	ctx := context.Background()

	bal, err := v.GetBalances(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal["uatom"].String())

	_, err = v.GetBalances(ctx, "acct-2")
	assert.Error(t, err)

	results := v.Submit(ctx, model.Instruction{
		ID:      "ins-1",
		Account: "acct-1",
		Trades: []model.Trade{
			{Sell: "uatom", Buy: "untrn", Amount: d("7")},
			{Sell: "uatom", Buy: "uosmo", Amount: d("7")},
		},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.Equal(t, "7", results[0].Received.String())
	assert.False(t, results[1].OK())
	assert.Contains(t, results[1].Error, "409")
}
