package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RebalanceKeeper/internal/cycle"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/service"
	"RebalanceKeeper/internal/venue"
)

func TestFormatCycleSummary(t *testing.T) {
	next := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	reports := []*service.RunReport{
		{
			Visited: 2,
			Accounts: []cycle.AccountResult{
				{Account: "a", Outcome: cycle.OutcomeRebalanced, Trades: 1},
				{Account: "b", Outcome: cycle.OutcomeSkipped, Error: "account balance is zero"},
			},
			Results: []venue.Result{{Error: "insufficient balance"}},
		},
		{
			Visited:  1,
			Accounts: []cycle.AccountResult{{Account: "c", Outcome: cycle.OutcomePaused}},
			Status:   model.Finished{NextCycle: next},
		},
	}

	msg := FormatCycleSummary(reports, nil)
	assert.Contains(t, msg, "Pages: 2 | Accounts: 3")
	assert.Contains(t, msg, "Rebalanced: 1 | Paused: 1 | Skipped: 1")
	assert.Contains(t, msg, "Trades: 1 (failed 1)")
	assert.Contains(t, msg, "b: account balance is zero")
	assert.Contains(t, msg, "next at 2026-04-02T00:00:00Z")
	assert.NotContains(t, msg, "aborted")

	msg = FormatCycleSummary(nil, errors.New("missing price <uatom/untrn>"))
	assert.Contains(t, msg, "missing price &lt;uatom/untrn&gt;")
}

func TestFormatStatus(t *testing.T) {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, FormatStatus(model.NotStarted{CycleStart: at}), "First cycle")
	assert.Contains(t, FormatStatus(model.Processing{CycleStarted: at, Cursor: "acct-7"}), "after acct-7")
	assert.Contains(t, FormatStatus(model.Finished{NextCycle: at}), "next at")
}

func TestFormatAccount(t *testing.T) {
	floor := decimal.NewFromInt(950)
	msg := FormatAccount(model.Account{
		ID: "alice",
		Config: model.AccountConfig{
			BaseDenom: "uatom",
			MaxLimit:  decimal.RequireFromString("0.01"),
			Targets: []model.Target{
				{Denom: "uatom", Percentage: decimal.RequireFromString("0.75"), MinBalance: &floor},
				{Denom: "untrn", Percentage: decimal.RequireFromString("0.25")},
			},
			PausedBy: "tom",
		},
	})
	assert.Contains(t, msg, "Max sell: 1%")
	assert.Contains(t, msg, "uatom: 75% (reserve 950)")
	assert.Contains(t, msg, "untrn: 25%")
	assert.Contains(t, msg, "Paused by tom")
}

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	require.NoError(t, tn.SendWithRetry(context.Background(), "hello", 0))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestSendWithRetry_Disabled(t *testing.T) {
	tn := NewTelegramNotifier("", "", "")
	assert.False(t, tn.Enabled())
	assert.NoError(t, tn.SendWithRetry(context.Background(), "dropped", 3))
}

func TestSend_APIError(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	err := tn.SendWithRetry(context.Background(), "hello", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTelegramAPI))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendMessage", apiErr.Method)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Unauthorized", apiErr.Description)
	assert.False(t, apiErr.Temporary())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "a rejected token is not retried")
}

func TestSend_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	err := tn.Send(context.Background(), "hello")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Description)
	assert.True(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "status 502")
}

func TestSendWithRetry_RetriesTemporaryErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	require.NoError(t, tn.SendWithRetry(context.Background(), "hello", 2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		ok   bool
		name string
		args []string
	}{
		{"/status", true, "status", []string{}},
		{"  /account   acct-01  ", true, "account", []string{"acct-01"}},
		{"/Account@keeper_bot acct-01 extra", true, "account", []string{"acct-01", "extra"}},
		{"/@keeper_bot", false, "", nil},
		{"hello /status", false, "", nil},
		{"", false, "", nil},
	}
	for _, tc := range cases {
		cmd, ok := ParseCommand(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		if !tc.ok {
			continue
		}
		assert.Equal(t, tc.name, cmd.Name, tc.text)
		assert.Equal(t, tc.args, cmd.Args, tc.text)
	}

	cmd, _ := ParseCommand("/account acct-01")
	assert.Equal(t, "acct-01", cmd.Arg(0))
	assert.Empty(t, cmd.Arg(1))
}

func TestStartPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var replies []string
	served := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var req map[string]int
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			mu.Lock()
			first := !served
			served = true
			mu.Unlock()
			if !first {
				assert.Equal(t, 10, req["offset"])
				<-r.Context().Done()
				return
			}
			assert.Equal(t, 0, req["offset"])
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":7,"message":{"text":"hello","chat":{"id":42}}},
				{"update_id":8,"message":{"text":"/status","chat":{"id":99}}},
				{"update_id":9,"message":{"text":"/status@keeper_bot now","chat":{"id":42}}}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
			cancel()
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL

	done := make(chan struct{})
	go func() {
		tn.StartPolling(ctx, func(_ context.Context, cmd Command) string {
			return "reply to " + cmd.Name + " " + strings.Join(cmd.Args, ",")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"reply to status now"}, replies)
}

func TestStartPolling_BadChatID(t *testing.T) {
	tn := NewTelegramNotifier("TOKEN", "not-a-chat", "")
	tn.APIBase = "http://127.0.0.1:0"

	done := make(chan struct{})
	go func() {
		tn.StartPolling(context.Background(), func(context.Context, Command) string { return "" })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling started with an invalid chat id")
	}
}
