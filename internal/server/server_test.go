package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RebalanceKeeper/internal/metrics"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/service"
	"RebalanceKeeper/internal/store"
	"RebalanceKeeper/internal/venue"
)

var testNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

const registerBody = `{"base_denom":"uatom","targets":[{"denom":"uatom","bps":5000},{"denom":"untrn","bps":5000}],"pid":{"p":"1"}}`

func newTestServer(t *testing.T) (*Server, *httptest.Server, *venue.Paper) {
	t.Helper()
	paper := venue.NewPaper("uatom")
	paper.SetPrice("untrn", decimal.NewFromInt(2))
	paper.SetMinimum("uatom", decimal.NewFromInt(1))
	paper.SetMinimum("untrn", decimal.NewFromInt(1))

	st, err := store.NewMemoryStore("")
	require.NoError(t, err)
	m := metrics.New()
	svc, err := service.New(context.Background(), service.Deps{
		Store:    st,
		Prices:   paper,
		Balances: paper,
		Venue:    paper,
		Metrics:  m,
	}, service.Options{
		Whitelist: model.Whitelist{
			Denoms:     []string{"uatom", "untrn"},
			BaseDenoms: []model.BaseDenom{{Denom: "uatom", MinBalanceLimit: decimal.NewFromInt(100)}},
		},
		Operators: []string{"admin"},
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	srv := New("", svc, m)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts, paper
}

func do(t *testing.T, ts *httptest.Server, method, path, actor, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	_, ts, _ := newTestServer(t)
	code, body := do(t, ts, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestAccountLifecycle(t *testing.T) {
	_, ts, paper := newTestServer(t)
	paper.Deposit("alice", "uatom", decimal.NewFromInt(1000))

	code, _ := do(t, ts, http.MethodPost, "/api/accounts/alice", "bob", registerBody)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice", "alice", `{"nope":1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, ts, http.MethodPost, "/api/accounts/alice", "alice", registerBody)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "alice", body["id"])

	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice", "alice", registerBody)
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, ts, http.MethodGet, "/api/accounts/alice", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["id"])

	code, _ = do(t, ts, http.MethodGet, "/api/accounts/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, ts, http.MethodPatch, "/api/accounts/alice", "alice", `{"max_limit_bps":0}`)
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = do(t, ts, http.MethodPatch, "/api/accounts/alice", "alice", `{"trustee":"tom"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice/pause", "tom", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice/pause", "tom", "")
	assert.Equal(t, http.StatusConflict, code)
	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice/resume", "mallory", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(t, ts, http.MethodPost, "/api/accounts/alice/resume", "alice", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, ts, http.MethodGet, "/api/accounts?limit=10", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["accounts"], 1)

	code, _ = do(t, ts, http.MethodGet, "/api/accounts?limit=x", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, ts, http.MethodDelete, "/api/accounts/alice", "admin", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, ts, http.MethodDelete, "/api/accounts/alice", "admin", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRunCycle(t *testing.T) {
	_, ts, paper := newTestServer(t)
	paper.Deposit("alice", "uatom", decimal.NewFromInt(1000))
	code, _ := do(t, ts, http.MethodPost, "/api/accounts/alice", "alice", registerBody)
	require.Equal(t, http.StatusCreated, code)

	code, _ = do(t, ts, http.MethodPost, "/api/cycle/run?limit=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, ts, http.MethodPost, "/api/cycle/run", "", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["instructions"], 1)
	assert.Len(t, body["results"], 1)
	status, ok := body["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "finished", status["kind"])

	code, body = do(t, ts, http.MethodPost, "/api/cycle/run", "", "")
	assert.Equal(t, http.StatusTooEarly, code)
	assert.NotEmpty(t, body["next_cycle"])

	code, body = do(t, ts, http.MethodGet, "/api/status", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "finished", body["kind"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `keeper_cycle_runs_total{result="ok"} 1`)
	assert.Contains(t, string(raw), `keeper_trades_total{result="ok"} 1`)
}

func TestPricesAndWhitelist(t *testing.T) {
	_, ts, _ := newTestServer(t)

	code, body := do(t, ts, http.MethodGet, "/api/prices", "", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["prices"], 1)

	code, body = do(t, ts, http.MethodGet, "/api/whitelist", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["denoms"], 2)
}

func TestWebsocketReceivesRuns(t *testing.T) {
	srv, ts, paper := newTestServer(t)
	go srv.hub.Run()
	defer srv.hub.Close()

	paper.Deposit("alice", "uatom", decimal.NewFromInt(1000))
	code, _ := do(t, ts, http.MethodPost, "/api/accounts/alice", "alice", registerBody)
	require.Equal(t, http.StatusCreated, code)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	code, _ = do(t, ts, http.MethodPost, "/api/cycle/run", "", "")
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, "run", evt["type"])
	assert.NotNil(t, evt["report"])
}
