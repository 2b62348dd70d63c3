package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RebalanceKeeper/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m := New()
	m.Run("ok")
	m.Run("ok")
	m.Account("skipped")
	m.Trade(true)
	m.Trade(false)
	m.Status(model.KindProcessing)
	m.PageDuration(150 * time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `keeper_cycle_runs_total{result="ok"} 2`)
	assert.Contains(t, out, `keeper_accounts_processed_total{outcome="skipped"} 1`)
	assert.Contains(t, out, `keeper_trades_total{result="failed"} 1`)
	assert.Contains(t, out, `keeper_cycle_status{kind="processing"} 1`)
	assert.Contains(t, out, `keeper_cycle_status{kind="finished"} 0`)
	assert.Contains(t, out, "keeper_page_duration_seconds_count 1")

	m.Status(model.KindFinished)
	out = scrape(t, m)
	assert.Contains(t, out, `keeper_cycle_status{kind="processing"} 0`)
	assert.Contains(t, out, `keeper_cycle_status{kind="finished"} 1`)
}
