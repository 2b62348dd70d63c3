// Package metrics exposes the keeper's Prometheus series:
//
//	keeper_cycle_runs_total{result}          invocations by result (ok|not_started|error)
//	keeper_accounts_processed_total{outcome} visited accounts (rebalanced|paused|skipped)
//	keeper_trades_total{result}              submitted trades (ok|failed)
//	keeper_cycle_status{kind}                1 for the current status kind, 0 for the others
//	keeper_page_duration_seconds             wall time of one page
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RebalanceKeeper/internal/model"
)

// Metrics owns a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	runs      *prometheus.CounterVec
	accounts  *prometheus.CounterVec
	trades    *prometheus.CounterVec
	status    *prometheus.GaugeVec
	durations prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_cycle_runs_total",
				Help: "Cycle invocations by result",
			},
			[]string{"result"},
		),
		accounts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_accounts_processed_total",
				Help: "Accounts visited by outcome",
			},
			[]string{"outcome"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keeper_trades_total",
				Help: "Trades submitted to the venue by result",
			},
			[]string{"result"},
		),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keeper_cycle_status",
				Help: "Current cycle status kind as separate labeled series.",
			},
			[]string{"kind"},
		),
		durations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keeper_page_duration_seconds",
				Help:    "Wall time spent processing one page of accounts.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	m.Registry.MustRegister(m.runs, m.accounts, m.trades, m.status, m.durations)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Run(result string)     { m.runs.WithLabelValues(result).Inc() }
func (m *Metrics) Account(outcome string) { m.accounts.WithLabelValues(outcome).Inc() }

func (m *Metrics) Trade(ok bool) {
	if ok {
		m.trades.WithLabelValues("ok").Inc()
		return
	}
	m.trades.WithLabelValues("failed").Inc()
}

func (m *Metrics) PageDuration(d time.Duration) { m.durations.Observe(d.Seconds()) }

// Status flips the kind gauges so exactly one reads 1.
func (m *Metrics) Status(kind model.StatusKind) {
	for _, k := range []model.StatusKind{model.KindNotStarted, model.KindProcessing, model.KindFinished} {
		v := 0.0
		if k == kind {
			v = 1
		}
		m.status.WithLabelValues(string(k)).Set(v)
	}
}
