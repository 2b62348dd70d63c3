package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"RebalanceKeeper/internal/cycle"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/service"
)

// FormatCycleSummary formats the pages one scheduled run drained.
func FormatCycleSummary(reports []*service.RunReport, runErr error) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🔄 <b>RebalanceKeeper cycle</b> | %s\n\n", time.Now().UTC().Format("2006-01-02 15:04")))

	var visited, rebalanced, paused, skipped, trades, failed int
	var last *service.RunReport
	for _, r := range reports {
		if r == nil {
			continue
		}
		last = r
		visited += r.Visited
		rebalanced += r.Count(cycle.OutcomeRebalanced)
		paused += r.Count(cycle.OutcomePaused)
		skipped += r.Count(cycle.OutcomeSkipped)
		trades += len(r.Results)
		failed += r.FailedTrades()
	}

	b.WriteString(fmt.Sprintf("Pages: %d | Accounts: %d\n", len(reports), visited))
	b.WriteString(fmt.Sprintf("Rebalanced: %d | Paused: %d | Skipped: %d\n", rebalanced, paused, skipped))
	b.WriteString(fmt.Sprintf("Trades: %d (failed %d)\n", trades, failed))
	if last != nil && last.Status != nil {
		b.WriteString("\n" + FormatStatus(last.Status))
	}

	if skipped > 0 {
		b.WriteString("\n⚠️ <b>Skipped accounts:</b>\n")
		for _, r := range reports {
			if r == nil {
				continue
			}
			for _, a := range r.Accounts {
				if a.Outcome == cycle.OutcomeSkipped {
					b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(a.Account), html.EscapeString(a.Error)))
				}
			}
		}
	}
	if runErr != nil {
		b.WriteString(fmt.Sprintf("\n❌ <b>Run aborted:</b> %s\n", html.EscapeString(runErr.Error())))
	}
	return b.String()
}

// FormatAlert formats a fatal run error.
func FormatAlert(err error) string {
	return fmt.Sprintf("🚨 <b>RebalanceKeeper alert</b>\n\n%s\n", html.EscapeString(err.Error()))
}

// FormatStatus describes the cycle status in one line.
func FormatStatus(st model.CycleStatus) string {
	switch s := st.(type) {
	case model.NotStarted:
		return fmt.Sprintf("⏳ First cycle at %s\n", s.CycleStart.Format(time.RFC3339))
	case model.Processing:
		cursor := s.Cursor
		if cursor == "" {
			cursor = "-"
		}
		return fmt.Sprintf("▶️ Cycle %s in progress, after %s\n", s.CycleStarted.Format(time.RFC3339), html.EscapeString(cursor))
	case model.Finished:
		return fmt.Sprintf("✅ Cycle done, next at %s\n", s.NextCycle.Format(time.RFC3339))
	default:
		return "unknown status\n"
	}
}

// FormatPrices lists a price table.
func FormatPrices(prices model.PriceTable) string {
	var b strings.Builder
	b.WriteString("💱 <b>Prices</b>\n\n")
	if len(prices) == 0 {
		b.WriteString("none\n")
	}
	for _, p := range prices {
		b.WriteString(fmt.Sprintf("%s/%s: %s\n", p.Pair.Base, p.Pair.Quote, p.Price.String()))
	}
	return b.String()
}

// FormatAccount shows an account's targets and control state.
func FormatAccount(acc model.Account) string {
	cfg := acc.Config
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👤 <b>%s</b>\n\n", html.EscapeString(acc.ID)))
	b.WriteString(fmt.Sprintf("Base: %s | Max sell: %s%%\n", cfg.BaseDenom, cfg.MaxLimit.Shift(2).String()))
	b.WriteString(fmt.Sprintf("PID: p=%s i=%s d=%s\n", cfg.PID.P, cfg.PID.I, cfg.PID.D))
	for _, t := range cfg.Targets {
		line := fmt.Sprintf("  %s: %s%%", t.Denom, t.Percentage.Shift(2).String())
		if t.MinBalance != nil {
			line += fmt.Sprintf(" (reserve %s)", t.MinBalance.String())
		}
		b.WriteString(line + "\n")
	}
	if cfg.Paused() {
		b.WriteString(fmt.Sprintf("⏸ Paused by %s\n", html.EscapeString(cfg.PausedBy)))
	}
	if !cfg.LastRebalance.IsZero() {
		b.WriteString(fmt.Sprintf("Last rebalance: %s\n", cfg.LastRebalance.Format("2006-01-02 15:04")))
	}
	return b.String()
}
