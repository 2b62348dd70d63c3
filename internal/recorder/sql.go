package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"RebalanceKeeper/internal/store"
)

// SQLRecorder writes the journal into the keeper database.
type SQLRecorder struct {
	db      *sql.DB
	dialect store.Dialect
	mu      sync.Mutex
}

// NewSQLRecorder runs the journal migrations on db. The database is owned by
// the store; Close does not close it.
func NewSQLRecorder(db *sql.DB, dialect store.Dialect) (*SQLRecorder, error) {
	r := &SQLRecorder{db: db, dialect: dialect}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[INFO] %s recorder ready", dialect)
	return r, nil
}

func (r *SQLRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS keeper_runs (
			id            TEXT PRIMARY KEY,
			timestamp     BIGINT NOT NULL,
			cycle_started BIGINT,
			status        TEXT,
			visited       INTEGER,
			rebalanced    INTEGER,
			skipped       INTEGER,
			paused        INTEGER,
			instructions  INTEGER,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON keeper_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS keeper_skips (
			id        TEXT PRIMARY KEY,
			run_id    TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			account   TEXT NOT NULL,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skips_account ON keeper_skips(account)`,

		`CREATE TABLE IF NOT EXISTS keeper_trades (
			id          TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			instruction TEXT NOT NULL,
			timestamp   BIGINT NOT NULL,
			account     TEXT NOT NULL,
			sell_denom  TEXT NOT NULL,
			buy_denom   TEXT NOT NULL,
			amount      TEXT NOT NULL,
			received    TEXT,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account ON keeper_trades(account)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var started any
	if !evt.CycleStarted.IsZero() {
		started = evt.CycleStarted.Unix()
	}
	_, err := r.db.Exec(r.dialect.Rebind(`INSERT INTO keeper_runs
		(id, timestamp, cycle_started, status, visited, rebalanced, skipped, paused, instructions, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`),
		evt.ID, evt.At.Unix(), started, evt.Status,
		evt.Visited, evt.Rebalanced, evt.Skipped, evt.Paused, evt.Instructions, evt.Error,
	)
	return err
}

func (r *SQLRecorder) RecordSkip(evt *SkipEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(r.dialect.Rebind(`INSERT INTO keeper_skips
		(id, run_id, timestamp, account, reason)
		VALUES (?,?,?,?,?)`),
		uuid.New().String(), evt.RunID, evt.At.Unix(), evt.Account, evt.Reason,
	)
	return err
}

func (r *SQLRecorder) RecordTrade(evt *TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := evt.Result
	id := res.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.db.Exec(r.dialect.Rebind(`INSERT INTO keeper_trades
		(id, run_id, instruction, timestamp, account, sell_denom, buy_denom, amount, received, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`),
		id, evt.RunID, res.Instruction, res.ExecutedAt.Unix(), res.Account,
		res.Trade.Sell, res.Trade.Buy, res.Trade.Amount.String(), res.Received.String(), res.Error,
	)
	return err
}

func (r *SQLRecorder) Close() error { return nil }
