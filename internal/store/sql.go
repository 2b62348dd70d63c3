package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"RebalanceKeeper/internal/model"
)

// Dialect smooths over the differences between SQLite and Postgres.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "pgx"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites ? placeholders into $N for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// idColumn orders account ids by raw bytes regardless of the database collation.
func (d Dialect) idColumn() string {
	if d == Postgres {
		return `id COLLATE "C"`
	}
	return "id"
}

// Open opens a database for driver and applies connection settings.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, dialect, nil
}

// SQLStore persists the keeper state in SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore runs migrations on db and returns a store over it.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[INFO] %s store ready", dialect)
	return s, nil
}

func (s *SQLStore) DB() *sql.DB       { return s.db }
func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS keeper_status (
			id         INTEGER PRIMARY KEY,
			status     TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS keeper_accounts (
			id         TEXT PRIMARY KEY,
			config     TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:40], err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) exec(ctx context.Context, e execer, query string, args ...any) (sql.Result, error) {
	return e.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *SQLStore) Status(ctx context.Context) (model.CycleStatus, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT status FROM keeper_status WHERE id = 1`)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return model.UnmarshalStatus([]byte(raw))
}

func (s *SQLStore) InitStatus(ctx context.Context, st model.CycleStatus) error {
	raw, err := model.MarshalStatus(st)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `INSERT INTO keeper_status (id, status, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO NOTHING`, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("init status: %w", err)
	}
	return nil
}

func (s *SQLStore) Account(ctx context.Context, id string) (model.Account, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT config FROM keeper_accounts WHERE id = ?`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load account %s: %w", id, err)
	}
	return decodeAccount(id, raw)
}

func (s *SQLStore) Accounts(ctx context.Context, after string, limit int) ([]model.Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	col := s.dialect.idColumn()
	q := fmt.Sprintf(`SELECT id, config FROM keeper_accounts WHERE %s > ? ORDER BY %s LIMIT ?`, col, col)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), after, limit)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acc, err := decodeAccount(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateAccount(ctx context.Context, acc model.Account) error {
	raw, err := json.Marshal(acc.Config)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, `INSERT INTO keeper_accounts (id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, acc.ID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("create account %s: %w", acc.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", acc.ID, ErrExists)
	}
	return nil
}

func (s *SQLStore) PutAccount(ctx context.Context, acc model.Account) error {
	return s.putAccount(ctx, s.db, acc)
}

func (s *SQLStore) putAccount(ctx context.Context, e execer, acc model.Account) error {
	raw, err := json.Marshal(acc.Config)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, e, `UPDATE keeper_accounts SET config = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().Unix(), acc.ID)
	if err != nil {
		return fmt.Errorf("save account %s: %w", acc.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", acc.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM keeper_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) CommitPage(ctx context.Context, st model.CycleStatus, updated []model.Account) error {
	raw, err := model.MarshalStatus(st)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, acc := range updated {
		if err := s.putAccount(ctx, tx, acc); err != nil {
			return err
		}
	}
	_, err = s.exec(ctx, tx, `INSERT INTO keeper_status (id, status, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	log.Println("[INFO] closing store")
	return s.db.Close()
}

func decodeAccount(id, raw string) (model.Account, error) {
	var cfg model.AccountConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.Account{}, fmt.Errorf("decode account %s: %w", id, err)
	}
	return model.Account{ID: id, Config: cfg}, nil
}
