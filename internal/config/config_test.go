package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
cycle:
  period: 12h
  start: "2026-05-01T00:00:00Z"
  page_limit: 25
whitelist:
  denoms: [uatom, untrn]
  base_denoms:
    - denom: uatom
      min_balance_limit: "100"
venue:
  mode: paper
  paper_base: uatom
  prices:
    untrn: "2.5"
  minimums:
    uatom: "1"
  balances:
    alice:
      uatom: "1000"
database:
  driver: memory
operators: [admin]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	period, err := cfg.CyclePeriod()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, period)

	start, err := cfg.CycleStart()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, 25, cfg.Cycle.PageLimit)
	assert.Equal(t, "0 */5 * * * *", cfg.Cycle.Cron)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"admin"}, cfg.Operators)

	w, err := cfg.ModelWhitelist()
	require.NoError(t, err)
	bd, ok := w.BaseDenom("uatom")
	require.True(t, ok)
	assert.Equal(t, "100", bd.MinBalanceLimit.String())

	prices, err := cfg.PaperPrices()
	require.NoError(t, err)
	assert.Equal(t, "2.5", prices["untrn"].String())

	balances, err := cfg.PaperBalances()
	require.NoError(t, err)
	assert.Equal(t, "1000", balances["alice"]["uatom"].String())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "24h", cfg.Cycle.Period)
	assert.Equal(t, 50, cfg.Cycle.PageLimit)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/keeper.db", cfg.Database.DSN)
	assert.Equal(t, "paper", cfg.Venue.Mode)

	assert.Error(t, cfg.Validate(), "whitelist is required")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KEEPER_CYCLE_PERIOD", "1h")
	t.Setenv("KEEPER_PAGE_LIMIT", "7")
	t.Setenv("KEEPER_OPERATORS", "ops-1, ops-2,")
	t.Setenv("DATABASE_DRIVER", "pgx")
	t.Setenv("DATABASE_DSN", "postgres://keeper@localhost/keeper")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "1h", cfg.Cycle.Period)
	assert.Equal(t, 7, cfg.Cycle.PageLimit)
	assert.Equal(t, []string{"ops-1", "ops-2"}, cfg.Operators)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://keeper@localhost/keeper", cfg.Database.DSN)
	assert.Equal(t, "token", cfg.Telegram.BotToken)

	t.Setenv("KEEPER_PAGE_LIMIT", "many")
	_, err = Load(writeConfig(t, sample))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"period", func(c *Config) { c.Cycle.Period = "soon" }},
		{"negative period", func(c *Config) { c.Cycle.Period = "-1h" }},
		{"sub-second period", func(c *Config) { c.Cycle.Period = "500ms" }},
		{"start", func(c *Config) { c.Cycle.Start = "tomorrow" }},
		{"limit", func(c *Config) { c.Cycle.PageLimit = -1 }},
		{"cron", func(c *Config) { c.Cycle.Cron = "every minute" }},
		{"base denom limit", func(c *Config) { c.Whitelist.BaseDenoms[0].MinBalanceLimit = "-5" }},
		{"venue mode", func(c *Config) { c.Venue.Mode = "live" }},
		{"http venue url", func(c *Config) { c.Venue.Mode = "http" }},
		{"paper price", func(c *Config) { c.Venue.Prices["untrn"] = "two" }},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"telegram chat", func(c *Config) { c.Telegram.BotToken = "token" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAccessors_ReturnParseErrors(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	cfg.Cycle.Period = "250ms"
	_, err = cfg.CyclePeriod()
	assert.ErrorContains(t, err, "at least 1s")

	cfg.Cycle.Start = "2026-13-01"
	_, err = cfg.CycleStart()
	assert.ErrorContains(t, err, "cycle.start")

	cfg.Whitelist.Denoms = nil
	_, err = cfg.ModelWhitelist()
	assert.ErrorContains(t, err, "whitelist.denoms")
}
