package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"RebalanceKeeper/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Cycle struct {
		Period    string `yaml:"period"`
		Start     string `yaml:"start"` // RFC3339; empty starts immediately
		PageLimit int    `yaml:"page_limit"`
		Cron      string `yaml:"cron"`
		MaxPages  int    `yaml:"max_pages"`
	} `yaml:"cycle"`
	Whitelist struct {
		Denoms     []string `yaml:"denoms"`
		BaseDenoms []struct {
			Denom           string `yaml:"denom"`
			MinBalanceLimit string `yaml:"min_balance_limit"`
		} `yaml:"base_denoms"`
	} `yaml:"whitelist"`
	Oracle struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"oracle"`
	Venue struct {
		Mode      string                       `yaml:"mode"` // paper | http
		BaseURL   string                       `yaml:"base_url"`
		APIKey    string                       `yaml:"api_key"`
		PaperBase string                       `yaml:"paper_base"`
		Prices    map[string]string            `yaml:"prices"`   // denom per unit of paper_base
		Minimums  map[string]string            `yaml:"minimums"` // smallest tradable amount per denom
		Balances  map[string]map[string]string `yaml:"balances"` // account -> denom -> amount
	} `yaml:"venue"`
	Database struct {
		Driver string `yaml:"driver"` // sqlite | pgx | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Operators []string `yaml:"operators"`
	Proxy     string   `yaml:"proxy"`
}

// Load reads an optional .env file and the YAML config, then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KEEPER_CYCLE_PERIOD"); v != "" {
		cfg.Cycle.Period = v
	}
	if v := os.Getenv("KEEPER_CYCLE_START"); v != "" {
		cfg.Cycle.Start = v
	}
	if v := os.Getenv("KEEPER_CYCLE_CRON"); v != "" {
		cfg.Cycle.Cron = v
	}
	if v := os.Getenv("KEEPER_PAGE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("KEEPER_PAGE_LIMIT: %w", err)
		}
		cfg.Cycle.PageLimit = n
	}
	if v := os.Getenv("KEEPER_ORACLE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("KEEPER_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("KEEPER_VENUE_MODE"); v != "" {
		cfg.Venue.Mode = v
	}
	if v := os.Getenv("KEEPER_VENUE_URL"); v != "" {
		cfg.Venue.BaseURL = v
	}
	if v := os.Getenv("KEEPER_VENUE_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KEEPER_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("KEEPER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("KEEPER_OPERATORS"); v != "" {
		cfg.Operators = splitList(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Cycle.Period == "" {
		cfg.Cycle.Period = "24h"
	}
	if cfg.Cycle.PageLimit == 0 {
		cfg.Cycle.PageLimit = 50
	}
	if cfg.Cycle.Cron == "" {
		cfg.Cycle.Cron = "0 */5 * * * *"
	}
	if cfg.Venue.Mode == "" {
		cfg.Venue.Mode = "paper"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "data/keeper.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if _, err := c.CyclePeriod(); err != nil {
		return err
	}
	if _, err := c.CycleStart(); err != nil {
		return err
	}
	if c.Cycle.PageLimit < 0 {
		return fmt.Errorf("cycle.page_limit must not be negative")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Cycle.Cron); err != nil {
		return fmt.Errorf("cycle.cron: %w", err)
	}

	if _, err := c.ModelWhitelist(); err != nil {
		return err
	}

	switch c.Venue.Mode {
	case "paper":
		if _, err := c.PaperPrices(); err != nil {
			return err
		}
	case "http":
		if c.Venue.BaseURL == "" {
			return fmt.Errorf("venue.base_url is required in http mode")
		}
		if c.Oracle.BaseURL == "" {
			return fmt.Errorf("oracle.base_url is required in http mode")
		}
	default:
		return fmt.Errorf("venue.mode must be paper or http, got %q", c.Venue.Mode)
	}

	switch c.Database.Driver {
	case "sqlite", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, pgx or memory, got %q", c.Database.Driver)
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required with a bot token")
	}
	return nil
}

// CyclePeriod parses cycle.period.
func (c *Config) CyclePeriod() (time.Duration, error) {
	d, err := time.ParseDuration(c.Cycle.Period)
	if err != nil {
		return 0, fmt.Errorf("cycle.period: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("cycle.period must be at least 1s, got %s", d)
	}
	return d, nil
}

// CycleStart parses cycle.start; zero when unset.
func (c *Config) CycleStart() (time.Time, error) {
	if c.Cycle.Start == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Cycle.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("cycle.start: %w", err)
	}
	return t.UTC(), nil
}

// ModelWhitelist converts the whitelist section.
func (c *Config) ModelWhitelist() (model.Whitelist, error) {
	w := model.Whitelist{Denoms: c.Whitelist.Denoms}
	if len(w.Denoms) == 0 {
		return w, fmt.Errorf("whitelist.denoms is required")
	}
	if len(c.Whitelist.BaseDenoms) == 0 {
		return w, fmt.Errorf("whitelist.base_denoms is required")
	}
	for _, bd := range c.Whitelist.BaseDenoms {
		if bd.Denom == "" {
			return w, fmt.Errorf("whitelist.base_denoms: denom is required")
		}
		limit := decimal.Zero
		if bd.MinBalanceLimit != "" {
			v, err := decimal.NewFromString(bd.MinBalanceLimit)
			if err != nil {
				return w, fmt.Errorf("whitelist.base_denoms[%s].min_balance_limit: %w", bd.Denom, err)
			}
			if v.Sign() < 0 {
				return w, fmt.Errorf("whitelist.base_denoms[%s].min_balance_limit must not be negative", bd.Denom)
			}
			limit = v
		}
		w.BaseDenoms = append(w.BaseDenoms, model.BaseDenom{Denom: bd.Denom, MinBalanceLimit: limit})
	}
	return w, nil
}

// PaperPrices parses venue.prices.
func (c *Config) PaperPrices() (map[string]decimal.Decimal, error) {
	return parseAmounts("venue.prices", c.Venue.Prices)
}

// PaperMinimums parses venue.minimums.
func (c *Config) PaperMinimums() (map[string]decimal.Decimal, error) {
	return parseAmounts("venue.minimums", c.Venue.Minimums)
}

// PaperBalances parses venue.balances.
func (c *Config) PaperBalances() (map[string]map[string]decimal.Decimal, error) {
	out := make(map[string]map[string]decimal.Decimal, len(c.Venue.Balances))
	for account, amounts := range c.Venue.Balances {
		parsed, err := parseAmounts("venue.balances."+account, amounts)
		if err != nil {
			return nil, err
		}
		out[account] = parsed
	}
	return out, nil
}

func parseAmounts(field string, in map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for denom, raw := range in {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", field, denom, err)
		}
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%s.%s must not be negative", field, denom)
		}
		out[denom] = v
	}
	return out, nil
}
