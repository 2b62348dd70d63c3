package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"RebalanceKeeper/internal/collector"
	"RebalanceKeeper/internal/config"
	"RebalanceKeeper/internal/metrics"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/notifier"
	"RebalanceKeeper/internal/recorder"
	"RebalanceKeeper/internal/scheduler"
	"RebalanceKeeper/internal/server"
	"RebalanceKeeper/internal/service"
	"RebalanceKeeper/internal/store"
	"RebalanceKeeper/internal/venue"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] RebalanceKeeper starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	whitelist, err := cfg.ModelWhitelist()
	if err != nil {
		log.Fatalf("[FATAL] whitelist: %v", err)
	}
	period, err := cfg.CyclePeriod()
	if err != nil {
		log.Fatalf("[FATAL] cycle period: %v", err)
	}
	start, err := cfg.CycleStart()
	if err != nil {
		log.Fatalf("[FATAL] cycle start: %v", err)
	}

	// Init price source, balances and venue
	var (
		prices   collector.PriceSource
		balances venue.BalanceSource
		exec     venue.Venue
	)
	switch cfg.Venue.Mode {
	case "http":
		prices = collector.NewHTTPPriceSource(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Proxy)
		hv := venue.NewHTTPVenue(cfg.Venue.BaseURL, cfg.Venue.APIKey, cfg.Proxy)
		balances, exec = hv, hv
		log.Printf("[INFO] venue: %s at %s", hv.Name(), cfg.Venue.BaseURL)
	default:
		paper, err := newPaper(cfg, whitelist)
		if err != nil {
			log.Fatalf("[FATAL] init paper venue: %v", err)
		}
		prices, balances, exec = paper, paper, paper
		if cfg.Oracle.BaseURL != "" {
			prices = collector.NewHTTPPriceSource(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Proxy)
		}
		log.Printf("[INFO] venue: %s (base %s)", paper.Name(), paper.Base)
	}

	// Init store and recorders
	st, recs, err := openStore(cfg)
	if err != nil {
		log.Fatalf("[FATAL] init store: %v", err)
	}
	defer st.Close()
	if j := recorder.NewJSONLRecorder(cfg.Journal.Path); j != nil {
		recs = append(recs, j)
	}
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if len(recs) > 0 {
		rec = recs
	}
	defer rec.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	svc, err := service.New(ctx, service.Deps{
		Store:    st,
		Prices:   prices,
		Balances: balances,
		Venue:    exec,
		Recorder: rec,
		Metrics:  m,
	}, service.Options{
		Period:       period,
		DefaultLimit: cfg.Cycle.PageLimit,
		CycleStart:   start,
		Whitelist:    whitelist,
		Operators:    cfg.Operators,
	})
	if err != nil {
		log.Fatalf("[FATAL] init service: %v", err)
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, svc, tn, cfg.Cycle.PageLimit)
	if cfg.Cycle.MaxPages > 0 {
		sched.MaxPages = cfg.Cycle.MaxPages
	}
	if err := sched.RegisterAll(cfg.Cycle.Cron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Start HTTP API
	srv := server.New(cfg.HTTP.Addr, svc, m)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Printf("[ERROR] http server: %v", err)
			cancel()
		}
	}()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, draining the cycle now")
		go sched.RunNow()
	}

	log.Println("[INFO] RebalanceKeeper is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	cancel()
	log.Println("[INFO] RebalanceKeeper stopped")
}

func newPaper(cfg *config.Config, w model.Whitelist) (*venue.Paper, error) {
	base := cfg.Venue.PaperBase
	if base == "" {
		base = w.BaseDenoms[0].Denom
	}
	paper := venue.NewPaper(base)

	prices, err := cfg.PaperPrices()
	if err != nil {
		return nil, err
	}
	for denom, p := range prices {
		paper.SetPrice(denom, p)
	}
	minimums, err := cfg.PaperMinimums()
	if err != nil {
		return nil, err
	}
	for denom, amt := range minimums {
		paper.SetMinimum(denom, amt)
	}
	balances, err := cfg.PaperBalances()
	if err != nil {
		return nil, err
	}
	for account, amounts := range balances {
		for denom, amt := range amounts {
			paper.Deposit(account, denom, amt)
		}
	}
	return paper, nil
}

// openStore opens the configured store. SQL stores also journal runs in the same database.
func openStore(cfg *config.Config) (store.Store, recorder.Multi, error) {
	if cfg.Database.Driver == "memory" {
		st, err := store.NewMemoryStore(cfg.Database.DSN)
		return st, nil, err
	}

	if cfg.Database.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
	}
	db, dialect, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	sr, err := recorder.NewSQLRecorder(db, dialect)
	if err != nil {
		log.Printf("[WARN] init sql recorder failed, runs are not journaled in the database: %v", err)
		return st, nil, nil
	}
	return st, recorder.Multi{sr}, nil
}
