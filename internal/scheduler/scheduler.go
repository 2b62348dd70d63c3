package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"

	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/notifier"
	"RebalanceKeeper/internal/service"
)

// DefaultMaxPages bounds how many pages one scheduled run drains.
const DefaultMaxPages = 1000

// Sender delivers notifications.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler drives the keeper from cron and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Service  *service.Service
	Notifier Sender
	Limit    int // accounts per page; zero uses the service default
	MaxPages int
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, svc *service.Service, n Sender, limit int) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Service:  svc,
		Notifier: n,
		Limit:    limit,
		MaxPages: DefaultMaxPages,
		Ctx:      ctx,
	}
}

// RegisterAll registers the cycle task.
func (s *Scheduler) RegisterAll(cycleCron string) error {
	if _, err := s.Cron.AddFunc(cycleCron, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow drains the current cycle immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.cycleTask()
}

func (s *Scheduler) cycleTask() {
	reports, err := s.Drain(s.Ctx)
	if len(reports) == 0 && err == nil {
		return
	}
	if err != nil && len(reports) == 0 {
		s.trySend(notifier.FormatAlert(err))
		return
	}
	s.trySend(notifier.FormatCycleSummary(reports, err))
}

// Drain runs pages until the cycle is no longer in progress. A cycle that has
// not started yet ends the drain without error.
func (s *Scheduler) Drain(ctx context.Context) ([]*service.RunReport, error) {
	var limit *int
	if s.Limit > 0 {
		l := s.Limit
		limit = &l
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var reports []*service.RunReport
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.Service.RunCycle(ctx, limit)
		if errors.Is(err, service.ErrCycleNotStarted) {
			if page == 0 {
				log.Printf("[INFO] cycle not due: %v", err)
			}
			return reports, nil
		}
		if err != nil {
			log.Printf("[ERROR] cycle page %d: %v", page+1, err)
			return reports, err
		}
		reports = append(reports, report)
		if _, more := report.Status.(model.Processing); !more {
			return reports, nil
		}
		if report.Visited == 0 {
			log.Printf("[WARN] page limit is zero, stopping drain")
			return reports, nil
		}
	}
	log.Printf("[WARN] drain stopped after %d pages", maxPages)
	return reports, nil
}

// command is one chat command route.
type command struct {
	usage string
	args  int // required arguments
	run   func(s *Scheduler, ctx context.Context, cmd notifier.Command) (string, error)
}

var commands = map[string]command{
	"status": {usage: "/status", run: func(s *Scheduler, ctx context.Context, _ notifier.Command) (string, error) {
		st, err := s.Service.Status(ctx)
		if err != nil {
			return "", err
		}
		return notifier.FormatStatus(st), nil
	}},
	"run": {usage: "/run", run: func(s *Scheduler, _ context.Context, _ notifier.Command) (string, error) {
		go s.cycleTask()
		return "▶️ cycle run requested", nil
	}},
	"prices": {usage: "/prices", run: func(s *Scheduler, ctx context.Context, _ notifier.Command) (string, error) {
		prices, err := s.Service.Prices(ctx)
		if err != nil {
			return "", err
		}
		return notifier.FormatPrices(prices), nil
	}},
	"account": {usage: "/account <id>", args: 1, run: func(s *Scheduler, ctx context.Context, cmd notifier.Command) (string, error) {
		acc, err := s.Service.Account(ctx, cmd.Arg(0))
		if err != nil {
			return "", err
		}
		return notifier.FormatAccount(acc), nil
	}},
}

var commandOrder = []string{"status", "run", "prices", "account"}

// HandleCommand routes a chat command and returns the reply.
func (s *Scheduler) HandleCommand(ctx context.Context, cmd notifier.Command) string {
	route, ok := commands[cmd.Name]
	if !ok {
		return help()
	}
	if len(cmd.Args) < route.args {
		return "usage: " + route.usage
	}
	reply, err := route.run(s, ctx, cmd)
	if err != nil {
		log.Printf("[WARN] command /%s failed: %v", cmd.Name, err)
		return "❌ " + err.Error()
	}
	return reply
}

func help() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, name := range commandOrder {
		b.WriteString("\n• " + commands[name].usage)
	}
	return b.String()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
