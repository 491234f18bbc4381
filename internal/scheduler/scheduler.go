// Package scheduler drives refresh cycles around market hours.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/bot"
	"etf-reversion-bot/internal/logging"
)

// Refresher is the engine operation the scheduler invokes.
type Refresher interface {
	RefreshCycle(ctx context.Context) (*bot.CycleReport, error)
}

// Scheduler runs pre-market and post-market refresh cycles on cron
// expressions from the configuration.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	cfg       config.SchedulerConfig
	log       *logging.Logger
	ctx       context.Context
}

func New(ctx context.Context, cfg config.SchedulerConfig, refresher Refresher) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		refresher: refresher,
		cfg:       cfg,
		log:       logging.Default().WithComponent("scheduler"),
		ctx:       ctx,
	}
}

// Register wires the configured cron expressions. Call before Start.
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.cfg.PreMarketCron, func() {
		s.runCycle("pre-market")
	}); err != nil {
		return fmt.Errorf("register pre-market refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.PostMarketCron, func() {
		s.runCycle("post-market")
	}); err != nil {
		return fmt.Errorf("register post-market refresh: %w", err)
	}
	return nil
}

// Start begins scheduling. When RunOnStart is set, one cycle runs
// immediately in the background.
func (s *Scheduler) Start() {
	if s.cfg.RunOnStart {
		go s.runCycle("startup")
	}
	s.cron.Start()
	s.log.Info("scheduler started",
		"pre_market", s.cfg.PreMarketCron, "post_market", s.cfg.PostMarketCron)
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runCycle(trigger string) {
	s.log.Info("scheduled refresh starting", "trigger", trigger)
	report, err := s.refresher.RefreshCycle(s.ctx)
	if err != nil {
		s.log.Error("scheduled refresh failed", "trigger", trigger, "error", err.Error())
		return
	}
	s.log.Info("scheduled refresh completed",
		"trigger", trigger,
		"evaluated", report.Evaluated,
		"failures", len(report.Failures))
}
