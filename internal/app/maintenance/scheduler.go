// Package maintenance runs periodic cleanup jobs: bot log retention and
// expiry of Make requests that were never delivered.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/barbershop/internal/app/metrics"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/app/system"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// StaleReason is stored on Make requests expired by the scheduler.
const StaleReason = "delivery timed out"

const (
	jobPruneBotLogs       = "prune_bot_logs"
	jobExpireMakeRequests = "expire_make_requests"
)

// Store is the persistence the jobs touch.
type Store interface {
	storage.BotStore
	storage.MakeRequestStore
}

// Config sets retention windows and cron specs.
type Config struct {
	BotLogRetention  time.Duration
	MakeRequestStale time.Duration
	// PruneSchedule and ExpireSchedule default to hourly and every five minutes.
	PruneSchedule  string
	ExpireSchedule string
}

var _ system.Service = (*Scheduler)(nil)

// Scheduler owns the cron runner.
type Scheduler struct {
	store Store
	cfg   Config
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a stopped scheduler.
func New(store Store, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	if cfg.BotLogRetention <= 0 {
		cfg.BotLogRetention = 30 * 24 * time.Hour
	}
	if cfg.MakeRequestStale <= 0 {
		cfg.MakeRequestStale = time.Hour
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = "@hourly"
	}
	if cfg.ExpireSchedule == "" {
		cfg.ExpireSchedule = "@every 5m"
	}
	return &Scheduler{store: store, cfg: cfg, log: log, now: time.Now}
}

func (s *Scheduler) Name() string { return "maintenance-scheduler" }

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithLogger(cron.PrintfLogger(s.log.WithField("component", "cron"))))
	jobCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(s.cfg.PruneSchedule, func() { s.run(jobCtx, jobPruneBotLogs, s.PruneBotLogs) }); err != nil {
		return fmt.Errorf("schedule %s: %w", jobPruneBotLogs, err)
	}
	if _, err := c.AddFunc(s.cfg.ExpireSchedule, func() { s.run(jobCtx, jobExpireMakeRequests, s.ExpireMakeRequests) }); err != nil {
		return fmt.Errorf("schedule %s: %w", jobExpireMakeRequests, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("prune", s.cfg.PruneSchedule).WithField("expire", s.cfg.ExpireSchedule).Info("maintenance scheduler started")
	return nil
}

// Stop stops the runner and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("maintenance scheduler stopped")
	return nil
}

// PruneBotLogs deletes bot logs older than the retention window.
func (s *Scheduler) PruneBotLogs(ctx context.Context) (int64, error) {
	return s.store.PruneBotLogs(ctx, s.now().Add(-s.cfg.BotLogRetention))
}

// ExpireMakeRequests fails Make requests still created after the stale window.
func (s *Scheduler) ExpireMakeRequests(ctx context.Context) (int64, error) {
	return s.store.FailStaleMakeRequests(ctx, s.now().Add(-s.cfg.MakeRequestStale), StaleReason)
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	affected, err := fn(ctx)
	metrics.RecordMaintenanceRun(job, affected, err)
	entry := s.log.WithField("job", job).WithField("affected", affected)
	if err != nil {
		entry.WithError(err).Warn("maintenance job failed")
		return
	}
	if affected > 0 {
		entry.Info("maintenance job completed")
	}
}
