// Package scheduler runs small periodic background jobs that support the
// Task Orchestrator but aren't themselves part of a task lifecycle: a
// stale-lease sweep that reclaims accounts a crashed worker left IN_USE,
// and a metrics refresh that keeps the account-status gauges current
// between crawls. Grounded on
// ternarybob-quaero/internal/services/scheduler/scheduler_service.go's use
// of robfig/cron/v3 for named, independently-scheduled background jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wangicheng/orange-juice/pkg/metrics"
	"github.com/wangicheng/orange-juice/pkg/model"
)

// AccountStore is the persistence boundary the scheduler's jobs depend
// on, implemented by pkg/repository.AccountRepository.
type AccountStore interface {
	ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error)
	CountByStatus(ctx context.Context, status model.AccountStatus) (int, error)
}

// StaleLeaseTTL is the default duration an account may sit IN_USE without
// a last_used update before the sweep reclaims it back to ACTIVE.
const StaleLeaseTTL = 30 * time.Minute

// Scheduler wraps a robfig/cron instance running the janitor jobs.
type Scheduler struct {
	cron     *cron.Cron
	accounts AccountStore
	ttl      time.Duration
}

// New returns a Scheduler bound to accounts, using the default stale
// lease TTL.
func New(accounts AccountStore) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		accounts: accounts,
		ttl:      StaleLeaseTTL,
	}
}

// WithStaleLeaseTTL overrides the default stale-lease TTL.
func (s *Scheduler) WithStaleLeaseTTL(ttl time.Duration) *Scheduler {
	s.ttl = ttl
	return s
}

// Start registers the jobs and starts the cron scheduler in the
// background. It returns immediately; call Stop to shut down cleanly.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 5m", func() { s.sweepStaleLeases(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 30s", func() { s.refreshAccountMetrics(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight job run to
// finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepStaleLeases(ctx context.Context) {
	n, err := s.accounts.ReleaseStale(ctx, s.ttl)
	if err != nil {
		slog.Error("stale lease sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("reclaimed stale leased accounts", "count", n, "ttl", s.ttl)
	}
}

func (s *Scheduler) refreshAccountMetrics(ctx context.Context) {
	for _, status := range []model.AccountStatus{model.AccountActive, model.AccountInUse, model.AccountDisabled} {
		n, err := s.accounts.CountByStatus(ctx, status)
		if err != nil {
			slog.Error("account metrics refresh failed", "status", status, "error", err)
			return
		}
		metrics.AccountsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
