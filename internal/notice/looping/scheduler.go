package looping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"noticeops/internal/notice/models"
)

// Resyncer pushes notices left pending by failed mirror writes.
type Resyncer interface {
	ResyncPending(ctx context.Context, limit int) (models.ResyncResult, error)
}

// Schedule holds cron specs (seconds field first) and per-run bounds.
type Schedule struct {
	PassSpec    string
	PassTimeout time.Duration

	ResyncSpec    string
	ResyncTimeout time.Duration
	ResyncBatch   int
}

// Scheduler triggers the looping pass and the mirror resync sweep on cron ticks.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers both jobs. An empty spec disables that job.
func NewScheduler(ctx context.Context, ctrl *Controller, resync Resyncer, sched Schedule, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
	}

	if sched.PassSpec != "" {
		_, err := s.cron.AddFunc(sched.PassSpec, func() {
			rctx, cancel := bounded(ctx, sched.PassTimeout)
			defer cancel()
			if _, err := ctrl.RunPass(rctx); err != nil {
				logger.WarnContext(rctx, "scheduled looping suspension pass did not run", "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule looping pass %q: %w", sched.PassSpec, err)
		}
	}

	if sched.ResyncSpec != "" && resync != nil {
		_, err := s.cron.AddFunc(sched.ResyncSpec, func() {
			rctx, cancel := bounded(ctx, sched.ResyncTimeout)
			defer cancel()
			if _, err := resync.ResyncPending(rctx, sched.ResyncBatch); err != nil {
				logger.WarnContext(rctx, "scheduled mirror resync failed", "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule mirror resync %q: %w", sched.ResyncSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
