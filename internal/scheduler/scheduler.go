// Package scheduler runs periodic background maintenance against a ticker,
// independently of the webhook-driven request path.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WorkspaceCleaner matches provisioner.Provisioner's GC method.
type WorkspaceCleaner interface {
	CleanupOldWorkspaces() (int, error)
}

// Scheduler drives workspace garbage collection on a fixed interval. It
// never polls for pipeline work — every pipeline state change arrives via
// webhook, so Scheduler's only job is reclaiming disk.
type Scheduler struct {
	cleaner  WorkspaceCleaner
	interval time.Duration
	logger   *zap.Logger
}

// New builds a Scheduler.
func New(cleaner WorkspaceCleaner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{cleaner: cleaner, interval: interval, logger: logger.With(zap.String("component", "scheduler"))}
}

// Run starts the GC loop. It sweeps immediately on start, then every
// interval. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("workspace gc starting", zap.Duration("interval", s.interval))

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("workspace gc stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	removed, err := s.cleaner.CleanupOldWorkspaces()
	if err != nil {
		s.logger.Error("workspace gc sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("workspace gc sweep removed stale workspaces", zap.Int("count", removed))
	}
}
