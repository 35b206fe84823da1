package post

import (
	"context"
	"log/slog"
	"time"

	"github.com/andrianfaa/Studi-Bareng/internal/repository"
)

const (
	defaultSweepInterval = time.Minute
	sweepTimeout         = 15 * time.Second
)

// Sweeper purges expired posts on an interval.
type Sweeper struct {
	posts    repository.PostRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(posts repository.PostRepository, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		posts:    posts,
		logger:   logger.With("component", "post_sweeper"),
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("post sweeper started", "interval", s.interval)
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("post sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes every post whose expiry has passed and reports how many went.
func (s *Sweeper) Sweep(parent context.Context) int64 {
	timeout := sweepTimeout
	if s.interval < timeout {
		timeout = s.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	removed, err := s.posts.DeleteExpiredPosts(ctx, s.now().UTC())
	if err != nil {
		s.logger.Warn("failed to purge expired posts", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("expired posts purged", "count", removed)
	}
	return removed
}
