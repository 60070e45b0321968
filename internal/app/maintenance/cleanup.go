package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/metrics"
)

const (
	defaultPruneSpec   = "@every 1m"
	defaultSessionSpec = "@every 5m"
)

// Pruner drops rate limiter keys whose attempts all fell out of their window.
type Pruner interface {
	Prune() int
	Len() int
}

// Cleaner coordinates background maintenance tasks such as pruning stale rate
// limiter windows and refreshing the active session gauge.
type Cleaner struct {
	db      *gorm.DB
	limiter Pruner
	cron    *cron.Cron
	log     *zap.Logger

	pruneSchedule   string
	sessionSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithPruneSchedule overrides the cron schedule for rate limiter pruning.
func WithPruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pruneSchedule = spec
		}
	}
}

// WithSessionSchedule overrides the cron schedule for the session gauge.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(db *gorm.DB, limiter Pruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		limiter:         limiter,
		pruneSchedule:   defaultPruneSpec,
		sessionSchedule: defaultSessionSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers maintenance jobs and launches the scheduler if any job is enabled.
func (c *Cleaner) Start() error {
	if c.limiter == nil && c.db == nil {
		return nil
	}

	if c.limiter != nil {
		if _, err := c.cron.AddFunc(c.pruneSchedule, func() {
			c.pruneLimiter()
		}); err != nil {
			return fmt.Errorf("schedule rate limiter pruning: %w", err)
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := CountSessions(context.Background(), c.db); err != nil {
				c.log.Warn("session count failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule session count: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.limiter != nil {
		c.pruneLimiter()
	}

	if c.db != nil {
		if _, err := CountSessions(ctx, c.db); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) pruneLimiter() {
	removed := c.limiter.Prune()
	remaining := c.limiter.Len()
	metrics.RateLimitKeys.Set(float64(remaining))
	c.log.Debug("rate limiter pruned", zap.Int("removed", removed), zap.Int("keys", remaining))
}

// CountSessions counts stored sessions and publishes the result as a gauge.
func CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("count sessions: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Session{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	metrics.ActiveSessions.Set(float64(count))
	return count, nil
}
