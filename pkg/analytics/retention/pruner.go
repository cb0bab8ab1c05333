package retention

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
)

// Cleaner deletes records older than a cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain records.
	// 0 means keep records forever (no pruning).
	RetentionDays int

	// Schedule is a cron expression for scheduling pruning.
	// Example: "0 * * * *" (hourly)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 7,
		Schedule:      "0 * * * *",
	}
}

// Pruner enforces the retention horizon.
type Pruner struct {
	cleaner   Cleaner
	config    *Config
	days      atomic.Int64
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(cleaner Cleaner, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		cleaner: cleaner,
		config:  config,
		logger:  slog.Default().With("component", "analytics.retention"),
		now:     time.Now,
	}
	pruner.days.Store(int64(config.RetentionDays))
	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// RetentionDays returns the current retention horizon in days.
func (p *Pruner) RetentionDays() int {
	return int(p.days.Load())
}

// SetRetentionDays changes the horizon used by later runs. It is safe to
// call while the scheduler is running.
func (p *Pruner) SetRetentionDays(days int) {
	if old := p.days.Swap(int64(days)); old != int64(days) {
		p.logger.Info("retention horizon updated", "old_days", old, "retention_days", days)
	}
}

// Cutoff returns the oldest timestamp that is still retained.
func (p *Pruner) Cutoff() time.Time {
	return p.now().AddDate(0, 0, -p.RetentionDays())
}

// Prune deletes records older than the retention horizon and returns how
// many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	days := p.RetentionDays()
	if days <= 0 {
		p.logger.Debug("retention disabled, skipping prune")
		return 0, nil
	}

	cutoff := p.Cutoff()
	p.logger.Debug("pruning by age",
		"cutoff_time", cutoff,
		"retention_days", days,
	)

	deleted, err := p.cleaner.Cleanup(ctx, cutoff)
	if err != nil {
		return deleted, analytics.NewRetentionError(days, err)
	}

	if deleted > 0 {
		p.logger.Info("analytics pruning completed",
			"deleted_count", deleted,
			"retention_days", days,
		)
	}
	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
