// Package janitor runs scheduled retention sweeps over the artifact
// repository, the idempotency cache, and the trace/metrics store.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/conduit/internal/artifacts"
	"github.com/haasonsaas/conduit/internal/store"
	"github.com/haasonsaas/conduit/pkg/cache"
)

// cronParser accepts standard 5-field expressions plus descriptors like
// @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Options configures a Janitor. Any nil target is skipped.
type Options struct {
	Schedule  string
	Artifacts *artifacts.Repository
	Cache     *cache.IdempotencyCache
	Store     *store.TraceStore

	ArtifactMaxAge   time.Duration
	TraceRetention   time.Duration
	MetricsRetention time.Duration

	Logger *slog.Logger
}

// Janitor owns the cron runner. Sweeps are advisory housekeeping; a failed
// sweep logs and waits for the next tick.
type Janitor struct {
	opts Options
	cron *cron.Cron
}

func New(opts Options) (*Janitor, error) {
	if opts.Schedule == "" {
		opts.Schedule = "@hourly"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ArtifactMaxAge == 0 {
		opts.ArtifactMaxAge = 24 * time.Hour
	}
	if opts.TraceRetention == 0 {
		opts.TraceRetention = store.DefaultTraceRetention
	}
	if opts.MetricsRetention == 0 {
		opts.MetricsRetention = store.DefaultMetricsRetention
	}

	j := &Janitor{
		opts: opts,
		cron: cron.New(cron.WithParser(cronParser)),
	}
	if _, err := j.cron.AddFunc(opts.Schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", opts.Schedule, err)
	}
	return j, nil
}

// Start begins scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
	j.opts.Logger.Info("janitor started", "schedule", j.opts.Schedule)
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce performs one sweep over every configured target.
func (j *Janitor) RunOnce(ctx context.Context) {
	start := time.Now()

	if j.opts.Cache != nil {
		expired := j.opts.Cache.CleanupExpired()
		if expired > 0 {
			j.opts.Logger.Info("janitor: cache entries expired", "count", expired)
		}
	}
	if j.opts.Artifacts != nil {
		if n, err := j.opts.Artifacts.Cleanup(ctx, j.opts.ArtifactMaxAge); err != nil {
			j.opts.Logger.Warn("janitor: artifact sweep failed", "error", err)
		} else if n > 0 {
			j.opts.Logger.Info("janitor: artifacts removed", "count", n)
		}
	}
	if j.opts.Store != nil {
		if n, err := j.opts.Store.CleanupTraces(ctx, j.opts.TraceRetention); err != nil {
			j.opts.Logger.Warn("janitor: trace sweep failed", "error", err)
		} else if n > 0 {
			j.opts.Logger.Info("janitor: traces removed", "count", n)
		}
		if n, err := j.opts.Store.CleanupMetrics(ctx, j.opts.MetricsRetention); err != nil {
			j.opts.Logger.Warn("janitor: metrics sweep failed", "error", err)
		} else if n > 0 {
			j.opts.Logger.Info("janitor: metrics removed", "count", n)
		}
	}

	j.opts.Logger.Debug("janitor sweep complete", "elapsed", time.Since(start))
}
