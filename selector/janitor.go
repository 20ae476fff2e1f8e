package selector

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor runs the stale-selector sweep on a cron schedule.
type Janitor struct {
	cache    *Cache
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor creates a janitor sweeping entries older than maxAge on
// the given cron schedule (e.g., "@daily").
func NewJanitor(cache *Cache, maxAge time.Duration, schedule string, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cache:    cache,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. Returns an error for an invalid schedule
// expression.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, sweepErr := j.cache.CleanupStale(ctx, j.maxAge); sweepErr != nil {
			j.logger.Error("selector sweep failed", slog.String("error", sweepErr.Error()))
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("selector janitor started",
		slog.String("schedule", j.schedule),
		slog.Duration("max_age", j.maxAge),
	)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
