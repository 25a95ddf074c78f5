// Package stats periodically logs store sizes. Both the identity scan and
// the cache scan are O(n), so operators need to see n grow.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semrelayhq/semrelay/internal/handlers"
)

// Reporter runs a cron job that logs identity and cache store sizes.
type Reporter struct {
	cron       *cron.Cron
	identities handlers.Counter
	cache      handlers.Counter
	logger     *slog.Logger
}

func NewReporter(log *slog.Logger, identities, cache handlers.Counter) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		cron:       cron.New(),
		identities: identities,
		cache:      cache,
		logger:     log.With(slog.String("service", "stats")),
	}
}

// Start schedules the report job. schedule accepts cron specs including
// the "@every" form.
func (r *Reporter) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return fmt.Errorf("schedule stats job: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Reporter) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users, err := r.identities.Count(ctx)
	if err != nil {
		r.logger.Warn("identity count failed", slog.Any("error", err))
		return
	}
	entries, err := r.cache.Count(ctx)
	if err != nil {
		r.logger.Warn("cache count failed", slog.Any("error", err))
		return
	}
	r.logger.Info("store sizes",
		slog.Int64("identity_records", users),
		slog.Int64("cache_entries", entries),
	)
}
