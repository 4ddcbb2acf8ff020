package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Prefetcher is implemented by the service layer to load one city into its caches.
// Declared here to avoid a dependency on the service package.
type Prefetcher interface {
	Prefetch(ctx context.Context, city string) error
}

// Warmer prefetches a list of cities so the first user request is served from cache.
type Warmer struct {
	prefetcher Prefetcher
	logger     *zap.Logger
}

func NewWarmer(prefetcher Prefetcher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{prefetcher: prefetcher, logger: logger}
}

// Warm prefetches every city concurrently. Failures are collected per city and
// joined; one failing city never stops the others.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	errs := make([]error, len(cities))
	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			if err := w.prefetcher.Prefetch(ctx, city); err != nil {
				errs[i] = fmt.Errorf("warm %s: %w", city, err)
			}
		}(i, city)
	}
	wg.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", failed),
		zap.Float64("duration_seconds", duration))

	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", err)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	if err := w.Warm(ctx, cities); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
