package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

const inFlightCheckInterval = 100 * time.Millisecond

func runServe(cfg *config.Config, logger *zap.Logger, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.String("port", cfg.ServerPort, "port to listen on")
	warm := fs.Bool("warm", true, "prefetch configured cities on start and every cache.warm_interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := traffic.NewTracker(0)
	handler := httphandler.NewHandler(a.svc, &httphandler.HealthConfig{
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		CachePing:              a.cachePing,
		Version:                version,
	}, logger, tracker, cfg.Cities, validation.DefaultMinLen, validation.DefaultMaxLen)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	if *warm && cfg.CacheBackend != cache.BackendNone && len(cfg.Cities) > 0 {
		warmer := cache.NewWarmer(a.svc, logger)
		go func() {
			if cfg.WarmInterval <= 0 {
				if err := warmer.Warm(ctx, cfg.Cities); err != nil {
					logger.Warn("cache warming failed", zap.Error(err))
				}
				return
			}
			if err := warmer.WarmPeriodic(ctx, cfg.Cities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete")
	return nil
}
