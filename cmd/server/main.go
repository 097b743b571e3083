// Package main serves the equivalence API over HTTP and WebSocket. With
// --refresh it also rebuilds the curve in the background, so a single
// process can run the whole service.
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

	"fairrate/internal/api"
	"fairrate/internal/app"
	"fairrate/internal/config"
	"fairrate/internal/equivalence"
	"fairrate/internal/orchestrator"
	"fairrate/internal/query"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config")
	addr := flag.String("addr", "", "Listen address override")
	refresh := flag.Duration("refresh", 0, "Rebuild the curve on this interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	entry := log.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := app.NewMetrics(cfg.Metrics)

	repo, cleanup, err := app.OpenRepository(ctx, cfg.Storage, m, log)
	if err != nil {
		entry.WithError(err).Fatal("open repository")
	}
	defer cleanup()

	var cache api.Cache
	if cfg.HTTP.RedisAddr != "" {
		redisCache, err := api.NewRedisCache(ctx, cfg.HTTP.RedisAddr, cfg.HTTP.RedisPassword, cfg.HTTP.RedisDB)
		if err != nil {
			entry.WithError(err).Warn("redis unavailable, serving without cache")
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	svc := query.NewService(repo, equivalence.NewEngine()).WithMetrics(m).WithLogger(log)
	handler := api.NewHandler(svc, cache, cfg.HTTP.CacheTTL, api.WithMetrics(m), api.WithLogger(log))

	if *refresh > 0 {
		archiver, err := app.NewArchiver(ctx, cfg.Archive)
		if err != nil {
			entry.WithError(err).Fatal("configure archive")
		}
		p, err := app.NewPipeline(cfg, app.NewSource(cfg.Source, m, log), repo, archiver, m, log)
		if err != nil {
			entry.WithError(err).Fatal("configure pipeline")
		}
		go func() {
			_, _ = orchestrator.New(p, orchestrator.Options{Interval: *refresh, Logger: log}).Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		entry.WithField("addr", cfg.HTTP.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			entry.WithError(err).Error("server failed")
			cleanup()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	entry.Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Warn("forced shutdown")
	}
	entry.Info("shutdown complete")
}
