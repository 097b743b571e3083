// Package main runs the curve ETL: download the market document, build the
// daily nominal/real curve and store it. With --interval it keeps running
// and rebuilds on every tick.
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

	"fairrate/internal/app"
	"fairrate/internal/config"
	"fairrate/internal/logger"
	"fairrate/internal/observability"
	"fairrate/internal/orchestrator"
	"fairrate/internal/pipeline"
	"fairrate/internal/reporting"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config")
	file := flag.String("file", "", "Read the market document from a local file instead of the source URL")
	dryRun := flag.Bool("dry-run", false, "Build and verify the curve without storing it")
	interval := flag.Duration("interval", 0, "Rebuild on this interval instead of running once")
	driver := flag.String("storage", "", "Storage driver override: memory, postgres or clickhouse")
	summary := flag.Bool("summary", true, "Print a markdown run summary to stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *file != "" {
		cfg.Source.File = *file
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	entry := log.WithComponent("etl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := app.NewMetrics(cfg.Metrics)
	if m != nil && *interval > 0 && cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, entry)
	}

	repo, cleanup, err := app.OpenRepository(ctx, cfg.Storage, m, log)
	if err != nil {
		entry.WithError(err).Fatal("open repository")
	}
	defer cleanup()

	archiver, err := app.NewArchiver(ctx, cfg.Archive)
	if err != nil {
		entry.WithError(err).Fatal("configure archive")
	}

	p, err := app.NewPipeline(cfg, app.NewSource(cfg.Source, m, log), repo, archiver, m, log)
	if err != nil {
		entry.WithError(err).Fatal("configure pipeline")
	}
	p = p.WithDryRun(*dryRun)

	if *interval <= 0 {
		res, err := p.Run(ctx)
		printSummary(res, *summary)
		if err != nil {
			entry.WithError(err).Error("curve build failed")
			cleanup()
			os.Exit(1)
		}
		return
	}

	entry.WithField("interval", interval.String()).Info("scheduled mode")
	runSummary, err := orchestrator.New(p, orchestrator.Options{Interval: *interval, Logger: log}).Run(ctx)
	if err != nil {
		entry.WithError(err).Fatal("scheduler failed")
	}
	entry.WithFields(logger.Fields{
		"runs":      runSummary.Runs,
		"stored":    runSummary.Stored,
		"unchanged": runSummary.Unchanged,
		"failed":    runSummary.Failed,
	}).Info("shutdown complete")
}

func printSummary(res *pipeline.RunResult, enabled bool) {
	if !enabled || res == nil {
		return
	}
	fmt.Print(reporting.RenderRunMarkdown(res))
}

func serveMetrics(addr string, entry *logger.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	entry.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		entry.WithError(err).Error("metrics server stopped")
	}
}
