// Package main downloads the market document once and saves it, decoded to
// UTF-8, so it can be replayed later with `etl --file`.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fairrate/internal/app"
	"fairrate/internal/config"
	"fairrate/internal/idhash"
	"fairrate/internal/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config")
	url := flag.String("url", "", "Source URL override")
	out := flag.String("out", "", "Output file (default data/curva_zero_<timestamp>.txt)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Source.URL = *url
	}
	cfg.Source.File = ""

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	entry := log.WithComponent("ingest")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := app.NewSource(cfg.Source, nil, log).Fetch(ctx)
	if err != nil {
		entry.WithError(err).Fatal("fetch document")
	}

	path := *out
	if path == "" {
		path = filepath.Join("data", fmt.Sprintf("curva_zero_%s.txt", doc.FetchedAt.Format("20060102T150405Z")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		entry.WithError(err).Fatal("create output dir")
	}
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		entry.WithError(err).Fatal("write document")
	}

	entry.WithFields(logger.Fields{
		"source": doc.Name,
		"path":   path,
		"bytes":  len(doc.Body),
		"digest": idhash.DocumentDigest(doc.Body),
	}).Info("document saved")
	fmt.Println(path)
}
