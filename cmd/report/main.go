// Package main prints reports over stored curves: the list of available
// dates, CSV exports, shape summaries and verification of stored or
// archived grids.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"

	"fairrate/internal/app"
	"fairrate/internal/config"
	"fairrate/internal/domain"
	"fairrate/internal/equivalence"
	"fairrate/internal/logger"
	"fairrate/internal/query"
	"fairrate/internal/reporting"
	"fairrate/internal/stats"
	"fairrate/internal/storage/archive"
	"fairrate/internal/verification"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config")
	dateFlag := flag.String("date", "", "Reference date YYYY-MM-DD (default: latest stored curve)")
	csvOut := flag.String("csv", "", "Export the curve as CSV to this file ('-' for stdout)")
	step := flag.Int("step", 1, "Emit every n-th grid day in the CSV export")
	verify := flag.Bool("verify", false, "Verify the curve invariants")
	summary := flag.Bool("summary", false, "Print tenor readings and distribution statistics")
	rebuild := flag.Bool("rebuild", false, "With --verify, also rebuild the grid from its vertices and compare")
	parquetIn := flag.String("parquet", "", "Read the curve from an archived parquet file instead of storage")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *csvOut == "" && !*verify && !*summary && *parquetIn == "" {
		if err := listDates(ctx, cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	c, err := loadCurve(ctx, cfg, *dateFlag, *parquetIn, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *csvOut != "" {
		if err := writeOutput(*csvOut, reporting.RenderCurveCSV(c, *step)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *summary || (*parquetIn != "" && *csvOut == "" && !*verify) {
		s, err := stats.Summarize(c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(reporting.RenderSummaryMarkdown(s))
	}

	if *verify {
		ok, err := runVerification(c, *rebuild, cfg.Curve.Horizon)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(3)
		}
	}
}

func listDates(ctx context.Context, cfg *config.Config, log *logger.Log) error {
	repo, cleanup, err := app.OpenRepository(ctx, cfg.Storage, nil, log)
	if err != nil {
		return err
	}
	defer cleanup()

	dates, err := query.NewService(repo, equivalence.NewEngine()).ListAvailableDates(ctx)
	if err != nil {
		return err
	}
	fmt.Print(reporting.RenderDatesMarkdown(dates))
	return nil
}

// loadCurve reads the curve from a parquet archive when path is set,
// otherwise from the configured repository.
func loadCurve(ctx context.Context, cfg *config.Config, dateStr, path string, log *logger.Log) (*domain.Curve, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		return archive.DecodeParquet(data)
	}

	var date civil.Date
	if dateStr != "" && dateStr != "latest" {
		d, err := civil.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", dateStr, err)
		}
		date = d
	}

	repo, cleanup, err := app.OpenRepository(ctx, cfg.Storage, nil, log)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return query.NewService(repo, equivalence.NewEngine()).Load(ctx, date)
}

// runVerification prints the invariant report and, with rebuild, the
// rebuild comparison. Violations are reported, not returned as errors.
func runVerification(c *domain.Curve, rebuild bool, horizon int) (bool, error) {
	report, err := verification.VerifyCurve(c)
	if report == nil {
		return false, err
	}
	fmt.Print(reporting.RenderVerificationMarkdown(report))
	ok := report.OK()

	if rebuild {
		rebuilt, err := verification.NewRebuildVerifier(horizon).Verify(c)
		if rebuilt == nil {
			return false, err
		}
		fmt.Print(reporting.RenderVerificationMarkdown(rebuilt))
		ok = ok && rebuilt.OK()
	}
	return ok, nil
}

func writeOutput(path, content string) error {
	if path == "-" {
		_, err := fmt.Print(content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
