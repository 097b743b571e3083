// Package main answers a single equivalence query from the command line.
//
// Usage:
//
//	quote --indexation ipca+ --tenor 2 --unit years --rate 6.5
//	quote --server ws://localhost:8080/ws/equivalence --indexation %cdi --tenor 18 --unit months --rate 105
//
// With --server the query is sent to a running server and the reply is
// printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"

	"fairrate/internal/api"
	"fairrate/internal/api/client"
	"fairrate/internal/app"
	"fairrate/internal/config"
	"fairrate/internal/domain"
	"fairrate/internal/equivalence"
	"fairrate/internal/logger"
	"fairrate/internal/query"
	"fairrate/internal/reporting"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config")
	dateFlag := flag.String("date", "", "Reference date YYYY-MM-DD (default: latest stored curve)")
	indexation := flag.String("indexation", "prefixed", "prefixed, ipca+, %cdi or cdi+")
	tenor := flag.Float64("tenor", 0, "Tenor value")
	unit := flag.String("unit", "years", "Tenor unit: days, months or years")
	rate := flag.Float64("rate", 0, "Offered rate in percent")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	server := flag.String("server", "", "Query a running server over WebSocket instead of local storage")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	q, date, err := parseArgs(*dateFlag, *indexation, *tenor, *unit, *rate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *server != "" {
		if err := quoteRemote(ctx, *server, *dateFlag, q, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	repo, cleanup, err := app.OpenRepository(ctx, cfg.Storage, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	svc := query.NewService(repo, equivalence.NewEngine()).WithLogger(log)
	ans, err := svc.Compute(ctx, date, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", query.Outcome(err), err)
		cleanup()
		os.Exit(1)
	}

	if *asJSON {
		if err := printJSON(ans); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	c, err := svc.Load(ctx, ans.ReferenceDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(reporting.RenderEquivalenceMarkdown(c, ans.Quote, ans.Result))
}

func parseArgs(dateStr, indexation string, tenor float64, unit string, rate float64) (domain.Quote, civil.Date, error) {
	var date civil.Date
	if dateStr != "" && dateStr != "latest" {
		d, err := civil.ParseDate(dateStr)
		if err != nil {
			return domain.Quote{}, civil.Date{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
		}
		date = d
	}
	ix, err := domain.ParseIndexation(indexation)
	if err != nil {
		return domain.Quote{}, civil.Date{}, err
	}
	u, err := domain.ParseTenorUnit(unit)
	if err != nil {
		return domain.Quote{}, civil.Date{}, err
	}
	return domain.Quote{Indexation: ix, TenorValue: tenor, TenorUnit: u, Rate: rate}, date, nil
}

func quoteRemote(ctx context.Context, endpoint, date string, q domain.Quote, log *logger.Log) error {
	c, err := client.Dial(ctx, endpoint, nil, log)
	if err != nil {
		return err
	}
	defer c.Close()

	reply, err := c.Quote(ctx, api.EquivalenceRequest{
		Date:       date,
		Indexation: q.Indexation.String(),
		TenorValue: q.TenorValue,
		TenorUnit:  q.TenorUnit.String(),
		Rate:       q.Rate,
	})
	if err != nil {
		return err
	}
	if reply.Error != nil {
		return fmt.Errorf("%s: %s", reply.Error.Code, reply.Error.Error)
	}
	return printJSON(reply.Answer)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
