// Package orchestrator runs the curve pipeline on a schedule.
// It coordinates repeated runs: build → tally → wait → build again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fairrate/internal/logger"
	"fairrate/internal/pipeline"
)

// MaxRecordedErrors bounds Summary.Errors; older messages are dropped.
const MaxRecordedErrors = 20

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// Orchestrator repeats pipeline runs until its context ends.
type Orchestrator struct {
	runner   Runner
	interval time.Duration
	maxRuns  int
	onResult func(*pipeline.RunResult, error)
	log      *logger.Entry
}

// Options for creating Orchestrator.
type Options struct {
	Interval time.Duration // delay between run starts; zero runs once
	MaxRuns  int           // stop after this many runs; zero means unbounded
	Logger   *logger.Log

	// OnResult is called after every run, successful or not.
	OnResult func(*pipeline.RunResult, error)
}

// New creates a new Orchestrator.
func New(runner Runner, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		runner:   runner,
		interval: opts.Interval,
		maxRuns:  opts.MaxRuns,
		onResult: opts.OnResult,
		log:      log.WithComponent("orchestrator"),
	}
}

// Summary tallies the runs made by one Run call.
type Summary struct {
	Runs        int
	Stored      int
	Unchanged   int
	Failed      int
	LastSuccess time.Time
	LastResult  *pipeline.RunResult
	Errors      []string
}

// Run executes the pipeline immediately and then once per interval. A
// failed run is recorded and retried at the next tick. Run returns when
// ctx is done or MaxRuns is reached; cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if o.runner == nil {
		return nil, errors.New("orchestrator: nil runner")
	}

	summary := &Summary{}
	var ticker *time.Ticker
	if o.interval > 0 {
		ticker = time.NewTicker(o.interval)
		defer ticker.Stop()
	}

	for {
		res, err := o.runner.Run(ctx)
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return summary, nil
		}
		summary.record(res, err)
		o.logRun(summary, res, err)
		if o.onResult != nil {
			o.onResult(res, err)
		}

		if ticker == nil || (o.maxRuns > 0 && summary.Runs >= o.maxRuns) {
			return summary, nil
		}

		select {
		case <-ctx.Done():
			return summary, nil
		case <-ticker.C:
		}
	}
}

func (s *Summary) record(res *pipeline.RunResult, err error) {
	s.Runs++
	if res != nil {
		s.LastResult = res
	}
	if err != nil {
		s.Failed++
		id := ""
		if res != nil {
			id = res.ID
		}
		s.Errors = append(s.Errors, fmt.Sprintf("run %d %s: %v", s.Runs, id, err))
		if len(s.Errors) > MaxRecordedErrors {
			s.Errors = s.Errors[len(s.Errors)-MaxRecordedErrors:]
		}
		return
	}
	switch {
	case res.Unchanged:
		s.Unchanged++
	case res.Stored:
		s.Stored++
	}
	s.LastSuccess = res.StartedAt.Add(res.Duration)
}

func (o *Orchestrator) logRun(s *Summary, res *pipeline.RunResult, err error) {
	entry := o.log.WithFields(logger.Fields{
		"runs":      s.Runs,
		"stored":    s.Stored,
		"unchanged": s.Unchanged,
		"failed":    s.Failed,
	})
	if err != nil {
		entry.WithError(err).Warn("scheduled curve build failed, retrying next tick")
		return
	}
	entry.WithField("reference_date", res.ReferenceDate.String()).Info("scheduled curve build finished")
}
