package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/evaluation"
)

// DefaultWorkers bounds concurrent detector calls per run.
const DefaultWorkers = 4

// Detector is the adapter surface the runner drives. It never returns
// an error: backend failures arrive as an empty result with Err set,
// so one bad case cannot abort a run.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) core.DetectionResult
}

// Runner executes datasets against a detector and persists scored runs.
type Runner struct {
	evaluator *evaluation.Evaluator
	store     ResultStore
	workers   int
	logger    *slog.Logger
}

// NewRunner creates a runner. store may be nil when persistence is not
// wanted (the run is still returned to the caller).
func NewRunner(ev *evaluation.Evaluator, store ResultStore, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		evaluator: ev,
		store:     store,
		workers:   workers,
		logger:    logger,
	}
}

// Run scores every case of the dataset against the detector. Cases are
// independent and run on a bounded worker pool; results keep dataset
// order regardless of completion order.
func (r *Runner) Run(ctx context.Context, det Detector, ds *dataset.Dataset) (*Run, error) {
	if det == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if ds == nil || len(ds.Cases) == 0 {
		return nil, core.NewEvaluationError("dataset has no cases", nil)
	}

	start := time.Now()
	results := make([]evaluation.CaseResult, len(ds.Cases))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := ds.Cases[i]
				dr := det.Detect(ctx, c.Query)
				results[i] = r.evaluator.EvaluateCase(c.ID, c.Query, dr.Spans, c.Expected, dr.ElapsedMS, dr.Err)
			}
		}()
	}

	var cancelled error
feed:
	for i := range ds.Cases {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break feed
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}

	run := &Run{
		ID:        newRunID(start, det.Name(), ds.Name),
		Detector:  det.Name(),
		Dataset:   ds.Name,
		Timestamp: start.UTC(),
		CreatedAt: start.Unix(),
		Summary:   r.evaluator.Aggregate(results),
		Cases:     results,
	}

	r.logger.Info("benchmark run finished",
		"run_id", run.ID,
		"detector", run.Detector,
		"dataset", run.Dataset,
		"cases", run.Summary.TotalCases,
		"passed", run.Summary.PassedCases,
		"f1", run.Summary.F1,
		"leakage_rate", run.Summary.LeakageRate,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if r.store != nil {
		if err := r.store.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	return run, nil
}
