package optimize

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"backtest-core/internal/backtest"
	"backtest-core/internal/events"
	"backtest-core/internal/market"
	"backtest-core/internal/strategy"
)

// Runner executes parameter sweeps. Individual backtests share no mutable
// state, so combinations run in parallel behind a worker limit; all job
// mutation happens on the collector goroutine (single writer).
type Runner struct {
	store   JobStore
	bus     *events.Bus
	workers int
}

// NewRunner builds a runner with a bounded worker count.
func NewRunner(store JobStore, bus *events.Bus, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{store: store, bus: bus, workers: workers}
}

// Start validates the sweep, creates the job and launches the background
// run. It returns immediately; callers poll the job id through the store.
// A setup problem (zero combinations, unknown target) marks the job FAILED
// and is also returned.
func (r *Runner) Start(ctx context.Context, strategyID string, graph *strategy.Graph, bars []market.Bar, ranges Ranges, target string, opts backtest.Options) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Target:     target,
		Status:     StatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create optimization job: %w", err)
	}

	if !validTarget(target) {
		return job, r.failJob(ctx, job, &SetupError{Reason: fmt.Sprintf("unknown target metric %q", target)})
	}
	combos := Combinations(ranges)
	if len(combos) == 0 {
		return job, r.failJob(ctx, job, &SetupError{Reason: "no parameter combinations generated"})
	}
	// Compile once up front so a structurally broken graph fails the job
	// before any workers start.
	if _, err := strategy.Compile(graph, nil); err != nil {
		return job, r.failJob(ctx, job, err)
	}

	go r.run(ctx, job, graph, bars, combos, opts)

	return job, nil
}

type comboResult struct {
	params  Assignment
	summary *backtest.Summary
	err     error
}

func (r *Runner) run(ctx context.Context, job *Job, graph *strategy.Graph, bars []market.Bar, combos []Assignment, opts backtest.Options) {
	sem := semaphore.NewWeighted(int64(r.workers))
	results := make(chan comboResult)

	var wg sync.WaitGroup
	go func() {
		for _, combo := range combos {
			if ctx.Err() != nil {
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(params Assignment) {
				defer wg.Done()
				defer sem.Release(1)
				results <- runCombination(graph, bars, params, opts)
			}(combo)
		}
		wg.Wait()
		close(results)
	}()

	// Collector: the only goroutine that touches job state. Store writes
	// are throttled so a fast sweep does not hammer the database; the
	// terminal write below is unconditional.
	progressLimit := rate.NewLimiter(rate.Every(200*time.Millisecond), 1)

	var (
		completed int
		bestScore float64
		best      *comboResult
	)
	lowerIsBetter := job.Target == "maxDrawdown"
	if lowerIsBetter {
		bestScore = math.Inf(1)
	} else {
		bestScore = math.Inf(-1)
	}

	for res := range results {
		completed++

		if res.err != nil {
			// One bad combination never aborts the sweep.
			log.Printf("optimize: job %s combination %v failed: %v", job.ID, res.params, res.err)
		} else if score, ok := metricValue(res.summary, job.Target); ok && !math.IsNaN(score) {
			if (lowerIsBetter && score < bestScore) || (!lowerIsBetter && score > bestScore) {
				bestScore = score
				cp := res
				best = &cp
			}
		}

		job.Progress = int(math.Round(float64(completed) / float64(len(combos)) * 100))
		job.UpdatedAt = time.Now().UTC()
		if progressLimit.Allow() {
			if err := r.store.UpdateJob(context.Background(), job); err != nil {
				log.Printf("optimize: job %s progress update failed: %v", job.ID, err)
			}
		}
		if r.bus != nil {
			r.bus.Publish(events.EventJobProgress, events.JobProgress{
				JobID:     job.ID,
				Completed: completed,
				Total:     len(combos),
				Progress:  job.Progress,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		// Cancelled: never publish a partial best.
		if ferr := r.failJob(context.Background(), job, err); ferr != nil {
			log.Printf("optimize: job %s: %v", job.ID, ferr)
		}
		return
	}

	job.Status = StatusCompleted
	job.Progress = 100
	job.UpdatedAt = time.Now().UTC()
	if best != nil {
		job.BestParameters = best.params
		job.BestSummary = best.summary
	} else {
		log.Printf("optimize: job %s completed with no scoreable combination", job.ID)
	}
	if err := r.store.UpdateJob(context.Background(), job); err != nil {
		log.Printf("optimize: job %s final update failed: %v", job.ID, err)
	}
	if r.bus != nil {
		r.bus.Publish(events.EventJobCompleted, events.JobDone{JobID: job.ID})
	}
}

// runCombination runs one backtest with the combination's overrides
// applied. Panics are converted to a combination error so the sweep
// continues.
func runCombination(graph *strategy.Graph, bars []market.Bar, params Assignment, opts backtest.Options) (res comboResult) {
	res.params = params
	defer func() {
		if r := recover(); r != nil {
			res.summary = nil
			res.err = fmt.Errorf("combination panic: %v", r)
		}
	}()

	engine, err := backtest.New(graph, bars, params.ToOverrides(), opts)
	if err != nil {
		res.err = err
		return
	}
	result, err := engine.Run()
	if err != nil {
		res.err = err
		return
	}
	res.summary = &result.Summary
	return
}

func (r *Runner) failJob(ctx context.Context, job *Job, cause error) error {
	job.Status = StatusFailed
	job.Error = cause.Error()
	job.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if r.bus != nil {
		r.bus.Publish(events.EventJobFailed, events.JobDone{JobID: job.ID, Error: job.Error})
	}
	return cause
}

// validTarget lists the summary metrics a sweep may optimize.
func validTarget(target string) bool {
	switch target {
	case "finalEquity", "totalReturnPercent", "annualReturn", "winRate",
		"profitFactor", "sharpeRatio", "maxDrawdown", "grossProfit":
		return true
	}
	return false
}

func metricValue(s *backtest.Summary, target string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch target {
	case "finalEquity":
		return s.FinalEquity, true
	case "totalReturnPercent":
		return s.TotalReturnPercent, true
	case "annualReturn":
		return s.AnnualReturn, true
	case "winRate":
		return s.WinRate, true
	case "profitFactor":
		return s.ProfitFactor, true
	case "sharpeRatio":
		return s.SharpeRatio, true
	case "maxDrawdown":
		return s.MaxDrawdown, true
	case "grossProfit":
		return s.GrossProfit, true
	}
	return 0, false
}
