package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerPool runs independent propagations on a fixed number of goroutines.
// Each Job only reads its own immutable propagator, so no state is shared
// between workers.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
// Fewer than two workers runs batches inline on the caller's goroutine.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the configured pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// PropagateBatch propagates every job to the same instant. Outcomes are
// returned in job order, failures included. Jobs not started before ctx is
// cancelled report ctx.Err().
func (wp *WorkerPool) PropagateBatch(ctx context.Context, jobs []Job, t time.Time) []Outcome {
	if len(jobs) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(jobs))
	done := make([]bool, len(jobs))

	if wp.workers == 1 || len(jobs) == 1 {
		for i, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = propagateSingle(job, t)
			done[i] = true
		}
		return wp.finish(ctx, jobs, outcomes, done)
	}

	indices := make(chan int, wp.workers*2)

	var wg sync.WaitGroup
	for w := 0; w < wp.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = propagateSingle(jobs[i], t)
				done[i] = true
			}
		}()
	}

	// Feed jobs until done or cancelled.
feed:
	for i := range jobs {
		select {
		case indices <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indices)
	wg.Wait()

	return wp.finish(ctx, jobs, outcomes, done)
}

func (wp *WorkerPool) finish(ctx context.Context, jobs []Job, outcomes []Outcome, done []bool) []Outcome {
	var failed, skipped int
	for i := range outcomes {
		if !done[i] {
			outcomes[i] = Outcome{Key: jobs[i].Key, Err: ctx.Err()}
			skipped++
			continue
		}
		if outcomes[i].Err != nil {
			failed++
			wp.logger.Debug("propagation failed",
				"catalog_number", outcomes[i].Key,
				"error", outcomes[i].Err,
			)
		}
	}
	if skipped > 0 {
		wp.logger.Warn("propagation batch cancelled", "skipped", skipped, "total", len(jobs))
	}
	wp.logger.Debug("propagation batch complete",
		"jobs", len(jobs),
		"failed", failed,
		"workers", wp.workers,
	)
	return outcomes
}

func propagateSingle(job Job, t time.Time) Outcome {
	res, err := job.Propagator.Propagate(t)
	return Outcome{Key: job.Key, Result: res, Err: err}
}
