package optics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/star/aperture/internal/metrics"
)

// sampleJob is one frequency to integrate.
type sampleJob struct {
	index     int
	frequency float64
}

// sampleResult is the output of a single integral.
type sampleResult struct {
	index int
	value float64
	err   error
}

// workerPool runs independent per-frequency integrals on a fixed number of goroutines.
type workerPool struct {
	workers int
	logger  *slog.Logger
}

func newWorkerPool(workers int, logger *slog.Logger) *workerPool {
	if workers < 1 {
		workers = 1
	}
	return &workerPool{
		workers: workers,
		logger:  logger,
	}
}

// integrate evaluates fn at every frequency and returns the values in input
// order. The first failure cancels outstanding work; the error returned is the
// one for the lowest failing index.
func (wp *workerPool) integrate(ctx context.Context, freqs []float64, fn func(float64) (float64, error)) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(freqs) == 0 {
		return []float64{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := wp.workers
	if workers > len(freqs) {
		workers = len(freqs)
	}

	jobs := make(chan sampleJob, workers*2)
	results := make(chan sampleResult, workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				value, err := fn(job.frequency)
				select {
				case results <- sampleResult{index: job.index, value: value, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, f := range freqs {
			select {
			case jobs <- sampleJob{index: i, frequency: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]float64, len(freqs))
	var (
		firstErr   error
		firstIndex = len(freqs)
		done       int
	)
	for result := range results {
		if result.err != nil {
			metrics.IncIntegrationFailures()
			wp.logger.Warn("psf integration failed",
				"frequency", freqs[result.index],
				"error", result.err,
			)
			if result.index < firstIndex {
				firstErr, firstIndex = result.err, result.index
			}
			cancel()
			continue
		}
		out[result.index] = result.value
		done++
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if done < len(freqs) {
		// Only cancellation of the caller's context leaves samples unfinished.
		return nil, context.Cause(ctx)
	}
	return out, nil
}
