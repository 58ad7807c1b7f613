package executor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/harrison/packrat/internal/models"
)

// JobExecutor defines the behavior required to execute individual jobs.
// Execute never returns an error: failures are captured in the result.
type JobExecutor interface {
	Execute(ctx context.Context, job models.Job) models.JobResult
}

// Pool runs jobs on a fixed number of workers.
type Pool struct {
	executor JobExecutor
	logger   Logger
	workers  int
}

// NewPool constructs a Pool. workers <= 0 selects runtime.NumCPU().
// The logger parameter is optional and can be nil to disable logging.
func NewPool(executor JobExecutor, logger Logger, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		executor: executor,
		logger:   logger,
		workers:  workers,
	}
}

// Workers returns the configured parallelism.
func (p *Pool) Workers() int {
	return p.workers
}

type jobExecutionResult struct {
	index  int
	result models.JobResult
}

// Run executes every job and returns one result per job in job order. A
// failing job never stops its siblings; cancellation stops dispatch and the
// jobs that never started are reported as failed with context.Canceled.
func (p *Pool) Run(ctx context.Context, jobs []models.Job) []models.JobResult {
	if len(jobs) == 0 {
		return []models.JobResult{}
	}

	maxConcurrency := p.workers
	if maxConcurrency > len(jobs) {
		maxConcurrency = len(jobs)
	}

	semaphore := make(chan struct{}, maxConcurrency)
	// Buffered for every job so workers never block on delivery.
	resultsCh := make(chan jobExecutionResult, len(jobs))

	var wg sync.WaitGroup

dispatch:
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		// Check context again before acquiring semaphore to avoid blocking on a cancelled context
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}

		wg.Add(1)

		go func(index int, job models.Job) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if p.logger != nil {
				p.logger.LogJobStart(job)
			}
			start := time.Now()
			result := p.executor.Execute(ctx, job)
			result.Job = job
			if result.Duration == 0 {
				result.Duration = time.Since(start)
			}
			resultsCh <- jobExecutionResult{index: index, result: result}
		}(i, job)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make([]models.JobResult, len(jobs))
	done := make([]bool, len(jobs))
	var completed []models.JobResult

	for r := range resultsCh {
		results[r.index] = r.result
		done[r.index] = true
		completed = append(completed, r.result)

		if p.logger != nil {
			p.logger.LogJobResult(r.result)
			p.logger.LogProgress(completed, len(jobs))
		}
	}

	// Jobs that were never dispatched
	for i, job := range jobs {
		if done[i] {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		results[i] = models.JobResult{
			Job:    job,
			Status: models.StatusFailed,
			Err:    NewJobError(job.ID, job.Name(), "", err),
		}
		if p.logger != nil {
			p.logger.LogJobResult(results[i])
		}
	}

	return results
}
