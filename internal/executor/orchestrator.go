package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/packrat/internal/models"
)

// Logger defines the interface for logging orchestrator progress and results.
type Logger interface {
	LogJobStart(job models.Job)
	LogJobResult(result models.JobResult) error
	LogEntry(job models.Job, path string, skipped bool)
	LogProgress(completed []models.JobResult, total int)
	LogSummary(summary models.OperationSummary)
	LogWarn(message string)
}

// JobPool defines the behavior required to run a batch of jobs.
type JobPool interface {
	Run(ctx context.Context, jobs []models.Job) []models.JobResult
}

// workerCounter is implemented by pools that report their parallelism.
type workerCounter interface {
	Workers() int
}

// Recorder persists finished operations. Recording failures never change the
// outcome of an operation.
type Recorder interface {
	Record(ctx context.Context, summary models.OperationSummary) error
}

// Orchestrator coordinates job execution, handles graceful shutdown, and aggregates results.
type Orchestrator struct {
	pool     JobPool
	logger   Logger
	recorder Recorder
}

// NewOrchestrator creates a new Orchestrator instance.
// The logger parameter is optional and can be nil.
func NewOrchestrator(pool JobPool, logger Logger) *Orchestrator {
	if pool == nil {
		panic("job pool cannot be nil")
	}

	return &Orchestrator{
		pool:   pool,
		logger: logger,
	}
}

// SetRecorder enables operation history. nil disables it.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// Run executes jobs with graceful shutdown support. It handles SIGINT/SIGTERM
// by cancelling dispatch, aggregates results into an OperationSummary, logs
// it and records it. The error is an *OperationError when any job failed.
func (o *Orchestrator) Run(ctx context.Context, direction models.Direction, jobs []models.Job) (*models.OperationSummary, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no jobs to run")
	}

	// Set up context with cancellation for signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			if o.logger != nil {
				o.logger.LogWarn("Received interrupt signal, finishing in-flight entries and stopping...")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	startTime := time.Now()
	results := o.pool.Run(ctx, jobs)
	duration := time.Since(startTime)

	summary := aggregateResults(direction, results, duration)
	summary.ID = uuid.NewString()
	if wc, ok := o.pool.(workerCounter); ok {
		summary.Workers = wc.Workers()
	}

	if o.logger != nil {
		o.logger.LogSummary(*summary)
	}

	if o.recorder != nil {
		// Record even when interrupted; the parent context may already be done.
		if err := o.recorder.Record(context.WithoutCancel(ctx), *summary); err != nil && o.logger != nil {
			o.logger.LogWarn(fmt.Sprintf("Failed to record operation history: %v", err))
		}
	}

	if summary.OK() {
		return summary, nil
	}

	opErr := NewOperationError(summary.TotalJobs)
	for _, failure := range summary.Failures {
		var jobErr *JobError
		if !errors.As(failure.Err, &jobErr) {
			jobErr = NewJobError(failure.Job.ID, failure.Job.Name(), failure.Path, failure.Err)
		}
		opErr.AddJob(jobErr)
	}
	return summary, opErr
}

// aggregateResults processes job results and creates an OperationSummary.
func aggregateResults(direction models.Direction, results []models.JobResult, duration time.Duration) *models.OperationSummary {
	summary := &models.OperationSummary{
		Direction: direction,
		TotalJobs: len(results),
		Duration:  duration,
		Failures:  []models.JobResult{},
		Results:   results,
	}

	for _, result := range results {
		summary.Bytes += result.Bytes
		switch result.Status {
		case models.StatusSucceeded:
			summary.Succeeded++
		case models.StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, result)
		}
	}

	return summary
}
