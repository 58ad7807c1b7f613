package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/packrat/internal/models"
)

// fakeExecutor runs a per-job function and tracks concurrency.
type fakeExecutor struct {
	fn      func(ctx context.Context, job models.Job) models.JobResult
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (f *fakeExecutor) Execute(ctx context.Context, job models.Job) models.JobResult {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.fn != nil {
		return f.fn(ctx, job)
	}
	return models.JobResult{Status: models.StatusSucceeded}
}

func makeJobs(n int) []models.Job {
	jobs := make([]models.Job, n)
	for i := range jobs {
		jobs[i] = models.Job{ID: i + 1, Direction: models.Decode, Inputs: []string{"in"}, Output: "."}
	}
	return jobs
}

func TestPoolRunsEveryJobInOrder(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, job models.Job) models.JobResult {
		// Later jobs finish first.
		time.Sleep(time.Duration(10-job.ID) * time.Millisecond)
		return models.JobResult{Status: models.StatusSucceeded}
	}}
	logger := newMockLogger()
	pool := NewPool(exec, logger, 4)

	results := pool.Run(context.Background(), makeJobs(8))

	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, i+1, r.Job.ID, "results must keep job order")
		assert.Equal(t, models.StatusSucceeded, r.Status)
		assert.Positive(t, r.Duration)
	}
	assert.Equal(t, int32(8), exec.calls.Load())
	assert.LessOrEqual(t, exec.peak.Load(), int32(4))
	assert.Equal(t, 8, logger.count("start"))
	assert.Equal(t, 8, logger.count("result"))
	assert.Equal(t, 8, logger.count("progress"))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	release := make(chan struct{})
	exec := &fakeExecutor{fn: func(ctx context.Context, job models.Job) models.JobResult {
		<-release
		return models.JobResult{Status: models.StatusSucceeded}
	}}
	pool := NewPool(exec, nil, 2)

	done := make(chan []models.JobResult)
	go func() { done <- pool.Run(context.Background(), makeJobs(6)) }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), exec.running.Load())
	close(release)

	results := <-done
	assert.Len(t, results, 6)
	assert.Equal(t, int32(2), exec.peak.Load())
}

func TestPoolIsolatesFailures(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, job models.Job) models.JobResult {
		if job.ID == 2 {
			return models.JobResult{Status: models.StatusFailed, Err: errors.New("corrupt")}
		}
		return models.JobResult{Status: models.StatusSucceeded}
	}}
	pool := NewPool(exec, nil, 1)

	results := pool.Run(context.Background(), makeJobs(3))

	assert.Equal(t, models.StatusSucceeded, results[0].Status)
	assert.Equal(t, models.StatusFailed, results[1].Status)
	assert.Equal(t, models.StatusSucceeded, results[2].Status)
}

func TestPoolCancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{fn: func(ctx context.Context, job models.Job) models.JobResult {
		if job.ID == 1 {
			cancel()
		}
		return models.JobResult{Status: models.StatusSucceeded}
	}}
	pool := NewPool(exec, newMockLogger(), 1)

	results := pool.Run(ctx, makeJobs(5))

	require.Len(t, results, 5)
	assert.Equal(t, models.StatusSucceeded, results[0].Status)
	assert.Less(t, exec.calls.Load(), int32(5), "dispatch should stop after cancellation")
	canceled := 0
	for _, r := range results[1:] {
		if r.Status == models.StatusFailed {
			assert.ErrorIs(t, r.Err, context.Canceled)
			assert.ErrorIs(t, r.Err, ErrCanceled)
			canceled++
		}
	}
	assert.Positive(t, canceled)
}

func TestPoolPreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &fakeExecutor{}
	pool := NewPool(exec, nil, 4)

	results := pool.Run(ctx, makeJobs(3))

	assert.Zero(t, exec.calls.Load())
	for _, r := range results {
		assert.Equal(t, models.StatusFailed, r.Status)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestNewPoolDefaults(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, nil, 0)
	assert.Positive(t, pool.Workers())
	assert.Empty(t, pool.Run(context.Background(), nil))
}

// mockLogger records calls for assertions.
type mockLogger struct {
	mu        sync.Mutex
	calls     map[string]int
	entries   []string
	summaries []models.OperationSummary
	warnings  []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{calls: make(map[string]int)}
}

func (m *mockLogger) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

func (m *mockLogger) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockLogger) LogJobStart(job models.Job) { m.record("start") }

func (m *mockLogger) LogJobResult(result models.JobResult) error {
	m.record("result")
	return nil
}

func (m *mockLogger) LogEntry(job models.Job, path string, skipped bool) {
	m.record("entry")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, path)
}

func (m *mockLogger) LogProgress(completed []models.JobResult, total int) { m.record("progress") }

func (m *mockLogger) LogSummary(summary models.OperationSummary) {
	m.record("summary")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
}

func (m *mockLogger) LogWarn(message string) {
	m.record("warn")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, message)
}
