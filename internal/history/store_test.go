package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/packrat/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSummary(id string) models.OperationSummary {
	ok := models.JobResult{
		Job:      models.Job{ID: 1, Direction: models.Decode, Inputs: []string{"/in/a.tar.gz"}, Output: "/out", OutputIsDir: true},
		Status:   models.StatusSucceeded,
		Written:  []string{"/out/a/x", "/out/a/y"},
		Bytes:    2048,
		Duration: 1500 * time.Millisecond,
	}
	failed := models.JobResult{
		Job:      models.Job{ID: 2, Direction: models.Decode, Inputs: []string{"/in/b.zip"}, Output: "/out", OutputIsDir: true},
		Status:   models.StatusFailed,
		Err:      errors.New("codec error: truncated"),
		Path:     "/in/b.zip",
		Skipped:  []string{"/out/b/z"},
		Duration: 20 * time.Millisecond,
	}
	return models.OperationSummary{
		ID:        id,
		Direction: models.Decode,
		TotalJobs: 2,
		Succeeded: 1,
		Failed:    1,
		Bytes:     2048,
		Duration:  2 * time.Second,
		Failures:  []models.JobResult{failed},
		Results:   []models.JobResult{ok, failed},
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		dbPath  string
		wantErr bool
	}{
		{
			name:   "creates database successfully",
			dbPath: filepath.Join(t.TempDir(), "history.db"),
		},
		{
			name:   "handles in-memory database",
			dbPath: ":memory:",
		},
		{
			name:   "creates parent directories if needed",
			dbPath: filepath.Join(t.TempDir(), "nested", "dir", "history.db"),
		},
		{
			name:    "returns error for unwritable path",
			dbPath:  "/proc/packrat/history.db",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.dbPath)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()

			version, err := store.GetLatestVersion()
			require.NoError(t, err)
			assert.Equal(t, len(migrations), version)
			assert.Equal(t, tt.dbPath, store.Path())
		})
	}
}

func TestSchemaIdempotency(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	for i := 0; i < 3; i++ {
		store, err := NewStore(dbPath)
		require.NoError(t, err)
		versions, err := store.GetAppliedVersions()
		require.NoError(t, err)
		assert.Len(t, versions, len(migrations))
		require.NoError(t, store.Close())
	}
}

func TestConcurrentInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := NewStore(dbPath)
			if err != nil {
				errs <- err
				return
			}
			errs <- store.Close()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleSummary("op-1")))

	op, err := store.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "decompress", op.Direction)
	assert.Equal(t, 2, op.TotalJobs)
	assert.Equal(t, 1, op.Succeeded)
	assert.Equal(t, 1, op.Failed)
	assert.Equal(t, int64(2048), op.Bytes)
	assert.Equal(t, 2*time.Second, op.Duration)
	assert.False(t, op.RecordedAt.IsZero())

	require.Len(t, op.Jobs, 2)
	assert.Equal(t, JobRecord{
		JobID:    1,
		Inputs:   []string{"/in/a.tar.gz"},
		Output:   "/out",
		Status:   models.StatusSucceeded,
		Written:  2,
		Bytes:    2048,
		Duration: 1500 * time.Millisecond,
	}, op.Jobs[0])
	assert.Equal(t, "codec error: truncated", op.Jobs[1].Error)
	assert.Equal(t, "/in/b.zip", op.Jobs[1].Path)
	assert.Equal(t, 1, op.Jobs[1].Skipped)
}

func TestRecordDuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleSummary("op-1")))
	require.Error(t, store.Record(ctx, sampleSummary("op-1")))

	// The failed transaction must not leave extra job rows behind.
	op, err := store.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Len(t, op.Jobs, 2)
}

func TestGetUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		require.NoError(t, store.Record(ctx, sampleSummary(fmt.Sprintf("op-%d", i))))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 0, want: []string{"op-4", "op-3", "op-2", "op-1", "op-0"}},
		{name: "limited", limit: 2, want: []string{"op-4", "op-3"}},
		{name: "limit beyond count", limit: 10, want: []string{"op-4", "op-3", "op-2", "op-1", "op-0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := store.List(ctx, tt.limit)
			require.NoError(t, err)
			var ids []string
			for _, op := range ops {
				ids = append(ids, op.ID)
				assert.Nil(t, op.Jobs, "List does not load jobs")
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListEmpty(t *testing.T) {
	store := newTestStore(t)
	ops, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestRecordConcurrent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Record(context.Background(), sampleSummary(fmt.Sprintf("op-%d", i))))
		}(i)
	}
	wg.Wait()

	ops, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, ops, 10)
}
