// Package history persists finished operations in a SQLite database so past
// runs can be listed and inspected.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/packrat/internal/models"
)

// ErrNotFound is returned by Get for an unknown operation ID.
var ErrNotFound = errors.New("operation not found")

// Operation is one recorded invocation.
type Operation struct {
	ID         string
	Direction  string
	TotalJobs  int
	Succeeded  int
	Failed     int
	Skipped    int
	Bytes      int64
	Duration   time.Duration
	RecordedAt time.Time
	Jobs       []JobRecord // Filled by Get only
}

// JobRecord is the persisted outcome of one job.
type JobRecord struct {
	JobID    int
	Inputs   []string
	Output   string
	Status   string
	Error    string
	Path     string
	Written  int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}

// Store manages the SQLite history database
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		// Ensure parent directory exists for file-based databases
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Connection-scoped settings go in the DSN so every pooled connection
	// gets them, not just the one running the pragmas below.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// Record stores summary and all of its job results in one transaction.
func (s *Store) Record(ctx context.Context, summary models.OperationSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO operations
		(id, direction, total_jobs, succeeded, failed, skipped, bytes, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.Direction.String(), summary.TotalJobs, summary.Succeeded,
		summary.Failed, summary.Skipped, summary.Bytes, summary.Duration.Milliseconds(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO job_results
		(operation_id, job_id, inputs, output, status, error_message, path, written, skipped, bytes, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare job insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Results {
		inputs, err := json.Marshal(r.Job.Inputs)
		if err != nil {
			return fmt.Errorf("marshal inputs: %w", err)
		}
		var message string
		if r.Err != nil {
			message = r.Err.Error()
		}
		_, err = stmt.ExecContext(ctx, summary.ID, r.Job.ID, string(inputs), r.Job.Output, r.Status,
			message, r.Path, len(r.Written), len(r.Skipped), r.Bytes, r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert job %d: %w", r.Job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit operation: %w", err)
	}
	return nil
}

const operationColumns = `id, direction, total_jobs, succeeded, failed, skipped, bytes, duration_ms, recorded_at`

// List returns the most recent operations, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]*Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations ORDER BY recorded_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// Get returns one operation with its job records in job order.
func (s *Store) Get(ctx context.Context, id string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT job_id, inputs, output, status, error_message, path,
		written, skipped, bytes, duration_ms FROM job_results WHERE operation_id = ? ORDER BY job_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query job results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec        JobRecord
			inputs     string
			message    sql.NullString
			path       sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&rec.JobID, &inputs, &rec.Output, &rec.Status, &message, &path,
			&rec.Written, &rec.Skipped, &rec.Bytes, &durationMS); err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}
		if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
		rec.Error = message.String
		rec.Path = path.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		op.Jobs = append(op.Jobs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job results: %w", err)
	}
	return op, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (*Operation, error) {
	op := &Operation{}
	var durationMS int64
	err := row.Scan(&op.ID, &op.Direction, &op.TotalJobs, &op.Succeeded, &op.Failed,
		&op.Skipped, &op.Bytes, &durationMS, &op.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	op.Duration = time.Duration(durationMS) * time.Millisecond
	return op, nil
}
