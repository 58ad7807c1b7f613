package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with operations and job_results",
		SQL: `
CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    direction TEXT NOT NULL,
    total_jobs INTEGER NOT NULL,
    succeeded INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    bytes INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS job_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_id TEXT NOT NULL,
    job_id INTEGER NOT NULL,
    inputs TEXT NOT NULL,
    output TEXT NOT NULL,
    status TEXT NOT NULL,
    error_message TEXT,
    path TEXT,
    written INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    FOREIGN KEY (operation_id) REFERENCES operations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_job_results_operation ON job_results(operation_id);
`,
	},
	{
		Version:     2,
		Description: "Index operations by time for history listings",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_operations_recorded_at ON operations(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_job_results_status ON job_results(status);
`,
	},
}

// MigrationVersion represents a record of an applied migration
type MigrationVersion struct {
	Version   int
	AppliedAt time.Time
}

// ApplyMigrations applies all pending migrations to the database inside one
// transaction so concurrent openers of the same file serialize.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin exclusive transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	applied, err := appliedVersionsTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, migration.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func appliedVersionsTx(ctx context.Context, tx *sql.Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return applied, nil
}

// GetAppliedVersions returns every applied migration in version order.
func (s *Store) GetAppliedVersions() ([]*MigrationVersion, error) {
	rows, err := s.db.Query(`SELECT version, applied_at FROM schema_version ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()

	var versions []*MigrationVersion
	for rows.Next() {
		v := &MigrationVersion{}
		if err := rows.Scan(&v.Version, &v.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// GetLatestVersion returns the latest applied migration version
func (s *Store) GetLatestVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query latest version: %w", err)
	}
	return version, nil
}
