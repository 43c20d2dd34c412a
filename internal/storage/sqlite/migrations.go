package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// migrations apply in order, one transaction per version. Append-only:
// never edit an entry that has shipped.
var migrations = [][]string{
	// v1: initial schema.
	{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			branch TEXT,
			commit_sha TEXT,
			state INTEGER NOT NULL DEFAULT 10,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			finished_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS stages (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			depends_on_json TEXT,
			state INTEGER NOT NULL DEFAULT 10,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, name),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			name TEXT NOT NULL,
			env_json TEXT,
			allow_failure BOOLEAN NOT NULL DEFAULT FALSE,
			state INTEGER NOT NULL DEFAULT 10,
			failure_message TEXT,
			failure_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			finished_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (run_id, stage) REFERENCES stages(run_id, name) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS steps (
			job_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			phase TEXT NOT NULL,
			command TEXT NOT NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			timed_out BOOLEAN NOT NULL DEFAULT FALSE,
			output TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			PRIMARY KEY (job_id, idx),
			FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_stages_run ON stages(run_id, ordinal)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_run ON jobs(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs(run_id, stage)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(run_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_job ON steps(job_id, idx)`,
	},
}

// Migrate brings the database up to the latest schema version. Each
// pending version applies in its own transaction and bumps the
// schema_version row, so a crashed migration never leaves a half-applied
// version marked as done.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for v := current; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := applyMigration(ctx, tx, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
	}

	return nil
}

func applyMigration(ctx context.Context, tx *sql.Tx, v int) error {
	for _, stmt := range migrations[v] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, v+1)
	return err
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
