package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/storage"
)

type jobRepo struct {
	tx *sql.Tx
}

const jobColumns = `id, run_id, stage, name, env_json, allow_failure, state,
	failure_message, failure_at, created_at, updated_at, started_at, finished_at, version`

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	envJSON, err := json.Marshal(job.Env)
	if err != nil {
		return err
	}

	var failureMessage sql.NullString
	var failureAt sql.NullTime
	if job.Failure != nil {
		failureMessage = sql.NullString{String: job.Failure.Message, Valid: true}
		failureAt = sql.NullTime{Time: job.Failure.OccurredAt, Valid: true}
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.RunID, job.Stage, job.Name, string(envJSON), job.AllowFailure, job.State,
		failureMessage, failureAt, job.CreatedAt, job.UpdatedAt,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), job.Version)
	return err
}

func (r *jobRepo) Get(ctx context.Context, runID, jobID string) (*domain.Job, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE run_id = ? AND id = ?
	`, runID, jobID)
	return scanJob(row)
}

func (r *jobRepo) Update(ctx context.Context, job *domain.Job) error {
	var failureMessage sql.NullString
	var failureAt sql.NullTime
	if job.Failure != nil {
		failureMessage = sql.NullString{String: job.Failure.Message, Valid: true}
		failureAt = sql.NullTime{Time: job.Failure.OccurredAt, Valid: true}
	}

	result, err := r.tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, failure_message = ?, failure_at = ?, updated_at = ?,
			started_at = ?, finished_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, job.State, failureMessage, failureAt, job.UpdatedAt,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), job.ID, job.Version)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConcurrentModify
	}

	job.Version++
	return nil
}

func (r *jobRepo) ListByRun(ctx context.Context, runID string, opts storage.ListOptions) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE run_id = ?`
	args := []any{runID}

	if len(opts.JobStates) > 0 {
		placeholders := make([]string, len(opts.JobStates))
		for i, state := range opts.JobStates {
			placeholders[i] = "?"
			args = append(args, state)
		}
		query += fmt.Sprintf(" AND state IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY created_at, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	return r.queryJobs(ctx, query, args...)
}

func (r *jobRepo) ListByStage(ctx context.Context, runID, stage string) ([]*domain.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE run_id = ? AND stage = ? ORDER BY created_at, id
	`, runID, stage)
}

func (r *jobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	job := &domain.Job{}
	var envJSON string
	var failureMessage sql.NullString
	var failureAt, startedAt, finishedAt sql.NullTime

	err := row.Scan(&job.ID, &job.RunID, &job.Stage, &job.Name, &envJSON, &job.AllowFailure,
		&job.State, &failureMessage, &failureAt, &job.CreatedAt, &job.UpdatedAt,
		&startedAt, &finishedAt, &job.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if envJSON != "" {
		if err := json.Unmarshal([]byte(envJSON), &job.Env); err != nil {
			return nil, err
		}
	}
	if failureMessage.Valid {
		job.Failure = &domain.Failure{Message: failureMessage.String}
		if failureAt.Valid {
			job.Failure.OccurredAt = failureAt.Time
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return job, nil
}
