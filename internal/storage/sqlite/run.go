package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/storage"
)

type runRepo struct {
	tx *sql.Tx
}

func (r *runRepo) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, branch, commit_sha, state, created_at, updated_at, started_at, finished_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Pipeline, run.Branch, run.CommitSHA, run.State,
		run.CreatedAt, run.UpdatedAt, nullTime(run.StartedAt), nullTime(run.FinishedAt), run.Version)
	return err
}

func (r *runRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, pipeline, branch, commit_sha, state, created_at, updated_at, started_at, finished_at, version
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

func (r *runRepo) Update(ctx context.Context, run *domain.Run) error {
	result, err := r.tx.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, updated_at = ?, started_at = ?, finished_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, run.State, run.UpdatedAt, nullTime(run.StartedAt), nullTime(run.FinishedAt), run.ID, run.Version)
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

	run.Version++
	return nil
}

func (r *runRepo) List(ctx context.Context, opts storage.ListOptions) ([]*domain.Run, error) {
	query := `
		SELECT id, pipeline, branch, commit_sha, state, created_at, updated_at, started_at, finished_at, version
		FROM runs`
	var args []any

	if len(opts.RunStates) > 0 {
		placeholders := make([]string, len(opts.RunStates))
		for i, state := range opts.RunStates {
			placeholders[i] = "?"
			args = append(args, state)
		}
		query += fmt.Sprintf(" WHERE state IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	result, err := r.tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	run := &domain.Run{}
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Pipeline, &run.Branch, &run.CommitSHA, &run.State,
		&run.CreatedAt, &run.UpdatedAt, &startedAt, &finishedAt, &run.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
