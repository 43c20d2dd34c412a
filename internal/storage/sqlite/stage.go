package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/example/matrixci/internal/domain"
)

type stageRepo struct {
	tx *sql.Tx
}

func (r *stageRepo) Create(ctx context.Context, stage *domain.Stage) error {
	dependsJSON, err := json.Marshal(stage.DependsOn)
	if err != nil {
		return err
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO stages (run_id, name, ordinal, depends_on_json, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stage.RunID, stage.Name, stage.Ordinal, string(dependsJSON), stage.State,
		stage.CreatedAt, stage.UpdatedAt)
	return err
}

func (r *stageRepo) Get(ctx context.Context, runID, name string) (*domain.Stage, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT run_id, name, ordinal, depends_on_json, state, created_at, updated_at
		FROM stages WHERE run_id = ? AND name = ?
	`, runID, name)
	return scanStage(row)
}

func (r *stageRepo) Update(ctx context.Context, stage *domain.Stage) error {
	result, err := r.tx.ExecContext(ctx, `
		UPDATE stages SET state = ?, updated_at = ?
		WHERE run_id = ? AND name = ?
	`, stage.State, stage.UpdatedAt, stage.RunID, stage.Name)
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

func (r *stageRepo) ListByRun(ctx context.Context, runID string) ([]*domain.Stage, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT run_id, name, ordinal, depends_on_json, state, created_at, updated_at
		FROM stages WHERE run_id = ? ORDER BY ordinal
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*domain.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

func scanStage(row rowScanner) (*domain.Stage, error) {
	stage := &domain.Stage{}
	var dependsJSON string

	err := row.Scan(&stage.RunID, &stage.Name, &stage.Ordinal, &dependsJSON,
		&stage.State, &stage.CreatedAt, &stage.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if dependsJSON != "" {
		if err := json.Unmarshal([]byte(dependsJSON), &stage.DependsOn); err != nil {
			return nil, err
		}
	}
	return stage, nil
}
