package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/matrixci/internal/domain"
)

type stepRepo struct {
	tx *sql.Tx
}

func (r *stepRepo) Create(ctx context.Context, step *domain.Step) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO steps (job_id, idx, phase, command, exit_code, timed_out, output, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, step.JobID, step.Idx, string(step.Phase), step.Command, step.ExitCode, step.TimedOut,
		step.Output, step.StartedAt, step.FinishedAt)
	return err
}

func (r *stepRepo) ListByJob(ctx context.Context, jobID string) ([]*domain.Step, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT job_id, idx, phase, command, exit_code, timed_out, output, started_at, finished_at
		FROM steps WHERE job_id = ? ORDER BY idx
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*domain.Step
	for rows.Next() {
		step := &domain.Step{}
		var phase string
		err := rows.Scan(&step.JobID, &step.Idx, &phase, &step.Command, &step.ExitCode,
			&step.TimedOut, &step.Output, &step.StartedAt, &step.FinishedAt)
		if err != nil {
			return nil, err
		}
		step.Phase = domain.Phase(phase)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
