package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// JobRepository persists pollable job status.
type JobRepository struct {
	db sqlx.ExtContext
}

func NewJobRepository(db sqlx.ExtContext) *JobRepository {
	return &JobRepository{db: db}
}

type jobRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	State     string    `db:"state"`
	Progress  float64   `db:"progress"`
	Error     string    `db:"error"`
	Result    []byte    `db:"result"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *JobRepository) SaveJobStatus(ctx context.Context, status domain.JobStatus) error {
	var result any
	if len(status.Result) > 0 {
		result = []byte(status.Result)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, state, progress, error, result, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE
SET state = EXCLUDED.state,
	progress = EXCLUDED.progress,
	error = EXCLUDED.error,
	result = COALESCE(EXCLUDED.result, jobs.result),
	updated_at = EXCLUDED.updated_at
`,
		status.ID, string(status.Kind), string(status.State), status.Progress, status.Error, result,
		status.CreatedAt, status.UpdatedAt,
	)
	return mapError("save job status", err)
}

func (r *JobRepository) GetJobStatus(ctx context.Context, id string) (*domain.JobStatus, error) {
	var row jobRow
	err := sqlx.GetContext(ctx, r.db, &row, `
SELECT id, kind, state, progress, error, result, created_at, updated_at
FROM jobs
WHERE id = $1
`, id)
	if err != nil {
		return nil, mapError("get job status", err)
	}
	return &domain.JobStatus{
		ID:        row.ID,
		Kind:      domain.JobKind(row.Kind),
		State:     domain.JobState(row.State),
		Progress:  row.Progress,
		Error:     row.Error,
		Result:    row.Result,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
