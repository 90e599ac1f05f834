package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// RunRepository implements contracts.RunRepository. A partial unique
// index on (job_name) WHERE status = 'RUNNING' makes TryStart the
// single-flight primitive: two concurrent triggers race on the index and
// exactly one insert wins.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// TryStart atomically inserts a RUNNING record, rejecting the trigger
// when the job already has an in-flight run.
func (r *RunRepository) TryStart(ctx context.Context, rec *contracts.RunRecord) error {
	query := `
		INSERT INTO ops.runs (run_id, job_name, started_at, status, step_statuses)
		VALUES ($1, $2, $3, 'RUNNING', '{}'::jsonb)
		ON CONFLICT (job_name) WHERE status = 'RUNNING' DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, rec.RunID, rec.JobName, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrRunInProgress
	}

	rec.Status = contracts.RunRunning
	return nil
}

// Finish transitions a run to its terminal status
func (r *RunRepository) Finish(ctx context.Context, rec *contracts.RunRecord) error {
	steps, err := json.Marshal(rec.StepStatuses)
	if err != nil {
		return fmt.Errorf("marshal step statuses: %w", err)
	}

	finished := time.Now()
	if rec.FinishedAt != nil {
		finished = *rec.FinishedAt
	}

	query := `
		UPDATE ops.runs
		SET finished_at = $2, status = $3, step_statuses = $4
		WHERE run_id = $1
	`

	_, err = r.pool.Exec(ctx, query, rec.RunID, finished, string(rec.Status), steps)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	rec.FinishedAt = &finished
	return nil
}

// LastSuccess returns the most recent SUCCESS or PARTIAL run of a job
func (r *RunRepository) LastSuccess(ctx context.Context, jobName string) (*contracts.RunRecord, error) {
	query := `
		SELECT run_id, job_name, started_at, finished_at, status, step_statuses
		FROM ops.runs
		WHERE job_name = $1 AND status IN ('SUCCESS', 'PARTIAL')
		ORDER BY started_at DESC
		LIMIT 1
	`

	return r.queryOne(ctx, query, jobName)
}

// History returns the most recent runs of a job, newest first
func (r *RunRepository) History(ctx context.Context, jobName string, limit int) ([]contracts.RunRecord, error) {
	query := `
		SELECT run_id, job_name, started_at, finished_at, status, step_statuses
		FROM ops.runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, jobName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []contracts.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// ConsecutiveFailures counts FAILED runs since the last non-FAILED run
func (r *RunRepository) ConsecutiveFailures(ctx context.Context, jobName string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ops.runs
		WHERE job_name = $1
			AND status = 'FAILED'
			AND started_at > COALESCE((
				SELECT MAX(started_at) FROM ops.runs
				WHERE job_name = $1 AND status NOT IN ('FAILED', 'RUNNING')
			), '-infinity'::timestamptz)
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, jobName).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RunRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*contracts.RunRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, contracts.ErrNotFound
	}
	return scanRun(rows)
}

func scanRun(rows pgx.Rows) (*contracts.RunRecord, error) {
	var rec contracts.RunRecord
	var status string
	var stepsJSON []byte

	if err := rows.Scan(&rec.RunID, &rec.JobName, &rec.StartedAt, &rec.FinishedAt, &status, &stepsJSON); err != nil {
		return nil, err
	}

	rec.Status = contracts.RunStatus(status)
	rec.StepStatuses = make(map[string]contracts.StepStatus)
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &rec.StepStatuses); err != nil {
			return nil, fmt.Errorf("unmarshal step statuses: %w", err)
		}
	}
	return &rec, nil
}
