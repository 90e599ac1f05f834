package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// ValidationRepository implements contracts.ValidationRepository.
// Findings are an append-only audit trail; re-saving a report for the
// same run replaces its findings rather than duplicating them.
type ValidationRepository struct {
	pool *pgxpool.Pool
}

// NewValidationRepository creates a new validation repository
func NewValidationRepository(pool *pgxpool.Pool) *ValidationRepository {
	return &ValidationRepository{pool: pool}
}

// SaveReport persists all findings of one validator pass
func (r *ValidationRepository) SaveReport(ctx context.Context, report *contracts.ValidationReport) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin validation save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM ops.validation_results WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("clear previous findings: %w", err)
	}

	query := `
		INSERT INTO ops.validation_results (run_id, as_of, check_name, severity, detail, metric, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for i, res := range report.Results {
		if _, err := tx.Exec(ctx, query,
			report.RunID, report.AsOf, res.CheckName, string(res.Severity), res.Detail, res.Metric, i,
		); err != nil {
			return fmt.Errorf("save finding %s: %w", res.CheckName, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByRunID returns the ordered findings of one run
func (r *ValidationRepository) GetByRunID(ctx context.Context, runID string) ([]contracts.ValidationResult, error) {
	query := `
		SELECT run_id, check_name, severity, detail, metric
		FROM ops.validation_results
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []contracts.ValidationResult
	for rows.Next() {
		var res contracts.ValidationResult
		var severity string
		if err := rows.Scan(&res.RunID, &res.CheckName, &severity, &res.Detail, &res.Metric); err != nil {
			return nil, err
		}
		res.Severity = contracts.Severity(severity)
		results = append(results, res)
	}
	return results, rows.Err()
}
