package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// PerformanceRepository implements contracts.PerformanceRepository
type PerformanceRepository struct {
	pool *pgxpool.Pool
}

// NewPerformanceRepository creates a new performance repository
func NewPerformanceRepository(pool *pgxpool.Pool) *PerformanceRepository {
	return &PerformanceRepository{pool: pool}
}

// Upsert writes one metrics row per (model, horizon, evaluation date)
func (r *PerformanceRepository) Upsert(ctx context.Context, rec *contracts.PerformanceRecord) error {
	query := `
		INSERT INTO forecast.performance
			(model_name, horizon_days, evaluation_date, mae, rmse, mape, directional_accuracy, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (model_name, horizon_days, evaluation_date) DO UPDATE SET
			mae = EXCLUDED.mae,
			rmse = EXCLUDED.rmse,
			mape = EXCLUDED.mape,
			directional_accuracy = EXCLUDED.directional_accuracy,
			sample_count = EXCLUDED.sample_count
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ModelName, rec.HorizonDays, rec.EvaluationDate,
		rec.MAE, rec.RMSE, rec.MAPE, rec.DirectionalAccuracy, rec.SampleCount,
	)
	return err
}

// GetByDate returns all performance rows for an evaluation date
func (r *PerformanceRepository) GetByDate(ctx context.Context, date time.Time) ([]contracts.PerformanceRecord, error) {
	query := `
		SELECT model_name, horizon_days, evaluation_date, mae, rmse, mape, directional_accuracy, sample_count
		FROM forecast.performance
		WHERE evaluation_date = $1
		ORDER BY model_name ASC, horizon_days ASC
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []contracts.PerformanceRecord
	for rows.Next() {
		var p contracts.PerformanceRecord
		if err := rows.Scan(
			&p.ModelName, &p.HorizonDays, &p.EvaluationDate,
			&p.MAE, &p.RMSE, &p.MAPE, &p.DirectionalAccuracy, &p.SampleCount,
		); err != nil {
			return nil, err
		}
		recs = append(recs, p)
	}
	return recs, rows.Err()
}

// Previous returns the most recent row for (model, horizon) before a date
func (r *PerformanceRepository) Previous(ctx context.Context, modelName string, horizonDays int, before time.Time) (*contracts.PerformanceRecord, error) {
	query := `
		SELECT model_name, horizon_days, evaluation_date, mae, rmse, mape, directional_accuracy, sample_count
		FROM forecast.performance
		WHERE model_name = $1 AND horizon_days = $2 AND evaluation_date < $3
		ORDER BY evaluation_date DESC
		LIMIT 1
	`

	var p contracts.PerformanceRecord
	err := r.pool.QueryRow(ctx, query, modelName, horizonDays, before).Scan(
		&p.ModelName, &p.HorizonDays, &p.EvaluationDate,
		&p.MAE, &p.RMSE, &p.MAPE, &p.DirectionalAccuracy, &p.SampleCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
