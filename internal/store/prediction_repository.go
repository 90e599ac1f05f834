package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// PredictionRepository implements contracts.PredictionRepository
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(pool *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// Upsert writes a forecast. Re-running a prediction for the same
// (prediction_date, target_date, model) replaces the predicted price but
// leaves any attached actual untouched.
func (r *PredictionRepository) Upsert(ctx context.Context, rec *contracts.PredictionRecord) error {
	query := `
		INSERT INTO forecast.predictions
			(prediction_date, target_date, model_name, horizon_days, predicted_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prediction_date, target_date, model_name) DO UPDATE SET
			horizon_days = EXCLUDED.horizon_days,
			predicted_price = EXCLUDED.predicted_price
	`

	_, err := r.pool.Exec(ctx, query,
		rec.PredictionDate, rec.TargetDate, rec.ModelName, rec.HorizonDays, rec.PredictedPrice,
	)
	return err
}

// GetUnreconciled returns predictions still awaiting a realized price
func (r *PredictionRepository) GetUnreconciled(ctx context.Context, before time.Time) ([]contracts.PredictionRecord, error) {
	query := `
		SELECT prediction_date, target_date, model_name, horizon_days, predicted_price,
			actual_price, prediction_error, abs_pct_error
		FROM forecast.predictions
		WHERE target_date <= $1 AND actual_price IS NULL
		ORDER BY target_date ASC, model_name ASC
	`

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// SetActual attaches the realized price and error metrics to one prediction
func (r *PredictionRepository) SetActual(ctx context.Context, predictionDate, targetDate time.Time, modelName string,
	actual, signedErr, absPctErr float64) error {
	query := `
		UPDATE forecast.predictions
		SET actual_price = $4, prediction_error = $5, abs_pct_error = $6
		WHERE prediction_date = $1 AND target_date = $2 AND model_name = $3
	`

	_, err := r.pool.Exec(ctx, query, predictionDate, targetDate, modelName, actual, signedErr, absPctErr)
	return err
}

// GetReconciled returns reconciled predictions with target dates in [from, to]
func (r *PredictionRepository) GetReconciled(ctx context.Context, from, to time.Time) ([]contracts.PredictionRecord, error) {
	query := `
		SELECT prediction_date, target_date, model_name, horizon_days, predicted_price,
			actual_price, prediction_error, abs_pct_error
		FROM forecast.predictions
		WHERE actual_price IS NOT NULL AND target_date BETWEEN $1 AND $2
		ORDER BY target_date ASC, model_name ASC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetByPredictionDate returns all predictions made on a date
func (r *PredictionRepository) GetByPredictionDate(ctx context.Context, date time.Time) ([]contracts.PredictionRecord, error) {
	query := `
		SELECT prediction_date, target_date, model_name, horizon_days, predicted_price,
			actual_price, prediction_error, abs_pct_error
		FROM forecast.predictions
		WHERE prediction_date = $1
		ORDER BY model_name ASC, target_date ASC
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPredictions(rows)
}

func scanPredictions(rows pgx.Rows) ([]contracts.PredictionRecord, error) {
	var preds []contracts.PredictionRecord
	for rows.Next() {
		var p contracts.PredictionRecord
		if err := rows.Scan(
			&p.PredictionDate, &p.TargetDate, &p.ModelName, &p.HorizonDays, &p.PredictedPrice,
			&p.ActualPrice, &p.PredictionError, &p.AbsPctError,
		); err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}
