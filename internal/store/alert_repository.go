package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// AlertRepository implements contracts.AlertRepository. The unique key
// (alert_date, category, model_name) deduplicates a persisting condition
// to one occurrence per day.
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// InsertOnce inserts an alert occurrence, reporting whether it was new
func (r *AlertRepository) InsertOnce(ctx context.Context, alert *contracts.Alert) (bool, error) {
	query := `
		INSERT INTO ops.alerts (alert_date, category, model_name, severity, message, first_observed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alert_date, category, model_name) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		alert.Date, alert.Category, alert.ModelName,
		string(alert.Severity), alert.Message, alert.FirstObserved,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Find returns the alert for (date, category, model), or ErrNotFound
func (r *AlertRepository) Find(ctx context.Context, date time.Time, category, modelName string) (*contracts.Alert, error) {
	query := `
		SELECT alert_date, category, model_name, severity, message, first_observed
		FROM ops.alerts
		WHERE alert_date = $1 AND category = $2 AND model_name = $3
	`

	var a contracts.Alert
	var severity string
	err := r.pool.QueryRow(ctx, query, date, category, modelName).Scan(
		&a.Date, &a.Category, &a.ModelName, &severity, &a.Message, &a.FirstObserved,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Severity = contracts.Severity(severity)
	return &a, nil
}

// GetByDate returns all alerts raised on a date
func (r *AlertRepository) GetByDate(ctx context.Context, date time.Time) ([]contracts.Alert, error) {
	query := `
		SELECT alert_date, category, model_name, severity, message, first_observed
		FROM ops.alerts
		WHERE alert_date = $1
		ORDER BY severity DESC, category ASC, model_name ASC
	`

	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []contracts.Alert
	for rows.Next() {
		var a contracts.Alert
		var severity string
		if err := rows.Scan(&a.Date, &a.Category, &a.ModelName, &severity, &a.Message, &a.FirstObserved); err != nil {
			return nil, err
		}
		a.Severity = contracts.Severity(severity)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
