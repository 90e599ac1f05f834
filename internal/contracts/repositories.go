package contracts

import (
	"context"
	"time"
)

// Repository interfaces are defined here and implemented by
// internal/store. All writes are upserts keyed by each record's natural
// unique key, so every write is idempotent and safely retryable.

// PriceRepository manages daily price bars
type PriceRepository interface {
	// GetRecent returns the most recent bars for an instrument, oldest
	// first, covering up to the given number of calendar days back from
	// the latest stored date.
	GetRecent(ctx context.Context, instrument string, days int) ([]PriceRecord, error)

	// GetRange returns bars within [from, to], oldest first.
	GetRange(ctx context.Context, instrument string, from, to time.Time) ([]PriceRecord, error)

	// GetClose returns the close price for an instrument on a date.
	// Returns ErrNotFound when the bar is absent.
	GetClose(ctx context.Context, instrument string, date time.Time) (float64, error)

	// Latest returns the most recent bar for an instrument.
	Latest(ctx context.Context, instrument string) (*PriceRecord, error)

	Upsert(ctx context.Context, rec *PriceRecord) error
	UpsertBatch(ctx context.Context, recs []PriceRecord) error
}

// PredictionRepository manages point forecasts
type PredictionRepository interface {
	Upsert(ctx context.Context, rec *PredictionRecord) error

	// GetUnreconciled returns predictions with a nil actual price whose
	// target date is on or before the given date.
	GetUnreconciled(ctx context.Context, before time.Time) ([]PredictionRecord, error)

	// SetActual attaches the realized price and error metrics to one
	// prediction, identified by its natural key.
	SetActual(ctx context.Context, predictionDate, targetDate time.Time, modelName string,
		actual, signedErr, absPctErr float64) error

	// GetReconciled returns reconciled predictions with target dates in
	// [from, to], oldest first.
	GetReconciled(ctx context.Context, from, to time.Time) ([]PredictionRecord, error)

	// GetByPredictionDate returns all predictions made on a date.
	GetByPredictionDate(ctx context.Context, date time.Time) ([]PredictionRecord, error)
}

// PerformanceRepository manages rolling accuracy metrics
type PerformanceRepository interface {
	Upsert(ctx context.Context, rec *PerformanceRecord) error

	// GetByDate returns all performance rows for an evaluation date.
	GetByDate(ctx context.Context, date time.Time) ([]PerformanceRecord, error)

	// Previous returns the most recent row for (model, horizon) strictly
	// before the given date. Returns ErrNotFound when none exists.
	Previous(ctx context.Context, modelName string, horizonDays int, before time.Time) (*PerformanceRecord, error)
}

// ValidationRepository persists validator output
type ValidationRepository interface {
	SaveReport(ctx context.Context, report *ValidationReport) error
	GetByRunID(ctx context.Context, runID string) ([]ValidationResult, error)
}

// RunRepository manages job run records and enforces single-flight
type RunRepository interface {
	// TryStart atomically inserts a RUNNING record for the job. Returns
	// ErrRunInProgress when another run of the same job is RUNNING.
	TryStart(ctx context.Context, rec *RunRecord) error

	// Finish transitions a run to its terminal status and records
	// per-step outcomes.
	Finish(ctx context.Context, rec *RunRecord) error

	// LastSuccess returns the most recent SUCCESS (or PARTIAL) run of a
	// job. Returns ErrNotFound when the job has never succeeded.
	LastSuccess(ctx context.Context, jobName string) (*RunRecord, error)

	// History returns the most recent runs of a job, newest first.
	History(ctx context.Context, jobName string, limit int) ([]RunRecord, error)

	// ConsecutiveFailures counts FAILED runs since the last non-FAILED
	// run of a job.
	ConsecutiveFailures(ctx context.Context, jobName string) (int, error)
}

// AlertRepository manages alert occurrences
type AlertRepository interface {
	// InsertOnce inserts an alert keyed by (date, category, model).
	// Returns false when the same occurrence already exists today.
	InsertOnce(ctx context.Context, alert *Alert) (bool, error)

	// Find returns the alert for (date, category, model), or ErrNotFound.
	Find(ctx context.Context, date time.Time, category, modelName string) (*Alert, error)

	// GetByDate returns all alerts raised on a date.
	GetByDate(ctx context.Context, date time.Time) ([]Alert, error)
}
