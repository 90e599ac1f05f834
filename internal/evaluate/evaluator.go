// Package evaluate computes rolling accuracy metrics from reconciled
// predictions. Everything here is derived data: rows can be recomputed
// from forecast.predictions at any time.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Config holds evaluator parameters
type Config struct {
	Instrument string

	// WindowDays is the trailing window of target dates to score.
	WindowDays int

	// MinSamples marks rows below this count low-confidence. Rows are
	// still written; the alert engine decides what to do with them.
	MinSamples int
}

// Evaluator scores every (model, horizon) cohort over the window
type Evaluator struct {
	prices      contracts.PriceRepository
	predictions contracts.PredictionRepository
	performance contracts.PerformanceRepository
	config      Config
	log         zerolog.Logger
}

// New creates an evaluator
func New(prices contracts.PriceRepository, predictions contracts.PredictionRepository,
	performance contracts.PerformanceRepository, config Config, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		prices:      prices,
		predictions: predictions,
		performance: performance,
		config:      config,
		log:         log.With().Str("component", "evaluate.evaluator").Logger(),
	}
}

// Evaluate recomputes and upserts performance rows as of the given
// date. Returns the rows written, sorted by model then horizon.
func (e *Evaluator) Evaluate(ctx context.Context, asOf time.Time) ([]contracts.PerformanceRecord, error) {
	asOf = calendar.Midnight(asOf)
	from := asOf.AddDate(0, 0, -e.config.WindowDays)

	reconciled, err := e.predictions.GetReconciled(ctx, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("load reconciled predictions: %w", err)
	}

	type cohortKey struct {
		model   string
		horizon int
	}
	cohorts := make(map[cohortKey][]contracts.PredictionRecord)
	for _, p := range reconciled {
		k := cohortKey{model: p.ModelName, horizon: p.HorizonDays}
		cohorts[k] = append(cohorts[k], p)
	}

	var rows []contracts.PerformanceRecord
	for k, preds := range cohorts {
		// One cohort failing to score or persist drops that cohort only.
		row, err := e.score(ctx, k.model, k.horizon, asOf, preds)
		if err != nil {
			e.log.Error().Str("model", k.model).Int("horizon", k.horizon).Err(err).
				Msg("cohort scoring failed")
			continue
		}
		if err := e.performance.Upsert(ctx, row); err != nil {
			e.log.Error().Str("model", k.model).Int("horizon", k.horizon).Err(err).
				Msg("cohort persist failed")
			continue
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ModelName != rows[j].ModelName {
			return rows[i].ModelName < rows[j].ModelName
		}
		return rows[i].HorizonDays < rows[j].HorizonDays
	})

	e.log.Info().
		Str("as_of", asOf.Format("2006-01-02")).
		Int("cohorts", len(rows)).
		Int("reconciled", len(reconciled)).
		Msg("evaluation completed")

	return rows, nil
}

// score computes MAE, RMSE, MAPE and directional accuracy for one
// cohort.
func (e *Evaluator) score(ctx context.Context, modelName string, horizon int,
	asOf time.Time, preds []contracts.PredictionRecord) (*contracts.PerformanceRecord, error) {

	absErrs := make([]float64, 0, len(preds))
	sqErrs := make([]float64, 0, len(preds))
	absPctErrs := make([]float64, 0, len(preds))
	directionHits, directionTotal := 0, 0

	for _, p := range preds {
		signed := *p.PredictionError
		if signed < 0 {
			absErrs = append(absErrs, -signed)
		} else {
			absErrs = append(absErrs, signed)
		}
		sqErrs = append(sqErrs, signed*signed)
		absPctErrs = append(absPctErrs, *p.AbsPctError)

		// Direction compares prediction and actual against the close on
		// the trading day before the target. Skipped when that bar is
		// missing or either side is flat.
		prevClose, err := e.prices.GetClose(ctx, e.config.Instrument, calendar.PrevTradingDay(p.TargetDate))
		if errors.Is(err, contracts.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load previous close: %w", err)
		}
		predDir := sign(p.PredictedPrice - prevClose)
		actualDir := sign(*p.ActualPrice - prevClose)
		if predDir == 0 || actualDir == 0 {
			continue
		}
		directionTotal++
		if predDir == actualDir {
			directionHits++
		}
	}

	mae, err := stats.Mean(absErrs)
	if err != nil {
		return nil, fmt.Errorf("mae for %s/h%d: %w", modelName, horizon, err)
	}
	meanSq, err := stats.Mean(sqErrs)
	if err != nil {
		return nil, fmt.Errorf("rmse for %s/h%d: %w", modelName, horizon, err)
	}
	rmse := math.Sqrt(meanSq)
	mape, err := stats.Mean(absPctErrs)
	if err != nil {
		return nil, fmt.Errorf("mape for %s/h%d: %w", modelName, horizon, err)
	}

	// Fraction in [0, 1], matching the DECIMAL(6,4) column.
	directional := 0.0
	if directionTotal > 0 {
		directional = float64(directionHits) / float64(directionTotal)
	}

	return &contracts.PerformanceRecord{
		ModelName:           modelName,
		HorizonDays:         horizon,
		EvaluationDate:      asOf,
		MAE:                 mae,
		RMSE:                rmse,
		MAPE:                mape,
		DirectionalAccuracy: directional,
		SampleCount:         len(preds),
	}, nil
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
