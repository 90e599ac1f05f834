// Package predict runs the model ensemble for one prediction date and
// reconciles past predictions against realized prices.
package predict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/model"
)

// Config holds predictor parameters
type Config struct {
	Instrument  string
	HorizonDays int
	HistoryDays int

	// EnsembleQuorum is the minimum number of model values required per
	// target date before an ensemble row is written.
	EnsembleQuorum int
}

// Result summarizes one prediction run
type Result struct {
	PredictionDate time.Time
	TargetDates    []time.Time

	// Succeeded lists models that produced and persisted a full forecast.
	Succeeded []string

	// Failed maps model name to its failure message.
	Failed map[string]string

	// EnsembleWritten is true when enough models agreed per target date.
	EnsembleWritten bool
}

// Predictor fans out to every registered model and stores the results
type Predictor struct {
	prices      contracts.PriceRepository
	predictions contracts.PredictionRepository
	registry    *model.Registry
	config      Config
	log         zerolog.Logger
}

// New creates a predictor
func New(prices contracts.PriceRepository, predictions contracts.PredictionRepository,
	registry *model.Registry, config Config, log zerolog.Logger) *Predictor {
	return &Predictor{
		prices:      prices,
		predictions: predictions,
		registry:    registry,
		config:      config,
		log:         log.With().Str("component", "predict.predictor").Logger(),
	}
}

// Predict runs every model for asOf and persists one row per
// (model, target date), plus ensemble rows where quorum is met. A model
// failing is recorded in the result, not returned as an error; the run
// fails only when no model succeeds or persistence breaks.
func (p *Predictor) Predict(ctx context.Context, asOf time.Time) (*Result, error) {
	asOf = calendar.Midnight(asOf)
	targets := calendar.TargetDates(asOf, p.config.HorizonDays)

	history, err := p.prices.GetRecent(ctx, p.config.Instrument, p.config.HistoryDays)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", p.config.Instrument, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no price history for %s", p.config.Instrument)
	}

	result := &Result{
		PredictionDate: asOf,
		TargetDates:    targets,
		Failed:         make(map[string]string),
	}

	// Models are CPU-bound and independent, run them concurrently.
	type outcome struct {
		name   string
		values []float64
		err    error
	}
	models := p.registry.Models()
	outcomes := make([]outcome, len(models))

	var wg sync.WaitGroup
	for i, m := range models {
		wg.Add(1)
		go func(i int, m contracts.Model) {
			defer wg.Done()
			values, err := m.Forecast(history, p.config.HorizonDays)
			outcomes[i] = outcome{name: m.Name(), values: values, err: err}
		}(i, m)
	}
	wg.Wait()

	// byTarget[h] collects each successful model's value for target h.
	byTarget := make([][]float64, p.config.HorizonDays)

	for _, o := range outcomes {
		if o.err != nil {
			p.log.Warn().Str("model", o.name).Err(o.err).Msg("model failed")
			result.Failed[o.name] = o.err.Error()
			continue
		}
		if len(o.values) != p.config.HorizonDays {
			result.Failed[o.name] = fmt.Sprintf("expected %d values, got %d", p.config.HorizonDays, len(o.values))
			continue
		}

		if err := p.persistForecast(ctx, asOf, targets, o.name, o.values); err != nil {
			return nil, err
		}
		for h, v := range o.values {
			byTarget[h] = append(byTarget[h], v)
		}
		result.Succeeded = append(result.Succeeded, o.name)
	}

	if len(result.Succeeded) == 0 {
		return nil, fmt.Errorf("all %d models failed", len(models))
	}

	result.EnsembleWritten, err = p.persistEnsemble(ctx, asOf, targets, byTarget)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("as_of", asOf.Format("2006-01-02")).
		Int("models_ok", len(result.Succeeded)).
		Int("models_failed", len(result.Failed)).
		Bool("ensemble", result.EnsembleWritten).
		Msg("prediction completed")

	return result, nil
}

func (p *Predictor) persistForecast(ctx context.Context, asOf time.Time, targets []time.Time,
	name string, values []float64) error {
	for h, target := range targets {
		rec := &contracts.PredictionRecord{
			PredictionDate: asOf,
			TargetDate:     target,
			ModelName:      name,
			HorizonDays:    h + 1,
			PredictedPrice: values[h],
		}
		if err := p.predictions.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("persist %s forecast: %w", name, err)
		}
	}
	return nil
}

// persistEnsemble writes the cross-model mean for every target date
// that has at least quorum model values. Returns whether all target
// dates got an ensemble row.
func (p *Predictor) persistEnsemble(ctx context.Context, asOf time.Time, targets []time.Time,
	byTarget [][]float64) (bool, error) {
	complete := true
	for h, target := range targets {
		values := byTarget[h]
		if len(values) < p.config.EnsembleQuorum {
			complete = false
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		rec := &contracts.PredictionRecord{
			PredictionDate: asOf,
			TargetDate:     target,
			ModelName:      model.NameEnsemble,
			HorizonDays:    h + 1,
			PredictedPrice: sum / float64(len(values)),
		}
		if err := p.predictions.Upsert(ctx, rec); err != nil {
			return false, fmt.Errorf("persist ensemble forecast: %w", err)
		}
	}
	return complete, nil
}
