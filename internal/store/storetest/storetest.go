// Package storetest provides an in-memory implementation of the
// contracts repository interfaces with the same upsert-by-natural-key
// semantics as the PostgreSQL store. Used by package tests across the
// pipeline.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Store holds all tables. Accessor methods return views implementing
// the individual repository interfaces. All views share one mutex, so
// the store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	prices      map[string]contracts.PriceRecord
	predictions map[string]contracts.PredictionRecord
	performance map[string]contracts.PerformanceRecord
	validations map[string][]contracts.ValidationResult
	runs        map[string]contracts.RunRecord
	alerts      map[string]contracts.Alert

	// Error injection for failure-path tests. When set, the matching
	// view returns the error from every method.
	FailPrices      error
	FailPredictions error
	FailRuns        error
}

// New creates an empty store
func New() *Store {
	return &Store{
		prices:      make(map[string]contracts.PriceRecord),
		predictions: make(map[string]contracts.PredictionRecord),
		performance: make(map[string]contracts.PerformanceRecord),
		validations: make(map[string][]contracts.ValidationResult),
		runs:        make(map[string]contracts.RunRecord),
		alerts:      make(map[string]contracts.Alert),
	}
}

func (s *Store) Prices() contracts.PriceRepository            { return priceView{s} }
func (s *Store) Predictions() contracts.PredictionRepository  { return predictionView{s} }
func (s *Store) Performance() contracts.PerformanceRepository { return performanceView{s} }
func (s *Store) Validations() contracts.ValidationRepository  { return validationView{s} }
func (s *Store) Runs() contracts.RunRepository                { return runView{s} }
func (s *Store) Alerts() contracts.AlertRepository            { return alertView{s} }

func dkey(t time.Time) string { return calendar.Midnight(t).Format("2006-01-02") }

// SeedPrices inserts bars directly
func (s *Store) SeedPrices(recs ...contracts.PriceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.prices[r.Instrument+"|"+dkey(r.Date)] = r
	}
}

// ---- PriceRepository ----

type priceView struct{ s *Store }

func (v priceView) Upsert(_ context.Context, rec *contracts.PriceRecord) error {
	if v.s.FailPrices != nil {
		return v.s.FailPrices
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.prices[rec.Instrument+"|"+dkey(rec.Date)] = *rec
	return nil
}

func (v priceView) UpsertBatch(ctx context.Context, recs []contracts.PriceRecord) error {
	for i := range recs {
		if err := v.Upsert(ctx, &recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) instrumentBars(instrument string) []contracts.PriceRecord {
	var bars []contracts.PriceRecord
	for _, p := range s.prices {
		if p.Instrument == instrument {
			bars = append(bars, p)
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func (v priceView) GetRecent(_ context.Context, instrument string, days int) ([]contracts.PriceRecord, error) {
	if v.s.FailPrices != nil {
		return nil, v.s.FailPrices
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	bars := v.s.instrumentBars(instrument)
	if len(bars) == 0 {
		return nil, nil
	}
	cutoff := bars[len(bars)-1].Date.AddDate(0, 0, -days)
	var out []contracts.PriceRecord
	for _, b := range bars {
		if !b.Date.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (v priceView) GetRange(_ context.Context, instrument string, from, to time.Time) ([]contracts.PriceRecord, error) {
	if v.s.FailPrices != nil {
		return nil, v.s.FailPrices
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.PriceRecord
	for _, b := range v.s.instrumentBars(instrument) {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (v priceView) GetClose(_ context.Context, instrument string, date time.Time) (float64, error) {
	if v.s.FailPrices != nil {
		return 0, v.s.FailPrices
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.prices[instrument+"|"+dkey(date)]
	if !ok {
		return 0, contracts.ErrNotFound
	}
	return p.Close, nil
}

func (v priceView) Latest(_ context.Context, instrument string) (*contracts.PriceRecord, error) {
	if v.s.FailPrices != nil {
		return nil, v.s.FailPrices
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	bars := v.s.instrumentBars(instrument)
	if len(bars) == 0 {
		return nil, contracts.ErrNotFound
	}
	last := bars[len(bars)-1]
	return &last, nil
}

// ---- PredictionRepository ----

type predictionView struct{ s *Store }

func pkey(predDate, targetDate time.Time, model string) string {
	return dkey(predDate) + "|" + dkey(targetDate) + "|" + model
}

func (v predictionView) Upsert(_ context.Context, rec *contracts.PredictionRecord) error {
	if v.s.FailPredictions != nil {
		return v.s.FailPredictions
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := pkey(rec.PredictionDate, rec.TargetDate, rec.ModelName)
	if existing, ok := v.s.predictions[key]; ok {
		// Keep reconciliation fields on re-prediction, like the SQL upsert.
		existing.HorizonDays = rec.HorizonDays
		existing.PredictedPrice = rec.PredictedPrice
		v.s.predictions[key] = existing
		return nil
	}
	v.s.predictions[key] = *rec
	return nil
}

func (v predictionView) GetUnreconciled(_ context.Context, before time.Time) ([]contracts.PredictionRecord, error) {
	if v.s.FailPredictions != nil {
		return nil, v.s.FailPredictions
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.PredictionRecord
	for _, p := range v.s.predictions {
		if p.ActualPrice == nil && !p.TargetDate.After(before) {
			out = append(out, p)
		}
	}
	sortPredictions(out)
	return out, nil
}

func (v predictionView) SetActual(_ context.Context, predictionDate, targetDate time.Time, modelName string,
	actual, signedErr, absPctErr float64) error {
	if v.s.FailPredictions != nil {
		return v.s.FailPredictions
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := pkey(predictionDate, targetDate, modelName)
	p, ok := v.s.predictions[key]
	if !ok {
		return contracts.ErrNotFound
	}
	p.ActualPrice = &actual
	p.PredictionError = &signedErr
	p.AbsPctError = &absPctErr
	v.s.predictions[key] = p
	return nil
}

func (v predictionView) GetReconciled(_ context.Context, from, to time.Time) ([]contracts.PredictionRecord, error) {
	if v.s.FailPredictions != nil {
		return nil, v.s.FailPredictions
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.PredictionRecord
	for _, p := range v.s.predictions {
		if p.ActualPrice != nil && !p.TargetDate.Before(from) && !p.TargetDate.After(to) {
			out = append(out, p)
		}
	}
	sortPredictions(out)
	return out, nil
}

func (v predictionView) GetByPredictionDate(_ context.Context, date time.Time) ([]contracts.PredictionRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.PredictionRecord
	for _, p := range v.s.predictions {
		if dkey(p.PredictionDate) == dkey(date) {
			out = append(out, p)
		}
	}
	sortPredictions(out)
	return out, nil
}

func sortPredictions(preds []contracts.PredictionRecord) {
	sort.Slice(preds, func(i, j int) bool {
		if !preds[i].TargetDate.Equal(preds[j].TargetDate) {
			return preds[i].TargetDate.Before(preds[j].TargetDate)
		}
		return preds[i].ModelName < preds[j].ModelName
	})
}

// ---- PerformanceRepository ----

type performanceView struct{ s *Store }

func (v performanceView) Upsert(_ context.Context, rec *contracts.PerformanceRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := fmt.Sprintf("%s|%d|%s", rec.ModelName, rec.HorizonDays, dkey(rec.EvaluationDate))
	v.s.performance[key] = *rec
	return nil
}

func (v performanceView) GetByDate(_ context.Context, date time.Time) ([]contracts.PerformanceRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.PerformanceRecord
	for _, p := range v.s.performance {
		if dkey(p.EvaluationDate) == dkey(date) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].HorizonDays < out[j].HorizonDays
	})
	return out, nil
}

func (v performanceView) Previous(_ context.Context, modelName string, horizonDays int, before time.Time) (*contracts.PerformanceRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var best *contracts.PerformanceRecord
	for _, p := range v.s.performance {
		p := p
		if p.ModelName != modelName || p.HorizonDays != horizonDays || !p.EvaluationDate.Before(before) {
			continue
		}
		if best == nil || p.EvaluationDate.After(best.EvaluationDate) {
			best = &p
		}
	}
	if best == nil {
		return nil, contracts.ErrNotFound
	}
	return best, nil
}

// ---- ValidationRepository ----

type validationView struct{ s *Store }

func (v validationView) SaveReport(_ context.Context, report *contracts.ValidationReport) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.validations[report.RunID] = append([]contracts.ValidationResult(nil), report.Results...)
	return nil
}

func (v validationView) GetByRunID(_ context.Context, runID string) ([]contracts.ValidationResult, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return append([]contracts.ValidationResult(nil), v.s.validations[runID]...), nil
}

// ---- RunRepository ----

type runView struct{ s *Store }

func (v runView) TryStart(_ context.Context, rec *contracts.RunRecord) error {
	if v.s.FailRuns != nil {
		return v.s.FailRuns
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, r := range v.s.runs {
		if r.JobName == rec.JobName && r.Status == contracts.RunRunning {
			return contracts.ErrRunInProgress
		}
	}
	rec.Status = contracts.RunRunning
	v.s.runs[rec.RunID] = *rec
	return nil
}

func (v runView) Finish(_ context.Context, rec *contracts.RunRecord) error {
	if v.s.FailRuns != nil {
		return v.s.FailRuns
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if rec.FinishedAt == nil {
		now := time.Now()
		rec.FinishedAt = &now
	}
	stored := *rec
	stored.StepStatuses = make(map[string]contracts.StepStatus, len(rec.StepStatuses))
	for k, step := range rec.StepStatuses {
		stored.StepStatuses[k] = step
	}
	v.s.runs[rec.RunID] = stored
	return nil
}

func (s *Store) jobRuns(jobName string) []contracts.RunRecord {
	var out []contracts.RunRecord
	for _, r := range s.runs {
		if r.JobName == jobName {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (v runView) LastSuccess(_ context.Context, jobName string) (*contracts.RunRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, r := range v.s.jobRuns(jobName) {
		r := r
		if r.Status == contracts.RunSuccess || r.Status == contracts.RunPartial {
			return &r, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (v runView) History(_ context.Context, jobName string, limit int) ([]contracts.RunRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	runs := v.s.jobRuns(jobName)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (v runView) ConsecutiveFailures(_ context.Context, jobName string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	count := 0
	for _, r := range v.s.jobRuns(jobName) {
		switch r.Status {
		case contracts.RunFailed:
			count++
		case contracts.RunRunning:
			continue
		default:
			return count, nil
		}
	}
	return count, nil
}

// AllRuns returns every stored run record for a job, newest first
func (s *Store) AllRuns(jobName string) []contracts.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobRuns(jobName)
}

// ---- AlertRepository ----

type alertView struct{ s *Store }

func akey(date time.Time, category, model string) string {
	return dkey(date) + "|" + category + "|" + model
}

func (v alertView) InsertOnce(_ context.Context, alert *contracts.Alert) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := akey(alert.Date, alert.Category, alert.ModelName)
	if _, ok := v.s.alerts[key]; ok {
		return false, nil
	}
	v.s.alerts[key] = *alert
	return true, nil
}

func (v alertView) Find(_ context.Context, date time.Time, category, modelName string) (*contracts.Alert, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	a, ok := v.s.alerts[akey(date, category, modelName)]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &a, nil
}

func (v alertView) GetByDate(_ context.Context, date time.Time) ([]contracts.Alert, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []contracts.Alert
	for _, a := range v.s.alerts {
		if dkey(a.Date) == dkey(date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ModelName < out[j].ModelName
	})
	return out, nil
}
