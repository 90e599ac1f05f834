// Package alert evaluates operational alert rules after each pipeline
// run and dispatches new occurrences to the configured channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/notify"
	"github.com/ymatsuda/cuprum/internal/quality"
)

// Alert categories. Persisted, keep stable.
const (
	CategoryStaleData       = "stale_data"
	CategoryValidationError = "validation_error"
	CategoryModelDegraded   = "model_degraded"
	CategoryMissingData     = "missing_data"
	CategoryPipelineFailure = "pipeline_failure"
)

// Config holds alert rule thresholds
type Config struct {
	PrimaryInstrument string

	// StalenessMaxDays triggers stale_data when the latest bar is older.
	StalenessMaxDays int

	// MAPEWarnPct triggers model_degraded when a model's MAPE exceeds it
	// on the current and the previous evaluation.
	MAPEWarnPct float64

	// MissingnessMaxPct mirrors the validator's coverage ceiling.
	MissingnessMaxPct float64
}

// Engine runs the rule battery. Rules are additive: each produces zero
// or more occurrences and every occurrence is deduplicated per day by
// the alert store.
type Engine struct {
	prices      contracts.PriceRepository
	performance contracts.PerformanceRepository
	runs        contracts.RunRepository
	alerts      contracts.AlertRepository
	notifiers   []notify.Notifier
	config      Config
	log         zerolog.Logger
}

// New creates an engine
func New(prices contracts.PriceRepository, performance contracts.PerformanceRepository,
	runs contracts.RunRepository, alerts contracts.AlertRepository,
	notifiers []notify.Notifier, config Config, log zerolog.Logger) *Engine {
	return &Engine{
		prices:      prices,
		performance: performance,
		runs:        runs,
		alerts:      alerts,
		notifiers:   notifiers,
		config:      config,
		log:         log.With().Str("component", "alert.engine").Logger(),
	}
}

// Run evaluates all rules for asOf using the just-written validation
// report and performance rows. Returns the occurrences that were new
// today and therefore dispatched.
func (e *Engine) Run(ctx context.Context, asOf time.Time, report *contracts.ValidationReport,
	performance []contracts.PerformanceRecord) ([]contracts.Alert, error) {
	asOf = calendar.Midnight(asOf)

	var candidates []contracts.Alert
	stale, err := e.checkStaleness(ctx, asOf)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, stale...)
	candidates = append(candidates, e.checkValidation(asOf, report)...)

	degraded, err := e.checkDegradation(ctx, asOf, performance)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, degraded...)

	return e.raise(ctx, asOf, candidates)
}

// raise deduplicates, persists and dispatches candidate occurrences
func (e *Engine) raise(ctx context.Context, asOf time.Time, candidates []contracts.Alert) ([]contracts.Alert, error) {
	var raised []contracts.Alert
	for _, a := range candidates {
		a.Date = asOf
		a.FirstObserved = e.firstObserved(ctx, asOf, a)

		inserted, err := e.alerts.InsertOnce(ctx, &a)
		if err != nil {
			return nil, fmt.Errorf("persist alert %s: %w", a.Category, err)
		}
		if !inserted {
			continue
		}
		raised = append(raised, a)
		e.dispatch(ctx, &a)
	}
	return raised, nil
}

// firstObserved carries the original observation date forward when the
// same condition already fired yesterday.
func (e *Engine) firstObserved(ctx context.Context, asOf time.Time, a contracts.Alert) time.Time {
	prev, err := e.alerts.Find(ctx, calendar.PrevTradingDay(asOf), a.Category, a.ModelName)
	if err != nil {
		if !errors.Is(err, contracts.ErrNotFound) {
			e.log.Warn().Err(err).Str("category", a.Category).Msg("first-observed lookup failed")
		}
		return asOf
	}
	return prev.FirstObserved
}

func (e *Engine) dispatch(ctx context.Context, a *contracts.Alert) {
	for _, n := range e.notifiers {
		if err := n.Send(ctx, a); err != nil {
			e.log.Error().
				Str("channel", n.Name()).
				Str("category", a.Category).
				Err(err).
				Msg("alert delivery failed")
		}
	}
}

// checkStaleness flags collection falling behind: no successful
// collection run within the ceiling, or a primary series whose latest
// bar is older than the ceiling. Both surface as one stale_data
// occurrence per day.
func (e *Engine) checkStaleness(ctx context.Context, asOf time.Time) ([]contracts.Alert, error) {
	last, err := e.runs.LastSuccess(ctx, contracts.JobCollection)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("staleness check: %w", err)
	}
	if err == nil {
		daysBehind := int(asOf.Sub(calendar.Midnight(last.StartedAt)).Hours() / 24)
		if daysBehind >= e.config.StalenessMaxDays {
			return []contracts.Alert{{
				Category: CategoryStaleData,
				Severity: contracts.SeverityError,
				Message: fmt.Sprintf("no successful collection for %d days (last %s)",
					daysBehind, last.StartedAt.UTC().Format("2006-01-02")),
			}}, nil
		}
	}

	latest, err := e.prices.Latest(ctx, e.config.PrimaryInstrument)
	if errors.Is(err, contracts.ErrNotFound) {
		return []contracts.Alert{{
			Category: CategoryStaleData,
			Severity: contracts.SeverityError,
			Message:  fmt.Sprintf("no price data stored for %s", e.config.PrimaryInstrument),
		}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staleness check: %w", err)
	}

	daysBehind := int(asOf.Sub(calendar.Midnight(latest.Date)).Hours() / 24)
	if daysBehind < e.config.StalenessMaxDays {
		return nil, nil
	}
	return []contracts.Alert{{
		Category: CategoryStaleData,
		Severity: contracts.SeverityError,
		Message: fmt.Sprintf("%s data is %d days old (latest %s)",
			e.config.PrimaryInstrument, daysBehind, latest.Date.Format("2006-01-02")),
	}}, nil
}

// checkValidation promotes validator findings into alerts. ERROR
// findings always alert; missingness warnings alert under their own
// category so coverage problems are visible before they become errors.
func (e *Engine) checkValidation(asOf time.Time, report *contracts.ValidationReport) []contracts.Alert {
	if report == nil {
		return nil
	}
	var out []contracts.Alert
	for _, res := range report.Results {
		switch {
		case res.Severity == contracts.SeverityError:
			out = append(out, contracts.Alert{
				Category: CategoryValidationError,
				Severity: contracts.SeverityError,
				Message:  fmt.Sprintf("%s: %s", res.CheckName, res.Detail),
			})
		case res.Severity == contracts.SeverityWarning && res.CheckName == quality.CheckMissingness &&
			res.Metric > e.config.MissingnessMaxPct:
			out = append(out, contracts.Alert{
				Category: CategoryMissingData,
				Severity: contracts.SeverityWarning,
				Message:  res.Detail,
			})
		}
	}
	return out
}

// checkDegradation flags models whose MAPE exceeded the ceiling on the
// current and the previous evaluation. One bad day is noise; two in a
// row is a trend.
func (e *Engine) checkDegradation(ctx context.Context, asOf time.Time,
	rows []contracts.PerformanceRecord) ([]contracts.Alert, error) {
	var out []contracts.Alert
	for _, row := range rows {
		if row.MAPE <= e.config.MAPEWarnPct {
			continue
		}
		prev, err := e.performance.Previous(ctx, row.ModelName, row.HorizonDays, asOf)
		if errors.Is(err, contracts.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("degradation check for %s: %w", row.ModelName, err)
		}
		if prev.MAPE <= e.config.MAPEWarnPct {
			continue
		}
		out = append(out, contracts.Alert{
			Category:  CategoryModelDegraded,
			ModelName: row.ModelName,
			Severity:  contracts.SeverityWarning,
			Message: fmt.Sprintf("%s h%d MAPE %.2f%% (previous %.2f%%, ceiling %.2f%%)",
				row.ModelName, row.HorizonDays, row.MAPE, prev.MAPE, e.config.MAPEWarnPct),
		})
	}
	return out, nil
}

// RaisePipelineFailure records the standing alert the orchestrator
// fires after exhausting its retries. The message carries how many
// runs in a row have now failed, so a day-after-day breakage reads
// differently from a first failure.
func (e *Engine) RaisePipelineFailure(ctx context.Context, asOf time.Time, cause error) error {
	msg := fmt.Sprintf("pipeline failed after retries: %v", cause)
	count, err := e.runs.ConsecutiveFailures(ctx, contracts.JobPipeline)
	if err != nil {
		e.log.Warn().Err(err).Msg("consecutive-failure count unavailable")
	} else if count > 1 {
		msg = fmt.Sprintf("pipeline failed after retries (%d consecutive failed runs): %v", count, cause)
	}

	_, err = e.raise(ctx, calendar.Midnight(asOf), []contracts.Alert{{
		Category: CategoryPipelineFailure,
		Severity: contracts.SeverityError,
		Message:  msg,
	}})
	return err
}
