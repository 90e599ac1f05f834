// Package quality runs the data-quality battery against the latest
// stored prices. The validator is read-only; the orchestrator persists
// its report.
package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Check names, stable identifiers used in findings and alerts.
const (
	CheckFreshness   = "freshness"
	CheckMissingness = "missingness"
	CheckAnomaly     = "anomalous_move"
)

// Config holds validator thresholds
type Config struct {
	PrimaryInstrument string
	Instruments       []string

	// FreshnessMaxDays is how many calendar days behind as-of the latest
	// bar of the primary series may be before the data is stale.
	FreshnessMaxDays int

	// MissingnessWindowDays is the trailing window for the coverage check.
	MissingnessWindowDays int

	// MissingnessMaxPct is the missing-rows ceiling, in percent.
	MissingnessMaxPct float64

	// AnomalyWindowDays is the trailing window for the move check.
	AnomalyWindowDays int

	// AnomalyMaxMovePct flags day-over-day close moves beyond this, in percent.
	AnomalyMaxMovePct float64
}

// Validator runs the fixed check battery
type Validator struct {
	prices contracts.PriceRepository
	config Config
	log    zerolog.Logger
}

// New creates a validator
func New(prices contracts.PriceRepository, config Config, log zerolog.Logger) *Validator {
	return &Validator{
		prices: prices,
		config: config,
		log:    log.With().Str("component", "quality.validator").Logger(),
	}
}

// Validate runs all checks for as-of and returns the ordered report.
// Each check is independent: one check erroring out becomes an ERROR
// finding, not a validator failure.
func (v *Validator) Validate(ctx context.Context, runID string, asOf time.Time) (*contracts.ValidationReport, error) {
	asOf = calendar.Midnight(asOf)
	report := &contracts.ValidationReport{
		RunID: runID,
		AsOf:  asOf,
	}

	report.Results = append(report.Results, v.checkFreshness(ctx, runID, asOf))
	report.Results = append(report.Results, v.checkMissingness(ctx, runID, asOf)...)
	report.Results = append(report.Results, v.checkAnomalousMoves(ctx, runID, asOf)...)

	v.log.Info().
		Str("run_id", runID).
		Str("as_of", asOf.Format("2006-01-02")).
		Int("findings", len(report.Results)).
		Str("severity", string(report.Severity())).
		Msg("validation completed")

	return report, nil
}

// checkFreshness verifies the primary series is current
func (v *Validator) checkFreshness(ctx context.Context, runID string, asOf time.Time) contracts.ValidationResult {
	res := contracts.ValidationResult{
		RunID:     runID,
		CheckName: CheckFreshness,
		Severity:  contracts.SeverityOK,
	}

	latest, err := v.prices.Latest(ctx, v.config.PrimaryInstrument)
	if err != nil {
		res.Severity = contracts.SeverityError
		res.Detail = fmt.Sprintf("no price data for %s: %v", v.config.PrimaryInstrument, err)
		return res
	}

	daysBehind := int(asOf.Sub(calendar.Midnight(latest.Date)).Hours() / 24)
	res.Metric = float64(daysBehind)

	if daysBehind > v.config.FreshnessMaxDays {
		res.Severity = contracts.SeverityError
		res.Detail = fmt.Sprintf("%s is %d days behind (latest %s, max %d)",
			v.config.PrimaryInstrument, daysBehind,
			latest.Date.Format("2006-01-02"), v.config.FreshnessMaxDays)
	} else {
		res.Detail = fmt.Sprintf("%s latest bar %s, %d days behind",
			v.config.PrimaryInstrument, latest.Date.Format("2006-01-02"), daysBehind)
	}

	return res
}

// checkMissingness reports coverage per tracked instrument over the
// trailing window.
func (v *Validator) checkMissingness(ctx context.Context, runID string, asOf time.Time) []contracts.ValidationResult {
	from := asOf.AddDate(0, 0, -v.config.MissingnessWindowDays)
	expected := calendar.TradingDaysBetween(from, asOf)

	var results []contracts.ValidationResult
	for _, instrument := range v.config.Instruments {
		res := contracts.ValidationResult{
			RunID:     runID,
			CheckName: CheckMissingness,
			Severity:  contracts.SeverityOK,
		}

		bars, err := v.prices.GetRange(ctx, instrument, from, asOf)
		if err != nil {
			res.Severity = contracts.SeverityError
			res.Detail = fmt.Sprintf("%s: coverage query failed: %v", instrument, err)
			results = append(results, res)
			continue
		}

		missingPct := 0.0
		if expected > 0 {
			missingPct = (1 - float64(len(bars))/float64(expected)) * 100
		}
		if missingPct < 0 {
			missingPct = 0
		}
		res.Metric = missingPct

		if missingPct > v.config.MissingnessMaxPct {
			res.Severity = contracts.SeverityWarning
			res.Detail = fmt.Sprintf("%s missing %.1f%% of expected bars (%d/%d over %d days)",
				instrument, missingPct, len(bars), expected, v.config.MissingnessWindowDays)
		} else {
			res.Detail = fmt.Sprintf("%s coverage %d/%d bars (%.1f%% missing)",
				instrument, len(bars), expected, missingPct)
		}

		results = append(results, res)
	}

	return results
}

// checkAnomalousMoves flags outsized day-over-day close changes. The
// check never blocks downstream steps, it only reports.
func (v *Validator) checkAnomalousMoves(ctx context.Context, runID string, asOf time.Time) []contracts.ValidationResult {
	from := asOf.AddDate(0, 0, -v.config.AnomalyWindowDays)

	var results []contracts.ValidationResult
	for _, instrument := range v.config.Instruments {
		// One extra day so the first bar in the window has a previous close.
		bars, err := v.prices.GetRange(ctx, instrument, from.AddDate(0, 0, -7), asOf)
		if err != nil {
			results = append(results, contracts.ValidationResult{
				RunID:     runID,
				CheckName: CheckAnomaly,
				Severity:  contracts.SeverityError,
				Detail:    fmt.Sprintf("%s: price query failed: %v", instrument, err),
			})
			continue
		}

		for i := 1; i < len(bars); i++ {
			if bars[i].Date.Before(from) || bars[i-1].Close == 0 {
				continue
			}
			changePct := (bars[i].Close - bars[i-1].Close) / bars[i-1].Close * 100
			if math.Abs(changePct) > v.config.AnomalyMaxMovePct {
				results = append(results, contracts.ValidationResult{
					RunID:     runID,
					CheckName: CheckAnomaly,
					Severity:  contracts.SeverityWarning,
					Detail: fmt.Sprintf("%s moved %+.1f%% on %s (%.2f -> %.2f)",
						instrument, changePct, bars[i].Date.Format("2006-01-02"),
						bars[i-1].Close, bars[i].Close),
					Metric: changePct,
				})
			}
		}
	}

	return results
}
