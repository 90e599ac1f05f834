package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Reconciler attaches realized prices to matured predictions. All
// predictions are against the primary instrument.
type Reconciler struct {
	prices      contracts.PriceRepository
	predictions contracts.PredictionRepository
	instrument  string
	log         zerolog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(prices contracts.PriceRepository, predictions contracts.PredictionRepository,
	instrument string, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		prices:      prices,
		predictions: predictions,
		instrument:  instrument,
		log:         log.With().Str("component", "predict.reconciler").Logger(),
	}
}

// ReconcileStats summarizes one reconcile pass
type ReconcileStats struct {
	Matched int
	Pending int
}

// Reconcile fills in actual prices for every unreconciled prediction
// whose target date is on or before asOf. Predictions whose actual bar
// has not arrived yet stay pending; they are retried on the next run,
// so the pass is idempotent.
func (r *Reconciler) Reconcile(ctx context.Context, asOf time.Time) (*ReconcileStats, error) {
	asOf = calendar.Midnight(asOf)

	due, err := r.predictions.GetUnreconciled(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load unreconciled predictions: %w", err)
	}

	stats := &ReconcileStats{}
	for _, pred := range due {
		actual, err := r.prices.GetClose(ctx, r.instrument, pred.TargetDate)
		if errors.Is(err, contracts.ErrNotFound) {
			stats.Pending++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load close for %s: %w", pred.TargetDate.Format("2006-01-02"), err)
		}

		signedErr := pred.PredictedPrice - actual
		absPctErr := 0.0
		if actual != 0 {
			absPctErr = math.Abs(signedErr) / math.Abs(actual) * 100
		}

		err = r.predictions.SetActual(ctx, pred.PredictionDate, pred.TargetDate, pred.ModelName,
			actual, signedErr, absPctErr)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s@%s: %w", pred.ModelName, pred.TargetDate.Format("2006-01-02"), err)
		}
		stats.Matched++
	}

	r.log.Info().
		Str("as_of", asOf.Format("2006-01-02")).
		Int("matched", stats.Matched).
		Int("pending", stats.Pending).
		Msg("reconciliation completed")

	return stats, nil
}
