package evaluate

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testEvaluator(s *storetest.Store) *Evaluator {
	return New(s.Prices(), s.Predictions(), s.Performance(), Config{
		Instrument: "CMCU3",
		WindowDays: 30,
		MinSamples: 5,
	}, logger.NewNop().Zerolog())
}

// reconcile writes a prediction and attaches its actual in one go.
func reconcile(t *testing.T, s *storetest.Store, predDate, targetDate time.Time,
	model string, horizon int, predicted, actual float64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Predictions().Upsert(ctx, &contracts.PredictionRecord{
		PredictionDate: predDate,
		TargetDate:     targetDate,
		ModelName:      model,
		HorizonDays:    horizon,
		PredictedPrice: predicted,
	}))
	signed := predicted - actual
	require.NoError(t, s.Predictions().SetActual(ctx, predDate, targetDate, model,
		actual, signed, math.Abs(signed)/actual*100))
}

func TestEvaluateMetrics(t *testing.T) {
	s := storetest.New()

	// Three reconciled one-day forecasts on consecutive trading days.
	// Errors: +100, -200, +100.
	targets := []time.Time{date(2026, 8, 25), date(2026, 8, 26), date(2026, 8, 27)}
	predicted := []float64{9600, 9300, 9600}
	actual := []float64{9500, 9500, 9500}
	for i, target := range targets {
		reconcile(t, s, target.AddDate(0, 0, -1), target, "alpha", 1, predicted[i], actual[i])
		// Previous trading day's close, for the direction comparison.
		s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: target.AddDate(0, 0, -1), Close: 9450})
		s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: target, Close: actual[i]})
	}

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "alpha", row.ModelName)
	assert.Equal(t, 1, row.HorizonDays)
	assert.Equal(t, 3, row.SampleCount)

	// MAE = (100+200+100)/3, RMSE = sqrt((100^2+200^2+100^2)/3).
	assert.InDelta(t, 133.333, row.MAE, 0.001)
	assert.InDelta(t, math.Sqrt(60000/3.0), row.RMSE, 0.001)
	assert.InDelta(t, 1.403, row.MAPE, 0.001)

	// Actual rose from 9450 every day; predictions rose twice, fell once.
	assert.InDelta(t, 2.0/3, row.DirectionalAccuracy, 0.001)
}

func TestEvaluatePerfectDirectionIsOne(t *testing.T) {
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: date(2026, 8, 25), Close: 9450})
	reconcile(t, s, date(2026, 8, 25), date(2026, 8, 26), "alpha", 1, 9600, 9500)

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Fraction, never a percentage: a perfect single-sample cohort is
	// exactly 1.0 and fits the store's DECIMAL(6,4) column.
	assert.Equal(t, 1.0, rows[0].DirectionalAccuracy)
}

func TestEvaluateCohortsSplitByModelAndHorizon(t *testing.T) {
	s := storetest.New()
	target := date(2026, 8, 26)
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: date(2026, 8, 25), Close: 9450})

	reconcile(t, s, date(2026, 8, 25), target, "alpha", 1, 9600, 9500)
	reconcile(t, s, date(2026, 8, 24), target, "alpha", 2, 9700, 9500)
	reconcile(t, s, date(2026, 8, 25), target, "beta", 1, 9400, 9500)

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Sorted by model then horizon.
	assert.Equal(t, "alpha", rows[0].ModelName)
	assert.Equal(t, 1, rows[0].HorizonDays)
	assert.Equal(t, "alpha", rows[1].ModelName)
	assert.Equal(t, 2, rows[1].HorizonDays)
	assert.Equal(t, "beta", rows[2].ModelName)

	stored, err := s.Performance().GetByDate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestEvaluateLowSampleRowStillWritten(t *testing.T) {
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: date(2026, 8, 25), Close: 9450})
	reconcile(t, s, date(2026, 8, 25), date(2026, 8, 26), "alpha", 1, 9600, 9500)

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].SampleCount)
	assert.Less(t, rows[0].SampleCount, 5)
}

func TestEvaluateOutsideWindowIgnored(t *testing.T) {
	s := storetest.New()
	// Reconciled, but the target date is 40 days back.
	reconcile(t, s, date(2026, 7, 17), date(2026, 7, 18), "alpha", 1, 9600, 9500)

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEvaluatePriceStoreErrorSkipsCohortOnly(t *testing.T) {
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: date(2026, 8, 25), Close: 9450})
	reconcile(t, s, date(2026, 8, 25), date(2026, 8, 26), "alpha", 1, 9600, 9500)

	// A failing direction lookup drops the cohort, not the step.
	s.FailPrices = assert.AnError

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEvaluateMissingPrevBarSkipsDirectionOnly(t *testing.T) {
	s := storetest.New()
	// No previous-day bar seeded at all.
	reconcile(t, s, date(2026, 8, 25), date(2026, 8, 26), "alpha", 1, 9600, 9500)

	rows, err := testEvaluator(s).Evaluate(context.Background(), date(2026, 8, 28))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].DirectionalAccuracy)
	assert.InDelta(t, 100.0, rows[0].MAE, 0.001)
}
