package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/notify"
	"github.com/ymatsuda/cuprum/internal/quality"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// captureNotifier records everything sent through it.
type captureNotifier struct {
	mu   sync.Mutex
	sent []contracts.Alert
	err  error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, a *contracts.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, *a)
	return nil
}

var _ notify.Notifier = (*captureNotifier)(nil)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testConfig() Config {
	return Config{
		PrimaryInstrument: "CMCU3",
		StalenessMaxDays:  2,
		MAPEWarnPct:       5,
		MissingnessMaxPct: 10,
	}
}

func testEngine(s *storetest.Store, n notify.Notifier) *Engine {
	return New(s.Prices(), s.Performance(), s.Runs(), s.Alerts(), []notify.Notifier{n},
		testConfig(), logger.NewNop().Zerolog())
}

func freshPrices(s *storetest.Store, asOf time.Time) {
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: asOf, Close: 9500})
}

func TestRunStaleData(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{
		Instrument: "CMCU3", Date: asOf.AddDate(0, 0, -2), Close: 9500,
	})

	capture := &captureNotifier{}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)

	require.Len(t, raised, 1)
	assert.Equal(t, CategoryStaleData, raised[0].Category)
	assert.Equal(t, contracts.SeverityError, raised[0].Severity)
	assert.Len(t, capture.sent, 1)
}

func TestRunStaleCollection(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	freshPrices(s, asOf)

	// Prices look current but nothing has collected since Tuesday.
	old := &contracts.RunRecord{
		RunID:     "collection-20260825T070000.000",
		JobName:   contracts.JobCollection,
		StartedAt: date(2026, 8, 25),
	}
	require.NoError(t, s.Runs().TryStart(context.Background(), old))
	old.Status = contracts.RunSuccess
	require.NoError(t, s.Runs().Finish(context.Background(), old))

	capture := &captureNotifier{}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)

	require.Len(t, raised, 1)
	assert.Equal(t, CategoryStaleData, raised[0].Category)
	assert.Contains(t, raised[0].Message, "no successful collection")
}

func TestRunRecentCollectionNoAlert(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	freshPrices(s, asOf)

	recent := &contracts.RunRecord{
		RunID:     "collection-20260828T070000.000",
		JobName:   contracts.JobCollection,
		StartedAt: date(2026, 8, 28),
	}
	require.NoError(t, s.Runs().TryStart(context.Background(), recent))
	recent.Status = contracts.RunSuccess
	require.NoError(t, s.Runs().Finish(context.Background(), recent))

	capture := &captureNotifier{}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, raised)
}

func TestRunFreshDataNoAlert(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{
		Instrument: "CMCU3", Date: asOf.AddDate(0, 0, -1), Close: 9500,
	})

	capture := &captureNotifier{}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, raised)
	assert.Empty(t, capture.sent)
}

func TestRunValidationFindings(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	freshPrices(s, asOf)

	report := &contracts.ValidationReport{
		RunID: "run-1",
		AsOf:  asOf,
		Results: []contracts.ValidationResult{
			{CheckName: quality.CheckFreshness, Severity: contracts.SeverityError, Detail: "stale"},
			{CheckName: quality.CheckMissingness, Severity: contracts.SeverityWarning,
				Detail: "CMCU2 missing 25%", Metric: 25},
			{CheckName: quality.CheckAnomaly, Severity: contracts.SeverityWarning, Detail: "big move", Metric: 12},
		},
	}

	capture := &captureNotifier{}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, report, nil)
	require.NoError(t, err)

	categories := make([]string, len(raised))
	for i, a := range raised {
		categories[i] = a.Category
	}
	// ERROR finding and missingness warning alert; anomaly warning does not.
	assert.ElementsMatch(t, []string{CategoryValidationError, CategoryMissingData}, categories)
}

func TestRunDegradationNeedsTwoConsecutive(t *testing.T) {
	asOf := date(2026, 8, 28)
	ctx := context.Background()

	current := contracts.PerformanceRecord{
		ModelName: "arima", HorizonDays: 1, EvaluationDate: asOf, MAPE: 7.5,
	}

	t.Run("first breach only", func(t *testing.T) {
		s := storetest.New()
		freshPrices(s, asOf)
		// Previous evaluation was healthy.
		require.NoError(t, s.Performance().Upsert(ctx, &contracts.PerformanceRecord{
			ModelName: "arima", HorizonDays: 1, EvaluationDate: asOf.AddDate(0, 0, -1), MAPE: 3.0,
		}))

		raised, err := testEngine(s, &captureNotifier{}).Run(ctx, asOf, nil,
			[]contracts.PerformanceRecord{current})
		require.NoError(t, err)
		assert.Empty(t, raised)
	})

	t.Run("sustained breach", func(t *testing.T) {
		s := storetest.New()
		freshPrices(s, asOf)
		require.NoError(t, s.Performance().Upsert(ctx, &contracts.PerformanceRecord{
			ModelName: "arima", HorizonDays: 1, EvaluationDate: asOf.AddDate(0, 0, -1), MAPE: 6.8,
		}))

		capture := &captureNotifier{}
		raised, err := testEngine(s, capture).Run(ctx, asOf, nil,
			[]contracts.PerformanceRecord{current})
		require.NoError(t, err)
		require.Len(t, raised, 1)
		assert.Equal(t, CategoryModelDegraded, raised[0].Category)
		assert.Equal(t, "arima", raised[0].ModelName)
	})

	t.Run("no history", func(t *testing.T) {
		s := storetest.New()
		freshPrices(s, asOf)

		raised, err := testEngine(s, &captureNotifier{}).Run(ctx, asOf, nil,
			[]contracts.PerformanceRecord{current})
		require.NoError(t, err)
		assert.Empty(t, raised)
	})
}

func TestRunDeduplicatesWithinDay(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	// Stale on purpose.
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: asOf.AddDate(0, 0, -5), Close: 9500})

	capture := &captureNotifier{}
	engine := testEngine(s, capture)

	raised, err := engine.Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)
	assert.Len(t, raised, 1)

	// Same condition, same day: nothing new fires.
	raised, err = engine.Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, raised)
	assert.Len(t, capture.sent, 1)
}

func TestRunCarriesFirstObserved(t *testing.T) {
	// Thursday and Friday of the same week.
	thursday, friday := date(2026, 8, 27), date(2026, 8, 28)
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: date(2026, 8, 20), Close: 9500})

	engine := testEngine(s, &captureNotifier{})

	raised, err := engine.Run(context.Background(), thursday, nil, nil)
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, thursday, raised[0].FirstObserved)

	raised, err = engine.Run(context.Background(), friday, nil, nil)
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, thursday, raised[0].FirstObserved)
}

func TestRunDeliveryFailureDoesNotFail(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	s.SeedPrices(contracts.PriceRecord{Instrument: "CMCU3", Date: asOf.AddDate(0, 0, -5), Close: 9500})

	capture := &captureNotifier{err: assert.AnError}
	raised, err := testEngine(s, capture).Run(context.Background(), asOf, nil, nil)
	require.NoError(t, err)
	assert.Len(t, raised, 1)
}

func TestRaisePipelineFailure(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()

	engine := testEngine(s, &captureNotifier{})
	require.NoError(t, engine.RaisePipelineFailure(context.Background(), asOf, assert.AnError))

	stored, err := s.Alerts().GetByDate(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, CategoryPipelineFailure, stored[0].Category)
	assert.Equal(t, contracts.SeverityError, stored[0].Severity)
}

func TestRaisePipelineFailureCarriesStreak(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()

	// Two pipeline runs already failed before this escalation.
	for i, id := range []string{"pipeline-20260826T080000.000", "pipeline-20260827T080000.000"} {
		rec := &contracts.RunRecord{
			RunID:     id,
			JobName:   contracts.JobPipeline,
			StartedAt: date(2026, 8, 26+i),
		}
		require.NoError(t, s.Runs().TryStart(context.Background(), rec))
		rec.Status = contracts.RunFailed
		require.NoError(t, s.Runs().Finish(context.Background(), rec))
	}

	engine := testEngine(s, &captureNotifier{})
	require.NoError(t, engine.RaisePipelineFailure(context.Background(), asOf, assert.AnError))

	stored, err := s.Alerts().GetByDate(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0].Message, "2 consecutive failed runs")
}
