package quality

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/internal/store/storetest"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

func testConfig() Config {
	return Config{
		PrimaryInstrument:     "CMCU3",
		Instruments:           []string{"CMCU3"},
		FreshnessMaxDays:      3,
		MissingnessWindowDays: 30,
		MissingnessMaxPct:     10,
		AnomalyWindowDays:     7,
		AnomalyMaxMovePct:     10,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(instrument string, day time.Time, close float64) contracts.PriceRecord {
	return contracts.PriceRecord{
		Instrument: instrument,
		Date:       day,
		Open:       close,
		High:       close,
		Low:        close,
		Close:      close,
		Volume:     1000,
	}
}

// seedWeekdays fills every trading day in [from, to] with a flat close.
func seedWeekdays(s *storetest.Store, instrument string, from, to time.Time, close float64) {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.SeedPrices(bar(instrument, d, close))
	}
}

func findByCheck(results []contracts.ValidationResult, check string) []contracts.ValidationResult {
	var out []contracts.ValidationResult
	for _, r := range results {
		if r.CheckName == check {
			out = append(out, r)
		}
	}
	return out
}

func TestValidateFreshnessBoundary(t *testing.T) {
	asOf := date(2026, 8, 28) // Friday

	tests := []struct {
		name       string
		latest     time.Time
		wantSev    contracts.Severity
		wantBehind float64
	}{
		{"current", asOf, contracts.SeverityOK, 0},
		{"at threshold", asOf.AddDate(0, 0, -3), contracts.SeverityOK, 3},
		{"past threshold", asOf.AddDate(0, 0, -4), contracts.SeverityError, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := storetest.New()
			seedWeekdays(s, "CMCU3", tt.latest.AddDate(0, 0, -45), tt.latest, 9500)

			v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())
			report, err := v.Validate(context.Background(), "run-1", asOf)
			require.NoError(t, err)

			fresh := findByCheck(report.Results, CheckFreshness)
			require.Len(t, fresh, 1)
			assert.Equal(t, tt.wantSev, fresh[0].Severity)
			assert.Equal(t, tt.wantBehind, fresh[0].Metric)
		})
	}
}

func TestValidateFreshnessNoData(t *testing.T) {
	s := storetest.New()
	v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())

	report, err := v.Validate(context.Background(), "run-1", date(2026, 8, 28))
	require.NoError(t, err)

	fresh := findByCheck(report.Results, CheckFreshness)
	require.Len(t, fresh, 1)
	assert.Equal(t, contracts.SeverityError, fresh[0].Severity)
	assert.Equal(t, contracts.SeverityError, report.Severity())
}

func TestValidateMissingness(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()

	// Seed full coverage, then verify an all-clear first.
	seedWeekdays(s, "CMCU3", asOf.AddDate(0, 0, -30), asOf, 9500)
	v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())

	report, err := v.Validate(context.Background(), "run-1", asOf)
	require.NoError(t, err)
	missing := findByCheck(report.Results, CheckMissingness)
	require.Len(t, missing, 1)
	assert.Equal(t, contracts.SeverityOK, missing[0].Severity)
	assert.Zero(t, missing[0].Metric)

	// Only the last week present: well above a 10% missing ceiling.
	sparse := storetest.New()
	seedWeekdays(sparse, "CMCU3", asOf.AddDate(0, 0, -4), asOf, 9500)
	v = New(sparse.Prices(), testConfig(), logger.NewNop().Zerolog())

	report, err = v.Validate(context.Background(), "run-2", asOf)
	require.NoError(t, err)
	missing = findByCheck(report.Results, CheckMissingness)
	require.Len(t, missing, 1)
	assert.Equal(t, contracts.SeverityWarning, missing[0].Severity)
	assert.Greater(t, missing[0].Metric, 10.0)
}

func TestValidateAnomalousMove(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	seedWeekdays(s, "CMCU3", asOf.AddDate(0, 0, -45), asOf, 9500)

	// A 12% jump on Wednesday inside the anomaly window.
	s.SeedPrices(bar("CMCU3", date(2026, 8, 26), 9500*1.12))

	v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())
	report, err := v.Validate(context.Background(), "run-1", asOf)
	require.NoError(t, err)

	moves := findByCheck(report.Results, CheckAnomaly)
	// Spike up on the 26th, back down on the 27th.
	require.Len(t, moves, 2)
	for _, m := range moves {
		assert.Equal(t, contracts.SeverityWarning, m.Severity)
	}
	assert.InDelta(t, 12.0, moves[0].Metric, 0.01)
	assert.Equal(t, contracts.SeverityWarning, report.Severity())
}

func TestValidateSmallMovesPass(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()

	// Drift up 1% a day, never tripping the 10% threshold.
	close := 9000.0
	for d := asOf.AddDate(0, 0, -45); !d.After(asOf); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s.SeedPrices(bar("CMCU3", d, close))
		close *= 1.01
	}

	v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())
	report, err := v.Validate(context.Background(), "run-1", asOf)
	require.NoError(t, err)

	assert.Empty(t, findByCheck(report.Results, CheckAnomaly))
	assert.Equal(t, contracts.SeverityOK, report.Severity())
}

func TestValidateQueryFailureBecomesFinding(t *testing.T) {
	asOf := date(2026, 8, 28)
	s := storetest.New()
	s.FailPrices = assert.AnError

	v := New(s.Prices(), testConfig(), logger.NewNop().Zerolog())
	report, err := v.Validate(context.Background(), "run-1", asOf)
	require.NoError(t, err)

	assert.Equal(t, contracts.SeverityError, report.Severity())
	for _, r := range report.Results {
		assert.Equal(t, contracts.SeverityError, r.Severity)
	}
}
