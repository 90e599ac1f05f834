package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// syntheticHistory builds n weekday bars ending 2026-08-28 with a mild
// upward drift and deterministic wiggle.
func syntheticHistory(n int) []contracts.PriceRecord {
	end := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	var days []time.Time
	for d := end; len(days) < n; d = d.AddDate(0, 0, -1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}

	out := make([]contracts.PriceRecord, n)
	price := 9000.0
	for i := n - 1; i >= 0; i-- {
		wiggle := math.Sin(float64(n-i)) * 20
		price = price*1.001 + wiggle
		out[n-1-i] = contracts.PriceRecord{
			Instrument: "CMCU3",
			Date:       days[i],
			Open:       price - 5,
			High:       price + 10,
			Low:        price - 10,
			Close:      price,
			Volume:     1500,
		}
	}
	return out
}

func TestRegistryOrderAndNames(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{
		NameARIMA, NameRandomForest, NameGradientBoost, NameLSTM, NameProphet,
	}, r.Names())

	m, err := r.Get(NameARIMA)
	require.NoError(t, err)
	assert.Equal(t, NameARIMA, m.Name())

	_, err = r.Get("oracle")
	assert.Error(t, err)
}

func TestForecastLengthAndSanity(t *testing.T) {
	history := syntheticHistory(100)
	last := history[len(history)-1].Close

	for _, m := range NewRegistry().Models() {
		t.Run(m.Name(), func(t *testing.T) {
			out, err := m.Forecast(history, 5)
			require.NoError(t, err)
			require.Len(t, out, 5)

			for _, p := range out {
				require.False(t, math.IsNaN(p) || math.IsInf(p, 0))
				// Within a generous band of the last close.
				assert.InDelta(t, last, p, last*0.5)
				assert.Greater(t, p, 0.0)
			}
		})
	}
}

func TestForecastInsufficientHistory(t *testing.T) {
	short := syntheticHistory(8)

	for _, m := range NewRegistry().Models() {
		t.Run(m.Name(), func(t *testing.T) {
			_, err := m.Forecast(short, 5)
			assert.ErrorIs(t, err, ErrInsufficientHistory)
		})
	}
}

func TestForecastDeterministic(t *testing.T) {
	history := syntheticHistory(100)

	for _, m := range NewRegistry().Models() {
		t.Run(m.Name(), func(t *testing.T) {
			a, err := m.Forecast(history, 5)
			require.NoError(t, err)
			b, err := m.Forecast(history, 5)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestSolveLinear(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 -> x = 1, y = 3.
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{5, 10}

	x, ok := solveLinear(a, b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, x[0], 1e-9)
	assert.InDelta(t, 3.0, x[1], 1e-9)

	// Singular system.
	_, ok = solveLinear([][]float64{{1, 1}, {2, 2}}, []float64{1, 2})
	assert.False(t, ok)
}
