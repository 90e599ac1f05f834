package model

import (
	"math"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// ARIMA fits an autoregressive model of order p with drift on daily
// returns and iterates it forward over the horizon.
type ARIMA struct {
	p int
}

// NewARIMA creates the model with the given AR order
func NewARIMA(p int) *ARIMA {
	return &ARIMA{p: p}
}

func (m *ARIMA) Name() string { return NameARIMA }

// Forecast returns one predicted close per horizon step
func (m *ARIMA) Forecast(history []contracts.PriceRecord, horizon int) ([]float64, error) {
	prices := closes(history)
	rets := dailyReturns(prices)
	if len(rets) < m.p*4 {
		return nil, ErrInsufficientHistory
	}

	coef, ok := fitAR(rets, m.p)
	if !ok {
		// Degenerate series, fall back to the mean return.
		coef = make([]float64, m.p+1)
		coef[0] = mean(rets)
	}

	// Iterate the fitted process forward, feeding predictions back in.
	window := append([]float64(nil), rets[len(rets)-m.p:]...)
	price := prices[len(prices)-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next := coef[0]
		for j := 0; j < m.p; j++ {
			next += coef[j+1] * window[len(window)-1-j]
		}
		window = append(window[1:], next)
		price *= 1 + next
		out[h] = price
	}
	return out, nil
}

// fitAR solves the least-squares AR(p) fit with intercept via the
// normal equations. Returns false when the system is singular.
func fitAR(rets []float64, p int) ([]float64, bool) {
	n := len(rets) - p
	if n <= p+1 {
		return nil, false
	}

	// Design matrix row i: [1, rets[i+p-1], ..., rets[i]], target rets[i+p].
	dim := p + 1
	xtx := make([][]float64, dim)
	for i := range xtx {
		xtx[i] = make([]float64, dim)
	}
	xty := make([]float64, dim)

	for i := 0; i < n; i++ {
		row := make([]float64, dim)
		row[0] = 1
		for j := 0; j < p; j++ {
			row[j+1] = rets[i+p-1-j]
		}
		y := rets[i+p]
		for a := 0; a < dim; a++ {
			xty[a] += row[a] * y
			for b := 0; b < dim; b++ {
				xtx[a][b] += row[a] * row[b]
			}
		}
	}

	return solveLinear(xtx, xty)
}

// solveLinear solves Ax = b by Gaussian elimination with partial
// pivoting. A and b are modified in place.
func solveLinear(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
