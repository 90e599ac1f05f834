package model

import (
	"time"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Prophet decomposes the series into a linear trend plus day-of-week
// seasonality fitted jointly by least squares, then projects both over
// the horizon's trading days.
type Prophet struct{}

// NewProphet creates the model
func NewProphet() *Prophet {
	return &Prophet{}
}

func (m *Prophet) Name() string { return NameProphet }

const prophetMinBars = 20

// Forecast returns one predicted close per horizon step
func (m *Prophet) Forecast(history []contracts.PriceRecord, horizon int) ([]float64, error) {
	if len(history) < prophetMinBars {
		return nil, ErrInsufficientHistory
	}

	// Design: [1, t, mon, tue, wed, thu] with Friday as baseline.
	dim := 6
	xtx := make([][]float64, dim)
	for i := range xtx {
		xtx[i] = make([]float64, dim)
	}
	xty := make([]float64, dim)

	for t, bar := range history {
		row := make([]float64, dim)
		row[0] = 1
		row[1] = float64(t)
		if d := dowIndex(bar.Date.Weekday()); d >= 0 {
			row[2+d] = 1
		}
		for a := 0; a < dim; a++ {
			xty[a] += row[a] * bar.Close
			for b := 0; b < dim; b++ {
				xtx[a][b] += row[a] * row[b]
			}
		}
	}

	coef, ok := solveLinear(xtx, xty)
	if !ok {
		// Flat series, hold the last close.
		out := make([]float64, horizon)
		for h := range out {
			out[h] = history[len(history)-1].Close
		}
		return out, nil
	}

	lastDate := history[len(history)-1].Date
	out := make([]float64, horizon)
	date := lastDate
	for h := 0; h < horizon; h++ {
		date = calendar.NextTradingDay(date)
		t := float64(len(history) + h)
		price := coef[0] + coef[1]*t
		if d := dowIndex(date.Weekday()); d >= 0 {
			price += coef[2+d]
		}
		out[h] = price
	}
	return out, nil
}

// dowIndex maps Monday..Thursday to 0..3, Friday and weekends to -1
func dowIndex(d time.Weekday) int {
	switch d {
	case time.Monday:
		return 0
	case time.Tuesday:
		return 1
	case time.Wednesday:
		return 2
	case time.Thursday:
		return 3
	default:
		return -1
	}
}
