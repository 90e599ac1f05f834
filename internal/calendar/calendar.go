// Package calendar provides trading-day arithmetic for the LME daily
// series. Weekends are the only non-trading days; exchange holidays show
// up as gaps in the data and are tolerated by the missingness check
// rather than modeled here.
package calendar

import "time"

// IsTradingDay reports whether the date falls on a weekday
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextTradingDay returns the first trading day strictly after t
func NextTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PrevTradingDay returns the last trading day strictly before t
func PrevTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// AddTradingDays returns the n-th trading day after t (n >= 1)
func AddTradingDays(t time.Time, n int) time.Time {
	d := t
	for i := 0; i < n; i++ {
		d = NextTradingDay(d)
	}
	return d
}

// TradingDaysBetween counts trading days in [from, to] inclusive
func TradingDaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			count++
		}
	}
	return count
}

// TargetDates returns the next `horizon` trading days after asOf,
// ordered ascending. These are the dates a forecast run predicts for.
func TargetDates(asOf time.Time, horizon int) []time.Time {
	dates := make([]time.Time, 0, horizon)
	d := asOf
	for i := 0; i < horizon; i++ {
		d = NextTradingDay(d)
		dates = append(dates, d)
	}
	return dates
}

// Midnight truncates a timestamp to its UTC calendar date
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
