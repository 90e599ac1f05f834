package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(date(2026, 8, 28)))   // Friday
	assert.False(t, IsTradingDay(date(2026, 8, 29)))  // Saturday
	assert.False(t, IsTradingDay(date(2026, 8, 30)))  // Sunday
	assert.True(t, IsTradingDay(date(2026, 8, 31)))   // Monday
}

func TestNextTradingDay_SkipsWeekend(t *testing.T) {
	// Friday -> Monday
	assert.Equal(t, date(2026, 8, 31), NextTradingDay(date(2026, 8, 28)))
	// Wednesday -> Thursday
	assert.Equal(t, date(2026, 8, 27), NextTradingDay(date(2026, 8, 26)))
}

func TestPrevTradingDay_SkipsWeekend(t *testing.T) {
	// Monday -> Friday
	assert.Equal(t, date(2026, 8, 28), PrevTradingDay(date(2026, 8, 31)))
}

func TestAddTradingDays(t *testing.T) {
	// Thursday + 2 trading days = Monday
	assert.Equal(t, date(2026, 8, 31), AddTradingDays(date(2026, 8, 27), 2))
}

func TestTradingDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"full week", date(2026, 8, 24), date(2026, 8, 28), 5},
		{"spans weekend", date(2026, 8, 28), date(2026, 8, 31), 2},
		{"weekend only", date(2026, 8, 29), date(2026, 8, 30), 0},
		{"inverted range", date(2026, 8, 31), date(2026, 8, 28), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TradingDaysBetween(tt.from, tt.to))
		})
	}
}

func TestTargetDates(t *testing.T) {
	// Thursday as-of, horizon 5: Fri, Mon, Tue, Wed, Thu
	got := TargetDates(date(2026, 8, 27), 5)

	want := []time.Time{
		date(2026, 8, 28),
		date(2026, 8, 31),
		date(2026, 9, 1),
		date(2026, 9, 2),
		date(2026, 9, 3),
	}
	assert.Equal(t, want, got)
}
