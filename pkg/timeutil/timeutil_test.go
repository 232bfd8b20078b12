package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 10, 23, 45, 12, 0, TokyoTZ)
	start := StartOfDay(ts)

	assert.Equal(t, 2026, start.Year())
	assert.Equal(t, time.March, start.Month())
	assert.Equal(t, 10, start.Day())
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 0, start.Minute())
}

func TestStartOfDay_ConvertsFromUTC(t *testing.T) {
	// 2026-03-10 20:00 UTC is already 2026-03-11 05:00 in Tokyo.
	ts := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	start := StartOfDay(ts)

	assert.Equal(t, 11, start.Day())
}

func TestSameDay(t *testing.T) {
	a := Date(2026, 3, 10)
	b := time.Date(2026, 3, 10, 23, 59, 59, 0, TokyoTZ)
	c := Date(2026, 3, 11)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}

func TestIsYesterdayOf(t *testing.T) {
	today := Date(2026, 3, 11)

	assert.True(t, IsYesterdayOf(Date(2026, 3, 10), today))
	assert.False(t, IsYesterdayOf(Date(2026, 3, 9), today))
	assert.False(t, IsYesterdayOf(today, today))
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", Date(2026, 3, 10), Date(2026, 3, 10), 0},
		{"next day", Date(2026, 3, 10), Date(2026, 3, 11), 1},
		{"across midnight", time.Date(2026, 3, 10, 23, 59, 0, 0, TokyoTZ), time.Date(2026, 3, 11, 0, 1, 0, 0, TokyoTZ), 1},
		{"two weeks", Date(2026, 3, 1), Date(2026, 3, 15), 14},
		{"backwards", Date(2026, 3, 15), Date(2026, 3, 1), -14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.from, tt.to))
		})
	}
}

func TestFormatAndParseDate(t *testing.T) {
	d := Date(2026, 12, 5)
	assert.Equal(t, "2026-12-05", FormatDate(d))

	parsed, err := ParseDate("2026-12-05")
	assert.NoError(t, err)
	assert.True(t, SameDay(d, parsed))
}

func TestHoursSince(t *testing.T) {
	now := Date(2026, 3, 11)

	assert.Equal(t, 0.0, HoursSince(time.Time{}, now))
	assert.InDelta(t, 24.0, HoursSince(Date(2026, 3, 10), now), 0.001)
}
