// Package timeutil provides timezone utilities for Tokyo timezone (UTC+9).
// This is essential for StudyQuest as the user base studies in Japan and
// streak/schedule semantics are defined over Japanese calendar days.
// Handles date truncation, day arithmetic, and timezone-aware comparisons.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// TokyoTZ is the Tokyo timezone (UTC+9, no DST).
// Japan has not observed DST since 1951, so this is constant year-round.
var TokyoTZ = time.FixedZone("Asia/Tokyo", 9*60*60)

// Now returns the current time in Tokyo timezone.
func Now() time.Time {
	return time.Now().In(TokyoTZ)
}

// ToTokyo converts a time to Tokyo timezone.
func ToTokyo(t time.Time) time.Time {
	return t.In(TokyoTZ)
}

// Date creates a time in Tokyo timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, TokyoTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Tokyo timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToTokyo(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, TokyoTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in Tokyo timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToTokyo(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, TokyoTZ)
}

// AddDays returns the start of the day n calendar days after t.
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, n)
}

// SameDay reports whether two times fall on the same Tokyo calendar day.
func SameDay(a, b time.Time) bool {
	la, lb := ToTokyo(a), ToTokyo(b)
	return la.Year() == lb.Year() && la.Month() == lb.Month() && la.Day() == lb.Day()
}

// IsYesterdayOf reports whether candidate falls exactly one calendar day before ref.
func IsYesterdayOf(candidate, ref time.Time) bool {
	return SameDay(candidate, StartOfDay(ref).AddDate(0, 0, -1))
}

// DaysBetween returns the number of whole calendar days from a to b.
// Negative if b is before a. Both times are truncated to day boundaries
// first, so 23:59 -> 00:01 across midnight still counts as one day.
func DaysBetween(a, b time.Time) int {
	from := StartOfDay(a)
	to := StartOfDay(b)
	return int(to.Sub(from).Hours() / 24)
}

// FormatDate formats a time as "2006-01-02" in Tokyo timezone.
func FormatDate(t time.Time) string {
	return ToTokyo(t).Format("2006-01-02")
}

// ParseDate parses a "2006-01-02" string as a Tokyo calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, TokyoTZ)
}

// HoursSince returns the number of hours elapsed from t to now.
// Returns 0 for zero t.
func HoursSince(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t).Hours()
}
