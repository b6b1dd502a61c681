package timeofday

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// ParseDate parses "YYYY-MM-DD" into a calendar date held as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf returns the calendar day of t as seen in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as "YYYY-MM-DD".
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// Weekday returns 0 (Sunday) through 6 (Saturday) for a calendar date.
func Weekday(d time.Time) int {
	return int(d.Weekday())
}

// DayName returns the English name of a day-of-week index.
func DayName(day int) string {
	if day < 0 || day >= len(dayNames) {
		return fmt.Sprintf("day %d", day)
	}
	return dayNames[day]
}

// MinuteOf returns the minute-of-day of t in its own location.
func MinuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
