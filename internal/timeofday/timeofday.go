// Package timeofday normalizes the time encodings used across schedules and
// bookings into a canonical minute-of-day.
package timeofday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay bounds canonical values to [0, MinutesPerDay).
	MinutesPerDay = 24 * 60

	// Invalid is returned alongside ErrInvalidTime.
	Invalid = -1
)

var ErrInvalidTime = errors.New("invalid time of day")

// anchorDate is the reference day stored time-of-day values are pinned to.
var anchorDate = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Parse converts "HH:MM", "HH:MM:SS", "H:MM AM/PM" or an RFC 3339 timestamp
// into minutes since midnight. Timestamps contribute their UTC wall clock.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Invalid, ErrInvalidTime
	}

	if strings.ContainsRune(s, 'T') {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		return FromTime(t), nil
	}

	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "AM") || strings.HasSuffix(upper, "PM") {
		return parse12(upper)
	}
	return parse24(s)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) int {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parse24(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	if !digits(parts[0], 1, 2) || !digits(parts[1], 2, 2) {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h > 23 {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m > 59 {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if len(parts) == 3 {
		if !digits(parts[2], 2, 2) {
			return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec > 59 {
			return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}

	return h*60 + m, nil
}

func parse12(upper string) (int, error) {
	suffix := upper[len(upper)-2:]
	clock := strings.TrimSpace(upper[:len(upper)-2])

	parts := strings.Split(clock, ":")
	if len(parts) != 2 || !digits(parts[0], 1, 2) || !digits(parts[1], 2, 2) {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, upper)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 1 || h > 12 {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, upper)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m > 59 {
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidTime, upper)
	}

	if h == 12 {
		h = 0
	}
	if suffix == "PM" {
		h += 12
	}
	return h*60 + m, nil
}

// digits reports whether field is lo to hi ASCII digits long.
// strconv.Atoi alone would accept a sign.
func digits(field string, lo, hi int) bool {
	if len(field) < lo || len(field) > hi {
		return false
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return false
		}
	}
	return true
}

// FromTime reads the UTC wall clock of a stored time value.
func FromTime(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// Anchor returns the stored representation of a minute-of-day.
func Anchor(minutes int) time.Time {
	return anchorDate.Add(time.Duration(minutes) * time.Minute)
}

// Valid reports whether minutes is a canonical minute-of-day.
func Valid(minutes int) bool {
	return minutes >= 0 && minutes < MinutesPerDay
}

// Format renders a minute-of-day as zero-padded "HH:MM".
func Format(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// To12Hour converts a 24-hour string to its "H:MM AM/PM" display form.
func To12Hour(time24 string) (string, error) {
	m, err := parse24(strings.TrimSpace(time24))
	if err != nil {
		return "", err
	}

	h := m / 60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m%60, suffix), nil
}

// To24Hour converts an "H:MM AM/PM" string to canonical "HH:MM". Input that
// is already 24-hour is normalized.
func To24Hour(time12 string) (string, error) {
	m, err := Parse(time12)
	if err != nil {
		return "", err
	}
	return Format(m), nil
}
