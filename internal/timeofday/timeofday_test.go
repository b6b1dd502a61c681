package timeofday

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"09:00", 540},
		{"00:00", 0},
		{"23:59", 1439},
		{"14:30:00", 870},
		{"9:05 AM", 545},
		{"09:05 am", 545},
		{"12:00 AM", 0},
		{"12:30 AM", 30},
		{"12:00 PM", 720},
		{"1:15 PM", 795},
		{"11:59 PM", 1439},
		{"1970-01-01T09:30:00Z", 570},
		{"1970-01-01T10:00:00+01:00", 540},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{"", "9", "24:00", "12:60", "ab:cd", "13:00 PM", "0:30 AM", "9:5", "1970-01-01Tbad", "10:00:99",
		"9:+5", "+9:00", "-0:00", "09:00:+1", "09:00:5", "+1:05 PM", "9:-0 AM", "1:05:00 PM", "123:00"}

	for _, in := range inputs {
		got, err := Parse(in)
		if !errors.Is(err, ErrInvalidTime) {
			t.Errorf("Parse(%q): expected ErrInvalidTime, got %v", in, err)
		}
		if got != Invalid {
			t.Errorf("Parse(%q) = %d, want Invalid", in, got)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		s := Format(m)
		if len(s) != 5 {
			t.Fatalf("Format(%d) = %q, want fixed width", m, s)
		}
		back, err := Parse(s)
		if err != nil || back != m {
			t.Fatalf("Parse(Format(%d)) = %d, %v", m, back, err)
		}
	}
}

func TestTwelveHourConversionsAreLossless(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		s24 := Format(m)
		s12, err := To12Hour(s24)
		if err != nil {
			t.Fatalf("To12Hour(%q): %v", s24, err)
		}
		back, err := To24Hour(s12)
		if err != nil {
			t.Fatalf("To24Hour(%q): %v", s12, err)
		}
		if back != s24 {
			t.Fatalf("round trip %q -> %q -> %q", s24, s12, back)
		}
	}

	if got, _ := To12Hour("00:30"); got != "12:30 AM" {
		t.Errorf("To12Hour(00:30) = %q", got)
	}
	if got, _ := To12Hour("12:00"); got != "12:00 PM" {
		t.Errorf("To12Hour(12:00) = %q", got)
	}
}

func TestAnchorFromTime(t *testing.T) {
	a := Anchor(615)
	if a.Year() != 1970 || a.YearDay() != 1 {
		t.Fatalf("Anchor should sit on 1970-01-01, got %v", a)
	}
	if FromTime(a) != 615 {
		t.Fatalf("FromTime(Anchor(615)) = %d", FromTime(a))
	}

	loc := time.FixedZone("UTC+7", 7*3600)
	if got := FromTime(a.In(loc)); got != 615 {
		t.Fatalf("FromTime must read the UTC wall clock, got %d", got)
	}
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	if err != nil {
		t.Fatal(err)
	}
	if Weekday(d) != 1 {
		t.Fatalf("2026-10-19 is a Monday, got %d", Weekday(d))
	}
	if FormatDate(d) != "2026-10-19" {
		t.Fatalf("FormatDate = %s", FormatDate(d))
	}
	if DayName(Weekday(d)) != "Monday" {
		t.Fatalf("DayName = %s", DayName(Weekday(d)))
	}

	// Late evening west of UTC is still the local calendar day.
	loc := time.FixedZone("UTC-8", -8*3600)
	local := time.Date(2026, 10, 19, 23, 30, 0, 0, loc)
	if !DateOf(local).Equal(d) {
		t.Fatalf("DateOf(%v) = %v, want %v", local, DateOf(local), d)
	}

	if _, err := ParseDate("19/10/2026"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
