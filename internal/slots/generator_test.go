package slots

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type fakeBookings struct {
	byDoctor map[uuid.UUID][]int
	err      error
}

func (f *fakeBookings) BookedTimes(_ context.Context, _ uuid.UUID, doctorID *uuid.UUID, _ time.Time) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []int
	for id, mins := range f.byDoctor {
		if doctorID != nil && *doctorID != id {
			continue
		}
		out = append(out, mins...)
	}
	return out, nil
}

// Monday 2026-10-19, 09:15 UTC.
var monday0915 = time.Date(2026, time.October, 19, 9, 15, 0, 0, time.UTC)

type fixture struct {
	repo     *schedule.MemoryRepository
	bookings *fakeBookings
	gen      *Generator
	doctor   uuid.UUID
	clinic   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     schedule.NewMemoryRepository(),
		bookings: &fakeBookings{byDoctor: map[uuid.UUID][]int{}},
		doctor:   uuid.New(),
		clinic:   uuid.New(),
	}
	f.gen = NewGenerator(f.repo, f.bookings, func() time.Time { return monday0915 }, time.UTC)
	return f
}

func (f *fixture) addEntry(t *testing.T, doctor uuid.UUID, day int, start, end string, duration int) {
	t.Helper()
	clinic := f.clinic
	_, err := f.repo.Create(context.Background(), schedule.Entry{
		DoctorID:      doctor,
		ClinicID:      &clinic,
		DayOfWeek:     day,
		StartMinute:   timeofday.MustParse(start),
		EndMinute:     timeofday.MustParse(end),
		SlotDuration:  duration,
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveTo:   time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := timeofday.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGenerate_MondayTwoWeeksOut(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := []string{"09:00", "09:30"}; !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("slots = %v, want %v", res.Slots, want)
	}
	if res.SlotDuration != 30 {
		t.Errorf("slot duration = %d", res.SlotDuration)
	}

	again, _ := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")})
	if !reflect.DeepEqual(res, again) {
		t.Fatalf("generation is not idempotent: %v vs %v", res, again)
	}
}

func TestGenerate_BookedTimeIsRemoved(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)
	f.bookings.byDoctor[f.doctor] = []int{timeofday.MustParse("09:00")}

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"09:30"}; !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("slots = %v, want %v", res.Slots, want)
	}
}

func TestGenerate_TodaySuppressesPastAndNow(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-10-19")})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"09:30"}; !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("slots = %v, want %v", res.Slots, want)
	}

	// A slot starting exactly now counts as past.
	f.gen.now = func() time.Time { return monday0915.Add(15 * time.Minute) }
	res, _ = f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-10-19")})
	if len(res.Slots) != 0 {
		t.Fatalf("slots = %v, want none", res.Slots)
	}
}

func TestGenerate_PastDateIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-10-12")})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Slots) != 0 {
		t.Fatalf("slots = %v, want none", res.Slots)
	}
}

func TestGenerate_NoScheduleIsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-03")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Slots == nil || len(res.Slots) != 0 {
		t.Fatalf("expected empty non-nil slots, got %#v", res.Slots)
	}
}

func TestGenerate_MissingQuery(t *testing.T) {
	f := newFixture(t)

	if _, err := f.gen.Generate(context.Background(), Query{Date: mustDate(t, "2026-11-02")}); !errors.Is(err, ErrMissingQuery) {
		t.Errorf("missing clinic: got %v", err)
	}
	if _, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic}); !errors.Is(err, ErrMissingQuery) {
		t.Errorf("missing date: got %v", err)
	}
}

func TestGenerate_MergesEntriesDedupedAndSorted(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.addEntry(t, f.doctor, 1, "14:00", "15:00", 30)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 20)
	f.addEntry(t, other, 1, "09:30", "10:30", 30)

	res, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"09:00", "09:20", "09:30", "09:40", "10:00", "14:00", "14:30"}
	if !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("slots = %v, want %v", res.Slots, want)
	}
	if res.SlotDuration != 20 {
		t.Errorf("slot duration should come from the earliest entry, got %d", res.SlotDuration)
	}

	res, _ = f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02"), DoctorID: &other})
	if want := []string{"09:30", "10:00"}; !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("doctor filter: slots = %v, want %v", res.Slots, want)
	}
}

func TestGenerate_DoctorFilterNarrowsBookedTimes(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)
	f.bookings.byDoctor[other] = []int{timeofday.MustParse("09:00")}

	res, _ := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02"), DoctorID: &f.doctor})
	if want := []string{"09:00", "09:30"}; !reflect.DeepEqual(res.Slots, want) {
		t.Fatalf("another doctor's booking must not hide this doctor's slot, got %v", res.Slots)
	}
}

func TestGenerate_RespectsEffectiveWindow(t *testing.T) {
	f := newFixture(t)
	clinic := f.clinic
	_, err := f.repo.Create(context.Background(), schedule.Entry{
		DoctorID:      f.doctor,
		ClinicID:      &clinic,
		DayOfWeek:     1,
		StartMinute:   timeofday.MustParse("09:00"),
		EndMinute:     timeofday.MustParse("10:00"),
		SlotDuration:  30,
		EffectiveFrom: mustDate(t, "2026-10-01"),
		EffectiveTo:   mustDate(t, "2026-10-31"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, _ := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-10-26")})
	if len(res.Slots) != 2 {
		t.Fatalf("inside window: %v", res.Slots)
	}
	res, _ = f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")})
	if len(res.Slots) != 0 {
		t.Fatalf("outside window: %v", res.Slots)
	}
}

func TestGenerate_BookingSourceError(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, f.doctor, 1, "09:00", "10:00", 30)
	boom := errors.New("boom")
	f.bookings.err = boom

	if _, err := f.gen.Generate(context.Background(), Query{ClinicID: f.clinic, Date: mustDate(t, "2026-11-02")}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestWalkCount(t *testing.T) {
	for start := 0; start < 120; start += 7 {
		for end := start + 1; end <= 240; end += 11 {
			for step := 1; step <= 60; step += 4 {
				got := Walk(start, end, step)
				span := end - start
				want := span / step
				if span%step != 0 {
					want++
				}
				if len(got) != want {
					t.Fatalf("Walk(%d,%d,%d) produced %d slots, want %d", start, end, step, len(got), want)
				}
				for i, m := range got {
					if m != start+i*step || m >= end {
						t.Fatalf("Walk(%d,%d,%d)[%d] = %d", start, end, step, i, m)
					}
				}
			}
		}
	}
}

func TestWalkDoesNotTrimFinalSlot(t *testing.T) {
	got := Walk(timeofday.MustParse("09:00"), timeofday.MustParse("10:00"), 45)
	if len(got) != 2 || timeofday.Format(got[1]) != "09:45" {
		t.Fatalf("Walk = %v", got)
	}
}

func TestResultContains(t *testing.T) {
	r := Result{Slots: []string{"09:00", "09:30", "10:00"}}
	if !r.Contains("09:30") || r.Contains("09:15") {
		t.Fatal("Contains mismatch")
	}
}
