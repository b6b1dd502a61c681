package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

var fixedNow = time.Date(2026, time.October, 17, 9, 15, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryRepository, *redisclient.LocalLocker) {
	t.Helper()
	repo := NewMemoryRepository()
	locker := redisclient.NewLocalLocker()
	svc := NewService(repo, locker, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }, time.UTC))
	return svc, repo, locker
}

func TestService_CreateDefaultsWindow(t *testing.T) {
	svc, _, _ := newTestService(t)
	clinic := uuid.New()

	e, err := svc.Create(context.Background(), CreateRequest{
		DoctorID: uuid.New(),
		ClinicID: &clinic,
		Input:    Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if e.SlotDuration != DefaultSlotDuration {
		t.Errorf("slot duration = %d, want %d", e.SlotDuration, DefaultSlotDuration)
	}
	if got := timeofday.FormatDate(e.EffectiveFrom); got != "2026-10-17" {
		t.Errorf("effective_from = %s", got)
	}
	if got := timeofday.FormatDate(e.EffectiveTo); got != "2027-10-17" {
		t.Errorf("effective_to = %s", got)
	}
	if e.ID == uuid.Nil {
		t.Error("expected an assigned id")
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()

	_, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 1, StartTime: "10:00", EndTime: "09:00"}})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("reversed range: got %v, want ErrInvalidRange", err)
	}

	_, err = svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 1, StartTime: "10:00", EndTime: "10:00"}})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("empty range: got %v, want ErrInvalidRange", err)
	}

	_, err = svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 7, StartTime: "09:00", EndTime: "10:00"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad day: got %v, want ErrInvalidInput", err)
	}

	_, err = svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 1, StartTime: "nine", EndTime: "10:00"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad time: got %v, want ErrInvalidInput", err)
	}

	_, err = svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", SlotDuration: -5}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative duration: got %v, want ErrInvalidInput", err)
	}

	_, err = svc.Create(ctx, CreateRequest{Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing doctor: got %v, want ErrInvalidInput", err)
	}
}

func TestService_RejectsCrossClinicOverlap(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	clinicC, clinicD := uuid.New(), uuid.New()

	if _, err := svc.Create(ctx, CreateRequest{
		DoctorID: doctor, ClinicID: &clinicC,
		Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", SlotDuration: 30},
	}); err != nil {
		t.Fatalf("first entry: %v", err)
	}

	_, err := svc.Create(ctx, CreateRequest{
		DoctorID: doctor, ClinicID: &clinicD,
		Input: Input{DayOfWeek: 1, StartTime: "08:30", EndTime: "09:15"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Touching at the boundary is allowed.
	if _, err := svc.Create(ctx, CreateRequest{
		DoctorID: doctor, ClinicID: &clinicD,
		Input: Input{DayOfWeek: 1, StartTime: "10:00", EndTime: "11:00"},
	}); err != nil {
		t.Fatalf("adjacent entry: %v", err)
	}

	all, _ := repo.List(ctx, Filter{DoctorID: &doctor})
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
}

func TestService_UpdateExcludesItself(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()

	morning, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 2, StartTime: "09:00", EndTime: "12:00"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 2, StartTime: "14:00", EndTime: "17:00"}}); err != nil {
		t.Fatal(err)
	}

	end := "13:00"
	updated, err := svc.Update(ctx, morning.ID, Patch{EndTime: &end})
	if err != nil {
		t.Fatalf("extend morning: %v", err)
	}
	if updated.EndMinute != timeofday.MustParse("13:00") {
		t.Errorf("end = %s", timeofday.Format(updated.EndMinute))
	}

	end = "14:30"
	if _, err := svc.Update(ctx, morning.ID, Patch{EndTime: &end}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict with afternoon entry, got %v", err)
	}

	start := "13:30"
	if _, err := svc.Update(ctx, morning.ID, Patch{StartTime: &start}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}

	if _, err := svc.Update(ctx, uuid.New(), Patch{EndTime: &end}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateRequest{DoctorID: uuid.New(), Input: Input{DayOfWeek: 3, StartTime: "09:00", EndTime: "10:00"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestService_BusyLock(t *testing.T) {
	svc, _, locker := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()

	err := locker.WithLock(ctx, lockKey(doctor), func(ctx context.Context) error {
		_, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}})
		return err
	})
	if !errors.Is(err, ErrScheduleBusy) {
		t.Fatalf("expected ErrScheduleBusy, got %v", err)
	}
}

func TestService_ReplaceBulk(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	clinic, other := uuid.New(), uuid.New()

	monday, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &clinic, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}})
	if err != nil {
		t.Fatal(err)
	}
	stale, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &clinic, Input: Input{DayOfWeek: 1, StartTime: "15:00", EndTime: "16:00"}})
	if err != nil {
		t.Fatal(err)
	}
	friday, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &clinic, Input: Input{DayOfWeek: 5, StartTime: "09:00", EndTime: "10:00"}})
	if err != nil {
		t.Fatal(err)
	}
	elsewhere, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &other, Input: Input{DayOfWeek: 1, StartTime: "18:00", EndTime: "19:00"}})
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.ReplaceBulk(ctx, BulkRequest{
		DoctorID: doctor,
		ClinicID: &clinic,
		Items: []BulkItem{
			{ScheduleID: &monday.ID, Input: Input{DayOfWeek: 1, StartTime: "08:00", EndTime: "11:00", SlotDuration: 20}},
			{Input: Input{DayOfWeek: 1, StartTime: "13:00", EndTime: "14:00"}},
			{Input: Input{DayOfWeek: 3, StartTime: "09:00", EndTime: "12:00"}},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceBulk: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 saved entries, got %d", len(out))
	}
	if out[0].ID != monday.ID || out[0].SlotDuration != 20 {
		t.Errorf("referenced entry should be updated in place, got %+v", out[0])
	}

	if _, err := repo.Get(ctx, stale.ID); !errors.Is(err, ErrNotFound) {
		t.Error("unreferenced entry on a replaced day should be deleted")
	}
	if _, err := repo.Get(ctx, friday.ID); err != nil {
		t.Error("entries on untouched days must survive")
	}
	if _, err := repo.Get(ctx, elsewhere.ID); err != nil {
		t.Error("entries at other clinics must survive")
	}
}

func TestService_ReplaceBulkRejectsRepeatedID(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	clinic := uuid.New()

	monday, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &clinic, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ReplaceBulk(ctx, BulkRequest{
		DoctorID: doctor,
		ClinicID: &clinic,
		Items: []BulkItem{
			{ScheduleID: &monday.ID, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
			{ScheduleID: &monday.ID, Input: Input{DayOfWeek: 2, StartTime: "14:00", EndTime: "15:00"}},
		},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a repeated schedule_id, got %v", err)
	}

	stored, err := repo.Get(ctx, monday.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DayOfWeek != 1 || stored.StartMinute != timeofday.MustParse("09:00") {
		t.Errorf("entry changed by a rejected request: %+v", stored)
	}
}

func TestService_ReplaceBulkIsAtomic(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	clinic, other := uuid.New(), uuid.New()

	if _, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &clinic, Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, CreateRequest{DoctorID: doctor, ClinicID: &other, Input: Input{DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00"}}); err != nil {
		t.Fatal(err)
	}
	before, _ := repo.List(ctx, Filter{DoctorID: &doctor})

	cases := map[string][]BulkItem{
		"items collide with each other": {
			{Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "11:00"}},
			{Input: Input{DayOfWeek: 1, StartTime: "10:30", EndTime: "12:00"}},
		},
		"item collides with another clinic": {
			{Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
			{Input: Input{DayOfWeek: 2, StartTime: "09:30", EndTime: "10:30"}},
		},
		"one invalid range": {
			{Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
			{Input: Input{DayOfWeek: 4, StartTime: "12:00", EndTime: "11:00"}},
		},
		"unknown schedule id": {
			{ScheduleID: ptr(uuid.New()), Input: Input{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
		},
	}

	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ReplaceBulk(ctx, BulkRequest{DoctorID: doctor, ClinicID: &clinic, Items: items})
			if err == nil {
				t.Fatal("expected error")
			}
			after, _ := repo.List(ctx, Filter{DoctorID: &doctor})
			if len(after) != len(before) {
				t.Fatalf("store changed on failure: %d -> %d entries", len(before), len(after))
			}
			for i := range before {
				if after[i].ID != before[i].ID || after[i].StartMinute != before[i].StartMinute {
					t.Fatalf("entry %d changed on failure", i)
				}
			}
		})
	}
}

func TestService_Prepare(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	clinic := uuid.New()

	entries, err := svc.Prepare(ctx, doctor, &clinic, nil, []Input{
		{DayOfWeek: 1, StartTime: "9:00 AM", EndTime: "12:00 PM"},
		{DayOfWeek: 1, StartTime: "12:00", EndTime: "15:00"},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(entries) != 2 || entries[0].ID == uuid.Nil {
		t.Fatalf("unexpected entries %+v", entries)
	}

	_, err = svc.Prepare(ctx, doctor, &clinic, nil, []Input{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:01"},
		{DayOfWeek: 1, StartTime: "12:00", EndTime: "15:00"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
