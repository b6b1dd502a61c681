package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

var fixedNow = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	schedules *schedule.Service
	entries   *schedule.MemoryRepository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	entries := schedule.NewMemoryRepository()
	schedules := schedule.NewService(entries, redisclient.NewLocalLocker(), zerolog.Nop(),
		schedule.WithClock(func() time.Time { return fixedNow }, time.UTC))
	return harness{
		svc:       NewService(NewMemoryRepository(entries), schedules, zerolog.Nop()),
		schedules: schedules,
		entries:   entries,
	}
}

func strPtr(s string) *string { return &s }

func TestService_CreateWithInitialSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin, doctor := uuid.New(), uuid.New()

	c, err := h.svc.Create(ctx, CreateRequest{
		AdminID:  &admin,
		DoctorID: &doctor,
		Name:     "  North Clinic ",
		Location: strPtr("Main St 1"),
		Schedule: []schedule.Input{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", SlotDuration: 20},
			{DayOfWeek: 3, StartTime: "14:00", EndTime: "17:00"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Name != "North Clinic" || c.Status != StatusActive || c.AdminID != admin {
		t.Fatalf("clinic = %+v", c)
	}

	entries, _ := h.entries.List(ctx, schedule.Filter{ClinicID: &c.ID})
	if len(entries) != 2 {
		t.Fatalf("schedule entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.DoctorID != doctor || e.AdminID == nil || *e.AdminID != admin {
			t.Fatalf("entry owner = %+v", e)
		}
	}
}

func TestService_CreateRejectsOverlapAtomically(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin, doctor := uuid.New(), uuid.New()

	first, err := h.svc.Create(ctx, CreateRequest{
		AdminID: &admin, DoctorID: &doctor, Name: "First",
		Schedule: []schedule.Input{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The doctor is already busy on Monday morning at the first clinic.
	_, err = h.svc.Create(ctx, CreateRequest{
		AdminID: &admin, DoctorID: &doctor, Name: "Second",
		Schedule: []schedule.Input{
			{DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00"},
			{DayOfWeek: 1, StartTime: "09:30", EndTime: "11:00"},
		},
	})
	if !errors.Is(err, schedule.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	clinics, _ := h.svc.List(ctx, Filter{AdminID: &admin})
	if len(clinics) != 1 || clinics[0].ID != first.ID {
		t.Fatalf("a rejected create must leave no clinic, got %d", len(clinics))
	}
	entries, _ := h.entries.List(ctx, schedule.Filter{DoctorID: &doctor})
	if len(entries) != 1 {
		t.Fatalf("a rejected create must leave no entries, got %d", len(entries))
	}
}

func TestService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	admin := uuid.New()

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"missing admin", CreateRequest{Name: "x"}, ErrAdminRequired},
		{"blank name", CreateRequest{AdminID: &admin, Name: "  "}, ErrInvalidInput},
		{"bad status", CreateRequest{AdminID: &admin, Name: "x", Status: "OPEN"}, ErrInvalidInput},
		{"schedule without doctor", CreateRequest{
			AdminID: &admin, Name: "x",
			Schedule: []schedule.Input{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
		}, ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := h.svc.Create(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestService_UpdateAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adminA, adminB, doctor := uuid.New(), uuid.New(), uuid.New()

	a, _ := h.svc.Create(ctx, CreateRequest{AdminID: &adminA, DoctorID: &doctor, Name: "A"})
	if _, err := h.svc.Create(ctx, CreateRequest{AdminID: &adminB, Name: "B"}); err != nil {
		t.Fatal(err)
	}

	inactive := StatusInactive
	updated, err := h.svc.Update(ctx, a.ID, Patch{Name: strPtr("A2"), Phone: strPtr("555"), Status: &inactive})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "A2" || *updated.Phone != "555" || updated.Status != StatusInactive {
		t.Fatalf("updated = %+v", updated)
	}

	bogus := Status("CLOSED")
	if _, err := h.svc.Update(ctx, a.ID, Patch{Status: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad status: %v", err)
	}
	if _, err := h.svc.Update(ctx, uuid.New(), Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing clinic: %v", err)
	}

	byDoctor, _ := h.svc.List(ctx, Filter{DoctorID: &doctor})
	if len(byDoctor) != 1 || byDoctor[0].ID != a.ID {
		t.Fatalf("doctor filter = %+v", byDoctor)
	}
	all, _ := h.svc.List(ctx, Filter{})
	if len(all) != 2 {
		t.Fatalf("all = %d", len(all))
	}
	none, _ := h.svc.List(ctx, Filter{AdminID: ptrUUID(uuid.New())})
	if none == nil || len(none) != 0 {
		t.Fatalf("empty list should be non-nil and empty, got %#v", none)
	}
}

func TestService_DeleteCascadesSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin, doctor := uuid.New(), uuid.New()

	c, err := h.svc.Create(ctx, CreateRequest{
		AdminID: &admin, DoctorID: &doctor, Name: "Gone",
		Schedule: []schedule.Input{{DayOfWeek: 5, StartTime: "08:00", EndTime: "12:00"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.svc.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.svc.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if entries, _ := h.entries.List(ctx, schedule.Filter{DoctorID: &doctor}); len(entries) != 0 {
		t.Fatalf("schedule left behind: %d", len(entries))
	}
	if err := h.svc.Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}

	// The freed Friday morning can be scheduled again elsewhere.
	other := uuid.New()
	if _, err := h.schedules.Create(ctx, schedule.CreateRequest{
		DoctorID: doctor, ClinicID: &other,
		Input: schedule.Input{DayOfWeek: 5, StartTime: "08:00", EndTime: "12:00"},
	}); err != nil {
		t.Fatalf("reschedule after delete: %v", err)
	}
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }
