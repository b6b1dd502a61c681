package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. It enforces the same
// uniqueness rules as the Postgres schema so booking races behave alike.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	patients     map[uuid.UUID]Patient
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func newMemoryState() *memoryState {
	return &memoryState{
		patients:     make(map[uuid.UUID]Patient),
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	c.events = append(c.events, s.events...)
	return c
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState(), now: time.Now}
}

// Events returns a copy of the audit log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.state.events...)
}

func (r *MemoryRepository) do(fn func(t memoryTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(memoryTx{r.state, r.now})
}

func (r *MemoryRepository) UpsertPatient(ctx context.Context, p Patient) (out *Patient, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.UpsertPatient(ctx, p); return err })
	return
}

func (r *MemoryRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (out *Patient, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.GetPatientByID(ctx, id); return err })
	return
}

func (r *MemoryRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (out *Slot, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.GetSlotByID(ctx, id); return err })
	return
}

func (r *MemoryRepository) EnsureSlot(ctx context.Context, s Slot) (out *Slot, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.EnsureSlot(ctx, s); return err })
	return
}

func (r *MemoryRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (out *Slot, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.UpdateSlotStatus(ctx, id, from, to); return err })
	return
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, a Appointment) (out *Appointment, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.CreateAppointment(ctx, a); return err })
	return
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (out *Appointment, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.GetAppointmentByID(ctx, id); return err })
	return
}

func (r *MemoryRepository) ListAppointments(ctx context.Context, f ListFilter) (out []Appointment, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.ListAppointments(ctx, f); return err })
	return
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (out *Appointment, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.UpdateAppointmentStatus(ctx, id, from, to); return err })
	return
}

func (r *MemoryRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return r.do(func(t memoryTx) error { return t.DeleteAppointment(ctx, id) })
}

func (r *MemoryRepository) FindStalePending(ctx context.Context, before time.Time) (out []Appointment, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.FindStalePending(ctx, before); return err })
	return
}

func (r *MemoryRepository) BookedTimes(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) (out []int, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.BookedTimes(ctx, clinicID, doctorID, date); return err })
	return
}

func (r *MemoryRepository) PatientsWithAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time, to *time.Time) (out []uuid.UUID, err error) {
	err = r.do(func(t memoryTx) error { out, err = t.PatientsWithAppointments(ctx, doctorID, from, to); return err })
	return
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return r.do(func(t memoryTx) error { return t.InsertEvent(ctx, ev) })
}

// InTx runs fn against a copy of the state and publishes it only when fn
// succeeds. Transactions are serialized.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(memoryTx{work, r.now}); err != nil {
		return err
	}
	r.state = work
	return nil
}

type memoryTx struct {
	s   *memoryState
	now func() time.Time
}

func (t memoryTx) UpsertPatient(_ context.Context, p Patient) (*Patient, error) {
	for id, existing := range t.s.patients {
		if existing.AdminID != p.AdminID {
			continue
		}
		samePhone := p.Phone != nil && existing.Phone != nil && *existing.Phone == *p.Phone
		sameChat := p.Phone == nil && p.ChatID != nil && existing.ChatID != nil && *existing.ChatID == *p.ChatID
		if !samePhone && !sameChat {
			continue
		}
		if existing.FullName == DefaultPatientName && p.FullName != "" {
			existing.FullName = p.FullName
		}
		if existing.ChatID == nil {
			existing.ChatID = p.ChatID
		}
		existing.UpdatedAt = t.now().UTC()
		t.s.patients[id] = existing
		return &existing, nil
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := t.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.s.patients[p.ID] = p
	return &p, nil
}

func (t memoryTx) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := t.s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (t memoryTx) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := t.s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (t memoryTx) EnsureSlot(_ context.Context, s Slot) (*Slot, error) {
	for _, existing := range t.s.slots {
		if existing.DoctorID == s.DoctorID && existing.ClinicID == s.ClinicID &&
			existing.Date.Equal(s.Date) && existing.StartMinute == s.StartMinute {
			return &existing, nil
		}
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SlotAvailable
	}
	now := t.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	t.s.slots[s.ID] = s
	return &s, nil
}

func (t memoryTx) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	s, ok := t.s.slots[id]
	if !ok || s.Status != from {
		return nil, ErrSlotNotFound
	}
	s.Status = to
	s.UpdatedAt = t.now().UTC()
	t.s.slots[id] = s
	return &s, nil
}

func (t memoryTx) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if a.Status.Live() {
		for _, other := range t.s.appointments {
			if other.Status.Live() && other.DoctorID == a.DoctorID && other.ClinicID == a.ClinicID &&
				other.Date.Equal(a.Date) && other.StartMinute == a.StartMinute {
				return nil, ErrSlotAlreadyBooked
			}
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := t.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.s.appointments[a.ID] = a
	return &a, nil
}

func (t memoryTx) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t memoryTx) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range t.s.appointments {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if f.Offset >= len(out) {
		return []Appointment{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t memoryTx) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, ok := t.s.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = t.now().UTC()
	t.s.appointments[id] = a
	return &a, nil
}

func (t memoryTx) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(t.s.appointments, id)
	return nil
}

func (t memoryTx) FindStalePending(_ context.Context, before time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.s.appointments {
		if a.Status == StatusPending && a.Date.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t memoryTx) BookedTimes(_ context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) ([]int, error) {
	var out []int
	for _, a := range t.s.appointments {
		if a.ClinicID != clinicID || !a.Date.Equal(date) || !a.Status.Live() {
			continue
		}
		if doctorID != nil && a.DoctorID != *doctorID {
			continue
		}
		out = append(out, a.StartMinute)
	}
	for _, s := range t.s.slots {
		if s.ClinicID != clinicID || !s.Date.Equal(date) || s.Status != SlotBooked {
			continue
		}
		if doctorID != nil && s.DoctorID != *doctorID {
			continue
		}
		out = append(out, s.StartMinute)
	}
	return out, nil
}

func (t memoryTx) PatientsWithAppointments(_ context.Context, doctorID uuid.UUID, from time.Time, to *time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, a := range t.s.appointments {
		if a.DoctorID != doctorID || !a.Status.Live() || a.Date.Before(from) {
			continue
		}
		if to != nil && a.Date.After(*to) {
			continue
		}
		if _, dup := seen[a.PatientID]; dup {
			continue
		}
		seen[a.PatientID] = struct{}{}
		out = append(out, a.PatientID)
	}
	return out, nil
}

func (t memoryTx) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(t.s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now().UTC()
	}
	t.s.events = append(t.s.events, ev)
	return nil
}

func (t memoryTx) InTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(t)
}
