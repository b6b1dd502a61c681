package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	"github.com/hackgods/clinic-appointment-booking/internal/slots"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentExpired       = "APPOINTMENT_EXPIRED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
)

var (
	ErrBadRequest              = errors.New("bad request")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrSlotUnavailable         = errors.New("requested time is not offered")
)

// SlotOffer is the slot generator as seen by the booking flow.
type SlotOffer interface {
	Generate(ctx context.Context, q slots.Query) (slots.Result, error)
}

type Service struct {
	repo    Repository
	offer   SlotOffer
	emitter notify.Emitter
	log     zerolog.Logger
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo Repository, offer SlotOffer, emitter notify.Emitter, logger zerolog.Logger, opts ...Option) *Service {
	if emitter == nil {
		emitter = notify.Nop{}
	}
	s := &Service{
		repo:    repo,
		offer:   offer,
		emitter: emitter,
		log:     logger.With().Str("component", "appointment").Logger(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type timeRange struct {
	date  time.Time
	start int
	end   int
}

func parseRange(date time.Time, start, end string) (timeRange, error) {
	if date.IsZero() {
		return timeRange{}, fmt.Errorf("%w: date is required", ErrBadRequest)
	}
	s, err := timeofday.Parse(start)
	if err != nil {
		return timeRange{}, fmt.Errorf("%w: start_time: %w", ErrBadRequest, err)
	}
	e, err := timeofday.Parse(end)
	if err != nil {
		return timeRange{}, fmt.Errorf("%w: end_time: %w", ErrBadRequest, err)
	}
	if s >= e {
		return timeRange{}, fmt.Errorf("%w: start_time must be before end_time", ErrBadRequest)
	}
	return timeRange{date: timeofday.DateOf(date), start: s, end: e}, nil
}

// CreateAppointment books req.Target for the referenced patient.
//
// The slot status check is only a fast path. The uniqueness of live
// appointments per doctor, clinic, date and start time is enforced by the
// store, and losing that race is reported as ErrSlotAlreadyBooked.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if req.AdminID == uuid.Nil || req.DoctorID == uuid.Nil || req.ClinicID == uuid.Nil {
		return nil, fmt.Errorf("%w: admin, doctor and clinic are required", ErrBadRequest)
	}
	phone := strings.TrimSpace(req.Patient.Phone)
	chatID := strings.TrimSpace(req.Patient.ChatID)
	if phone == "" && chatID == "" {
		return nil, fmt.Errorf("%w: patient phone or chat id is required", ErrBadRequest)
	}

	var slotTarget *SlotTarget
	var window timeRange

	switch t := req.Target.(type) {
	case SlotTarget:
		r, err := parseRange(t.Date, t.StartTime, t.EndTime)
		if err != nil && t.SlotID == uuid.Nil {
			return nil, err
		}
		window = r
		slotTarget = &t
	case RangeTarget:
		r, err := parseRange(t.Date, t.StartTime, t.EndTime)
		if err != nil {
			return nil, err
		}
		window = r
	case GeneratedTarget:
		r, err := s.resolveGenerated(ctx, req, t)
		if err != nil {
			return nil, err
		}
		window = r
	default:
		return nil, fmt.Errorf("%w: a slot, a time range or a generated time is required", ErrBadRequest)
	}

	patient := Patient{
		ID:          uuid.New(),
		AdminID:     req.AdminID,
		FullName:    strings.TrimSpace(req.Patient.Name),
		PatientType: PatientTypeNew,
	}
	if patient.FullName == "" {
		patient.FullName = DefaultPatientName
	}
	if phone != "" {
		patient.Phone = &phone
	}
	if chatID != "" {
		patient.ChatID = &chatID
	}

	var created *Appointment
	err := s.repo.InTx(ctx, func(tx Repository) error {
		p, err := tx.UpsertPatient(ctx, patient)
		if err != nil {
			return fmt.Errorf("resolve patient: %w", err)
		}

		appt := Appointment{
			ID:          uuid.New(),
			PatientID:   p.ID,
			DoctorID:    req.DoctorID,
			ClinicID:    req.ClinicID,
			AdminID:     req.AdminID,
			Status:      StatusPending,
			Date:        window.date,
			StartMinute: window.start,
			EndMinute:   window.end,
			Notes:       req.Notes,
		}

		if slotTarget != nil {
			slot, err := s.bookSlot(ctx, tx, req, *slotTarget, window)
			if err != nil {
				return err
			}
			appt.SlotID = &slot.ID
			appt.Date = slot.Date
			appt.StartMinute = slot.StartMinute
			appt.EndMinute = slot.EndMinute
		}

		a, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, eventPayload(created))
	s.publish(ctx, created, notify.EventBookingCreated)

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("clinic_id", created.ClinicID.String()).
		Str("date", timeofday.FormatDate(created.Date)).
		Str("start", timeofday.Format(created.StartMinute)).
		Msg("appointment created")

	return created, nil
}

// bookSlot gets or materializes the target slot and moves it to BOOKED.
func (s *Service) bookSlot(ctx context.Context, tx Repository, req CreateRequest, t SlotTarget, window timeRange) (*Slot, error) {
	var slot *Slot
	var err error

	if t.SlotID != uuid.Nil {
		slot, err = tx.GetSlotByID(ctx, t.SlotID)
		if err != nil && !errors.Is(err, ErrSlotNotFound) {
			return nil, fmt.Errorf("load slot: %w", err)
		}
	}

	if slot == nil {
		if window.date.IsZero() {
			return nil, fmt.Errorf("%w: date, start_time and end_time are required to create a slot", ErrBadRequest)
		}
		id := t.SlotID
		if id == uuid.Nil {
			id = uuid.New()
		}
		slot, err = tx.EnsureSlot(ctx, Slot{
			ID:          id,
			DoctorID:    req.DoctorID,
			ClinicID:    req.ClinicID,
			Date:        window.date,
			StartMinute: window.start,
			EndMinute:   window.end,
			Status:      SlotAvailable,
		})
		if err != nil {
			return nil, fmt.Errorf("materialize slot: %w", err)
		}
	}

	if slot.DoctorID != req.DoctorID || slot.ClinicID != req.ClinicID {
		return nil, fmt.Errorf("%w: slot belongs to another doctor or clinic", ErrBadRequest)
	}
	if slot.Status == SlotBooked {
		return nil, ErrSlotAlreadyBooked
	}

	booked, err := tx.UpdateSlotStatus(ctx, slot.ID, SlotAvailable, SlotBooked)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}
	return booked, nil
}

func (s *Service) resolveGenerated(ctx context.Context, req CreateRequest, t GeneratedTarget) (timeRange, error) {
	if t.Date.IsZero() {
		return timeRange{}, fmt.Errorf("%w: date is required", ErrBadRequest)
	}
	start, err := timeofday.Parse(t.Time)
	if err != nil {
		return timeRange{}, fmt.Errorf("%w: time: %w", ErrBadRequest, err)
	}
	if s.offer == nil {
		return timeRange{}, fmt.Errorf("%w: slot generation is not configured", ErrBadRequest)
	}

	doctorID := req.DoctorID
	res, err := s.offer.Generate(ctx, slots.Query{ClinicID: req.ClinicID, Date: t.Date, DoctorID: &doctorID})
	if err != nil {
		return timeRange{}, fmt.Errorf("generate slots: %w", err)
	}
	if !res.Contains(timeofday.Format(start)) {
		return timeRange{}, fmt.Errorf("%w: %s", ErrSlotUnavailable, timeofday.Format(start))
	}

	end := start + res.SlotDuration
	if end > timeofday.MinutesPerDay-1 {
		end = timeofday.MinutesPerDay - 1
	}
	return timeRange{date: timeofday.DateOf(t.Date), start: start, end: end}, nil
}

// UpdateStatus moves an appointment to status. Cancelling or rejecting
// frees its materialized slot in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	var from Status
	err = s.repo.InTx(ctx, func(tx Repository) error {
		current, err := tx.GetAppointmentByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		from = current.Status

		if current.Status == to {
			updated = current
			return nil
		}
		if !current.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
		}

		a, err := tx.UpdateAppointmentStatus(ctx, id, current.Status, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Lost a race with another status change.
				return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
			}
			return fmt.Errorf("update appointment status: %w", err)
		}

		if to.releasesSlot() {
			if err := releaseSlot(ctx, tx, a); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from == to {
		return updated, nil
	}

	payload := eventPayload(updated)
	payload["previous_status"] = from
	s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, payload)
	s.publish(ctx, updated, notify.EventAppointmentStatusChange)

	return updated, nil
}

func releaseSlot(ctx context.Context, tx Repository, a *Appointment) error {
	if a.SlotID == nil {
		return nil
	}
	_, err := tx.UpdateSlotStatus(ctx, *a.SlotID, SlotBooked, SlotAvailable)
	if err != nil && !errors.Is(err, ErrSlotNotFound) {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// ListAppointments returns the newest appointments matching f.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// DeleteAppointment removes an appointment and frees its slot.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	var deleted *Appointment
	err := s.repo.InTx(ctx, func(tx Repository) error {
		a, err := tx.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		if a.Status.Live() {
			if err := releaseSlot(ctx, tx, a); err != nil {
				return err
			}
		}
		deleted = a
		return nil
	})
	if err != nil {
		return err
	}

	s.logEvent(ctx, deleted.ID, EventAppointmentDeleted, eventPayload(deleted))
	return nil
}

// ExpireStalePending rejects PENDING appointments dated before today and
// frees their slots. It is intended to be called by the worker periodically.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	today := timeofday.DateOf(s.now().In(s.loc))

	stale, err := s.repo.FindStalePending(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		var updated *Appointment
		err := s.repo.InTx(ctx, func(tx Repository) error {
			a, err := tx.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusRejected)
			if err != nil {
				return err
			}
			updated = a
			return releaseSlot(ctx, tx, a)
		})
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			}
			continue
		}

		expired++
		payload := eventPayload(updated)
		payload["reason"] = "worker"
		s.logEvent(ctx, updated.ID, EventAppointmentExpired, payload)
		s.publish(ctx, updated, notify.EventAppointmentStatusChange)
	}

	return expired, nil
}

// BookedTimes exposes the booked start minutes to the slot generator.
func (s *Service) BookedTimes(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) ([]int, error) {
	return s.repo.BookedTimes(ctx, clinicID, doctorID, date)
}

func eventPayload(a *Appointment) map[string]any {
	return map[string]any{
		"appointment_id": a.ID.String(),
		"patient_id":     a.PatientID.String(),
		"doctor_id":      a.DoctorID.String(),
		"clinic_id":      a.ClinicID.String(),
		"status":         a.Status,
		"date":           timeofday.FormatDate(a.Date),
		"start_time":     timeofday.Format(a.StartMinute),
		"end_time":       timeofday.Format(a.EndMinute),
	}
}

func (s *Service) publish(ctx context.Context, a *Appointment, event string) {
	room := notify.RoomKey(a.PatientID, a.DoctorID)
	if err := s.emitter.Publish(ctx, room, event, eventPayload(a)); err != nil {
		s.log.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("event", event).
			Msg("failed to publish notification")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
