package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled, StatusRejected},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusRejected},
}

// ParseStatus accepts any casing of the five status names.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: %w %q", ErrBadRequest, ErrInvalidStatus, s)
}

// Live reports whether the appointment still occupies its time.
func (s Status) Live() bool {
	return s != StatusCancelled && s != StatusRejected
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// releasesSlot reports whether entering s frees a materialized slot.
func (s Status) releasesSlot() bool {
	return !s.Live()
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
)

const (
	PatientTypeNew     = "NEW"
	DefaultPatientName = "New Patient"
	defaultListLimit   = 20
	maxListLimit       = 100
)

type Patient struct {
	ID          uuid.UUID
	AdminID     uuid.UUID
	FullName    string
	Phone       *string
	ChatID      *string
	PatientType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Slot is a materialized bookable unit. Times are minutes of day and Date
// is a calendar date at midnight UTC.
type Slot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	ClinicID    uuid.UUID
	ScheduleID  *uuid.UUID
	Date        time.Time
	StartMinute int
	EndMinute   int
	Status      SlotStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Appointment is always held in canonical form: Date, StartMinute and
// EndMinute are filled even for rows that only reference a slot.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ClinicID    uuid.UUID
	AdminID     uuid.UUID
	SlotID      *uuid.UUID
	Status      Status
	Date        time.Time
	StartMinute int
	EndMinute   int
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// PatientRef identifies the patient of a booking by phone or chat id.
type PatientRef struct {
	Phone  string
	ChatID string
	Name   string
}

// Target selects the time being booked. It is one of SlotTarget,
// RangeTarget or GeneratedTarget.
type Target interface {
	isTarget()
}

// SlotTarget books a materialized slot, creating it at Date/StartTime/EndTime
// when SlotID does not exist yet.
type SlotTarget struct {
	SlotID    uuid.UUID
	Date      time.Time
	StartTime string
	EndTime   string
}

// RangeTarget books an explicit date and time range without a slot row.
type RangeTarget struct {
	Date      time.Time
	StartTime string
	EndTime   string
}

// GeneratedTarget books a start time that the slot generator currently
// offers; the end follows from the schedule's slot duration.
type GeneratedTarget struct {
	Date time.Time
	Time string
}

func (SlotTarget) isTarget()      {}
func (RangeTarget) isTarget()     {}
func (GeneratedTarget) isTarget() {}

type CreateRequest struct {
	AdminID  uuid.UUID
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Patient  PatientRef
	Target   Target
	Notes    *string
}

type ListFilter struct {
	AdminID   *uuid.UUID
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	ClinicID  *uuid.UUID
	Date      *time.Time
	Status    *Status
	Limit     int
	Offset    int
}

func (f ListFilter) Match(a Appointment) bool {
	if f.AdminID != nil && a.AdminID != *f.AdminID {
		return false
	}
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.ClinicID != nil && a.ClinicID != *f.ClinicID {
		return false
	}
	if f.Date != nil && !a.Date.Equal(*f.Date) {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	return true
}
