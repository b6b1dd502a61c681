package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

const DefaultSlotDuration = 30

var (
	ErrNotFound     = errors.New("schedule not found")
	ErrInvalidRange = errors.New("start time must be before end time")
	ErrInvalidInput = errors.New("invalid schedule")
	ErrConflict     = errors.New("schedule overlaps an existing entry")
	ErrScheduleBusy = errors.New("schedule is being modified, please retry")
)

// Entry is one recurring weekly availability rule. Start and end are
// canonical minutes of day; the effective window holds calendar dates.
type Entry struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	ClinicID      *uuid.UUID
	AdminID       *uuid.UUID
	DayOfWeek     int
	StartMinute   int
	EndMinute     int
	SlotDuration  int
	EffectiveFrom time.Time
	EffectiveTo   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActiveOn reports whether date falls inside the effective window.
func (e Entry) ActiveOn(date time.Time) bool {
	if !e.EffectiveFrom.IsZero() && date.Before(e.EffectiveFrom) {
		return false
	}
	if !e.EffectiveTo.IsZero() && date.After(e.EffectiveTo) {
		return false
	}
	return true
}

// AtClinic reports whether the entry belongs to clinicID, where nil means
// the doctor's default schedule that is not tied to a clinic.
func (e Entry) AtClinic(clinicID *uuid.UUID) bool {
	if e.ClinicID == nil || clinicID == nil {
		return e.ClinicID == nil && clinicID == nil
	}
	return *e.ClinicID == *clinicID
}

// Filter narrows List. Nil fields match everything.
type Filter struct {
	DoctorID  *uuid.UUID
	ClinicID  *uuid.UUID
	DayOfWeek *int
	ExcludeID *uuid.UUID
}

func (f Filter) Match(e Entry) bool {
	if f.DoctorID != nil && e.DoctorID != *f.DoctorID {
		return false
	}
	if f.ClinicID != nil && (e.ClinicID == nil || *e.ClinicID != *f.ClinicID) {
		return false
	}
	if f.DayOfWeek != nil && e.DayOfWeek != *f.DayOfWeek {
		return false
	}
	if f.ExcludeID != nil && e.ID == *f.ExcludeID {
		return false
	}
	return true
}

// Input is the caller-facing shape of one entry. Times accept any format
// timeofday.Parse understands.
type Input struct {
	DayOfWeek     int
	StartTime     string
	EndTime       string
	SlotDuration  int
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

type CreateRequest struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	AdminID  *uuid.UUID
	Input
}

// Patch carries the fields of a single-entry update; nil leaves a field as is.
type Patch struct {
	ClinicID      *uuid.UUID
	DayOfWeek     *int
	StartTime     *string
	EndTime       *string
	SlotDuration  *int
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

type BulkItem struct {
	ScheduleID *uuid.UUID
	Input
}

// BulkRequest replaces, day by day, a doctor's entries at one clinic.
type BulkRequest struct {
	DoctorID uuid.UUID
	ClinicID *uuid.UUID
	AdminID  *uuid.UUID
	Items    []BulkItem
}

// ConflictError describes a rejected write. It matches ErrConflict.
type ConflictError struct {
	DayOfWeek   int
	StartMinute int
	EndMinute   int
	Existing    Entry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule %s-%s overlaps with an existing slot on %s (%s - %s)",
		timeofday.Format(e.StartMinute),
		timeofday.Format(e.EndMinute),
		timeofday.DayName(e.DayOfWeek),
		timeofday.Format(e.Existing.StartMinute),
		timeofday.Format(e.Existing.EndMinute),
	)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
