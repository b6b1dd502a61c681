package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotAlreadyBooked   = errors.New("slot already booked")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// UpsertPatient returns the tenant's patient with p's phone (or chat id
	// when no phone is given), inserting p when there is none.
	UpsertPatient(ctx context.Context, p Patient) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// EnsureSlot inserts s unless a slot already exists for the same
	// doctor, clinic, date and start, and returns the stored row.
	EnsureSlot(ctx context.Context, s Slot) (*Slot, error)
	// UpdateSlotStatus changes status only from the given state; otherwise
	// it reports ErrSlotNotFound.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)

	// CreateAppointment reports ErrSlotAlreadyBooked when a live appointment
	// already holds the doctor, clinic, date and start time.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Expiry worker
	FindStalePending(ctx context.Context, before time.Time) ([]Appointment, error)

	// Slot generation and announcement targeting
	BookedTimes(ctx context.Context, clinicID uuid.UUID, doctorID *uuid.UUID, date time.Time) ([]int, error)
	PatientsWithAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time, to *time.Time) ([]uuid.UUID, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	InTx(ctx context.Context, fn func(tx Repository) error) error
}
