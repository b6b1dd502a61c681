package clinic

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

var (
	ErrNotFound      = errors.New("clinic not found")
	ErrInvalidInput  = errors.New("invalid clinic")
	ErrAdminRequired = errors.New("admin id required")
)

type Clinic struct {
	ID        uuid.UUID
	AdminID   uuid.UUID
	DoctorID  *uuid.UUID
	Name      string
	Phone     *string
	Location  *string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateRequest creates a clinic and, when DoctorID is set, the doctor's
// initial weekly schedule there.
type CreateRequest struct {
	AdminID  *uuid.UUID
	DoctorID *uuid.UUID
	Name     string
	Phone    *string
	Location *string
	Status   Status
	Schedule []schedule.Input
}

type Patch struct {
	Name     *string
	Phone    *string
	Location *string
	Status   *Status
}

type Filter struct {
	AdminID  *uuid.UUID
	DoctorID *uuid.UUID
}

func (f Filter) Match(c Clinic) bool {
	if f.AdminID != nil && c.AdminID != *f.AdminID {
		return false
	}
	if f.DoctorID != nil && (c.DoctorID == nil || *c.DoctorID != *f.DoctorID) {
		return false
	}
	return true
}

func validStatus(s Status) bool {
	return s == StatusActive || s == StatusInactive
}
