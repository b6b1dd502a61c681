package clinic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

type Service struct {
	repo      Repository
	schedules *schedule.Service
	log       zerolog.Logger
}

func NewService(repo Repository, schedules *schedule.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		schedules: schedules,
		log:       logger.With().Str("component", "clinic").Logger(),
	}
}

// Create stores a clinic. The initial schedule, if any, is checked against
// the doctor's existing entries under the doctor lock and written in the
// same transaction as the clinic row.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Clinic, error) {
	if req.AdminID == nil || *req.AdminID == uuid.Nil {
		return nil, ErrAdminRequired
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: clinic name is required", ErrInvalidInput)
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if len(req.Schedule) > 0 && req.DoctorID == nil {
		return nil, fmt.Errorf("%w: an initial schedule needs a doctor", ErrInvalidInput)
	}

	c := Clinic{
		ID:       uuid.New(),
		AdminID:  *req.AdminID,
		DoctorID: req.DoctorID,
		Name:     name,
		Phone:    req.Phone,
		Location: req.Location,
		Status:   status,
	}

	if len(req.Schedule) == 0 {
		created, err := s.repo.Create(ctx, c, nil)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("clinic_id", created.ID.String()).Msg("clinic created")
		return created, nil
	}

	var created *Clinic
	err := s.schedules.WithDoctorLock(ctx, *req.DoctorID, func(ctx context.Context) error {
		entries, err := s.schedules.Prepare(ctx, *req.DoctorID, &c.ID, req.AdminID, req.Schedule)
		if err != nil {
			return err
		}
		created, err = s.repo.Create(ctx, c, entries)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("clinic_id", created.ID.String()).
		Str("doctor_id", req.DoctorID.String()).
		Int("schedule_entries", len(req.Schedule)).
		Msg("clinic created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Clinic, error) {
	clinics, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	if clinics == nil {
		clinics = []Clinic{}
	}
	return clinics, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*Clinic, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: clinic name is required", ErrInvalidInput)
		}
		c.Name = name
	}
	if p.Phone != nil {
		c.Phone = p.Phone
	}
	if p.Location != nil {
		c.Location = p.Location
	}
	if p.Status != nil {
		if !validStatus(*p.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
		}
		c.Status = *p.Status
	}

	return s.repo.Update(ctx, *c)
}

// Delete removes the clinic and its schedule entries. Appointments keep
// their clinic id for history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("clinic_id", id.String()).Msg("clinic deleted")
	return nil
}
