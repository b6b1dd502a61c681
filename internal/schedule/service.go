package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
	"github.com/hackgods/clinic-appointment-booking/internal/timeofday"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Service)

// WithClock sets the clock and clinic location used for effective-window
// defaults.
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

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		log:    logger.With().Str("component", "schedule").Logger(),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lockKey(doctorID uuid.UUID) string {
	return "schedule:doctor:" + doctorID.String()
}

// WithDoctorLock serializes mutations of one doctor's schedule across
// processes. Overlap checks and the writes they approve must run inside it.
func (s *Service) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, lockKey(doctorID), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleBusy
	}
	return err
}

func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	entries, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return entries, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return e, nil
}

// Create validates and inserts a single entry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}

	candidate, err := s.build(req.DoctorID, req.ClinicID, req.AdminID, req.Input)
	if err != nil {
		return nil, err
	}

	var created *Entry
	err = s.WithDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		if err := NewValidator(s.repo).Check(ctx, candidate); err != nil {
			return err
		}
		e, err := s.repo.Create(ctx, candidate)
		if err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("schedule_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Int("day_of_week", created.DayOfWeek).
		Msg("schedule created")

	return created, nil
}

// Update applies patch to an existing entry, re-validating the result
// against every other entry of the same doctor.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Entry, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *Entry
	err = s.WithDoctorLock(ctx, current.DoctorID, func(ctx context.Context) error {
		// Re-read under the lock so the merge starts from committed state.
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}

		merged, err := s.merge(*current, patch)
		if err != nil {
			return err
		}
		if err := NewValidator(s.repo).Check(ctx, merged, id); err != nil {
			return err
		}

		e, err := s.repo.Update(ctx, merged)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("update schedule: %w", err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes an entry. A missing id is reported as ErrNotFound.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	return s.WithDoctorLock(ctx, current.DoctorID, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("delete schedule: %w", err)
		}
		return nil
	})
}

// ReplaceBulk replaces, for every day named in req, the doctor's entries at
// req.ClinicID. Items carrying a ScheduleID update that entry, the rest are
// created, and unreferenced entries on those days are deleted. Every item is
// validated before the single transaction that applies the change.
func (s *Service) ReplaceBulk(ctx context.Context, req BulkRequest) ([]Entry, error) {
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return []Entry{}, nil
	}

	candidates := make([]Entry, len(req.Items))
	seen := make(map[uuid.UUID]struct{})
	for i, item := range req.Items {
		e, err := s.build(req.DoctorID, req.ClinicID, req.AdminID, item.Input)
		if err != nil {
			return nil, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		if item.ScheduleID != nil {
			// One row can take only one shape per request.
			if _, dup := seen[*item.ScheduleID]; dup {
				return nil, fmt.Errorf("schedules[%d]: %w: schedule_id %s repeated", i, ErrInvalidInput, item.ScheduleID)
			}
			seen[*item.ScheduleID] = struct{}{}
			e.ID = *item.ScheduleID
		}
		candidates[i] = e
	}

	var result []Entry
	err := s.WithDoctorLock(ctx, req.DoctorID, func(ctx context.Context) error {
		existing, err := s.repo.List(ctx, Filter{DoctorID: &req.DoctorID})
		if err != nil {
			return fmt.Errorf("list doctor schedule: %w", err)
		}
		byID := make(map[uuid.UUID]Entry, len(existing))
		for _, e := range existing {
			byID[e.ID] = e
		}

		days := make(map[int]struct{})
		referenced := make(map[uuid.UUID]struct{})
		for i, item := range req.Items {
			days[candidates[i].DayOfWeek] = struct{}{}
			if item.ScheduleID == nil {
				continue
			}
			prev, ok := byID[*item.ScheduleID]
			if !ok {
				return fmt.Errorf("schedules[%d]: %w: %s", i, ErrNotFound, item.ScheduleID)
			}
			referenced[prev.ID] = struct{}{}
			candidates[i].CreatedAt = prev.CreatedAt
			if item.EffectiveFrom == nil {
				candidates[i].EffectiveFrom = prev.EffectiveFrom
			}
			if item.EffectiveTo == nil {
				candidates[i].EffectiveTo = prev.EffectiveTo
			}
		}

		var deletes []uuid.UUID
		var survivors []Entry
		for _, e := range existing {
			if _, ok := referenced[e.ID]; ok {
				continue
			}
			if _, touched := days[e.DayOfWeek]; touched && e.AtClinic(req.ClinicID) {
				deletes = append(deletes, e.ID)
				continue
			}
			survivors = append(survivors, e)
		}

		for i, c := range candidates {
			hit := firstOverlap(survivors, c.DayOfWeek, c.StartMinute, c.EndMinute)
			if hit == nil {
				hit = firstOverlap(candidates[:i], c.DayOfWeek, c.StartMinute, c.EndMinute)
			}
			if hit != nil {
				return &ConflictError{
					DayOfWeek:   c.DayOfWeek,
					StartMinute: c.StartMinute,
					EndMinute:   c.EndMinute,
					Existing:    *hit,
				}
			}
		}

		return s.repo.InTx(ctx, func(tx Repository) error {
			for _, id := range deletes {
				if err := tx.Delete(ctx, id); err != nil {
					return fmt.Errorf("delete replaced schedule %s: %w", id, err)
				}
			}
			result = make([]Entry, 0, len(candidates))
			for i, c := range candidates {
				var saved *Entry
				var err error
				if req.Items[i].ScheduleID != nil {
					saved, err = tx.Update(ctx, c)
				} else {
					saved, err = tx.Create(ctx, c)
				}
				if err != nil {
					return fmt.Errorf("save schedules[%d]: %w", i, err)
				}
				result = append(result, *saved)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("doctor_id", req.DoctorID.String()).
		Int("entries", len(result)).
		Msg("schedule replaced")

	sortEntries(result)
	return result, nil
}

// Prepare validates a batch of new entries for a doctor against the stored
// schedule and against each other. Callers must hold WithDoctorLock and
// write the returned entries atomically.
func (s *Service) Prepare(ctx context.Context, doctorID uuid.UUID, clinicID, adminID *uuid.UUID, inputs []Input) ([]Entry, error) {
	existing, err := s.repo.List(ctx, Filter{DoctorID: &doctorID})
	if err != nil {
		return nil, fmt.Errorf("list doctor schedule: %w", err)
	}

	entries := make([]Entry, 0, len(inputs))
	for i, in := range inputs {
		e, err := s.build(doctorID, clinicID, adminID, in)
		if err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		hit := firstOverlap(existing, e.DayOfWeek, e.StartMinute, e.EndMinute)
		if hit == nil {
			hit = firstOverlap(entries, e.DayOfWeek, e.StartMinute, e.EndMinute)
		}
		if hit != nil {
			return nil, &ConflictError{DayOfWeek: e.DayOfWeek, StartMinute: e.StartMinute, EndMinute: e.EndMinute, Existing: *hit}
		}
		e.ID = uuid.New()
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Service) today() time.Time {
	return timeofday.DateOf(s.now().In(s.loc))
}

// build turns an Input into an Entry, applying defaults and the basic
// validation that precedes overlap checking.
func (s *Service) build(doctorID uuid.UUID, clinicID, adminID *uuid.UUID, in Input) (Entry, error) {
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return Entry{}, fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrInvalidInput)
	}

	start, err := timeofday.Parse(in.StartTime)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: start_time: %w", ErrInvalidInput, err)
	}
	end, err := timeofday.Parse(in.EndTime)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: end_time: %w", ErrInvalidInput, err)
	}

	e := Entry{
		DoctorID:     doctorID,
		ClinicID:     clinicID,
		AdminID:      adminID,
		DayOfWeek:    in.DayOfWeek,
		StartMinute:  start,
		EndMinute:    end,
		SlotDuration: in.SlotDuration,
	}
	if e.SlotDuration == 0 {
		e.SlotDuration = DefaultSlotDuration
	}

	today := s.today()
	e.EffectiveFrom = today
	if in.EffectiveFrom != nil {
		e.EffectiveFrom = timeofday.DateOf(*in.EffectiveFrom)
	}
	e.EffectiveTo = today.AddDate(1, 0, 0)
	if in.EffectiveTo != nil {
		e.EffectiveTo = timeofday.DateOf(*in.EffectiveTo)
	}

	return e, validate(e)
}

func (s *Service) merge(e Entry, p Patch) (Entry, error) {
	if p.ClinicID != nil {
		id := *p.ClinicID
		e.ClinicID = &id
	}
	if p.DayOfWeek != nil {
		if *p.DayOfWeek < 0 || *p.DayOfWeek > 6 {
			return Entry{}, fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrInvalidInput)
		}
		e.DayOfWeek = *p.DayOfWeek
	}
	if p.StartTime != nil {
		m, err := timeofday.Parse(*p.StartTime)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: start_time: %w", ErrInvalidInput, err)
		}
		e.StartMinute = m
	}
	if p.EndTime != nil {
		m, err := timeofday.Parse(*p.EndTime)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: end_time: %w", ErrInvalidInput, err)
		}
		e.EndMinute = m
	}
	if p.SlotDuration != nil {
		e.SlotDuration = *p.SlotDuration
	}
	if p.EffectiveFrom != nil {
		e.EffectiveFrom = timeofday.DateOf(*p.EffectiveFrom)
	}
	if p.EffectiveTo != nil {
		e.EffectiveTo = timeofday.DateOf(*p.EffectiveTo)
	}
	return e, validate(e)
}

func validate(e Entry) error {
	if e.StartMinute >= e.EndMinute {
		return fmt.Errorf("%w (%s - %s)", ErrInvalidRange,
			timeofday.Format(e.StartMinute), timeofday.Format(e.EndMinute))
	}
	if e.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot_duration must be positive", ErrInvalidInput)
	}
	if e.EffectiveFrom.After(e.EffectiveTo) {
		return fmt.Errorf("%w: effective_from must not be after effective_to", ErrInvalidInput)
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DayOfWeek != entries[j].DayOfWeek {
			return entries[i].DayOfWeek < entries[j].DayOfWeek
		}
		return entries[i].StartMinute < entries[j].StartMinute
	})
}
