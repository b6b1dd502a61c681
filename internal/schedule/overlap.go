package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Overlaps is the half-open interval test: [9:00,12:00) and [12:00,15:00)
// touch but do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// firstOverlap returns the first entry on day intersecting [start, end).
func firstOverlap(entries []Entry, day, start, end int) *Entry {
	for i := range entries {
		e := entries[i]
		if e.DayOfWeek != day {
			continue
		}
		if Overlaps(start, end, e.StartMinute, e.EndMinute) {
			return &e
		}
	}
	return nil
}

// Validator checks candidate entries against a doctor's existing entries
// across all clinics. A doctor cannot be in two places at once.
type Validator struct {
	repo Repository
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// FindOverlap returns the first existing entry for (doctorID, day) whose
// range intersects [start, end), ignoring the ids in exclude.
func (v *Validator) FindOverlap(ctx context.Context, doctorID uuid.UUID, day, start, end int, exclude ...uuid.UUID) (*Entry, error) {
	existing, err := v.repo.List(ctx, Filter{DoctorID: &doctorID, DayOfWeek: &day})
	if err != nil {
		return nil, fmt.Errorf("list doctor schedule: %w", err)
	}

	if len(exclude) > 0 {
		skip := make(map[uuid.UUID]struct{}, len(exclude))
		for _, id := range exclude {
			skip[id] = struct{}{}
		}
		kept := existing[:0]
		for _, e := range existing {
			if _, ok := skip[e.ID]; !ok {
				kept = append(kept, e)
			}
		}
		existing = kept
	}

	return firstOverlap(existing, day, start, end), nil
}

// CheckOverlap reports whether [start, end) on day collides with any of the
// doctor's entries other than excludeID.
func (v *Validator) CheckOverlap(ctx context.Context, doctorID uuid.UUID, day, start, end int, excludeID *uuid.UUID) (bool, error) {
	var exclude []uuid.UUID
	if excludeID != nil {
		exclude = append(exclude, *excludeID)
	}
	hit, err := v.FindOverlap(ctx, doctorID, day, start, end, exclude...)
	if err != nil {
		return false, err
	}
	return hit != nil, nil
}

// Check returns a *ConflictError when the candidate collides, nil otherwise.
func (v *Validator) Check(ctx context.Context, candidate Entry, exclude ...uuid.UUID) error {
	hit, err := v.FindOverlap(ctx, candidate.DoctorID, candidate.DayOfWeek, candidate.StartMinute, candidate.EndMinute, exclude...)
	if err != nil {
		return err
	}
	if hit != nil {
		return &ConflictError{
			DayOfWeek:   candidate.DayOfWeek,
			StartMinute: candidate.StartMinute,
			EndMinute:   candidate.EndMinute,
			Existing:    *hit,
		}
	}
	return nil
}
