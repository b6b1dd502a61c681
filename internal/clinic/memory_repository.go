package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

// MemoryRepository stores clinics in memory and writes schedule entries
// through the schedule repository it shares with the schedule service.
type MemoryRepository struct {
	mu        sync.Mutex
	clinics   map[uuid.UUID]Clinic
	schedules schedule.Repository
	now       func() time.Time
}

func NewMemoryRepository(schedules schedule.Repository) *MemoryRepository {
	return &MemoryRepository{
		clinics:   make(map[uuid.UUID]Clinic),
		schedules: schedules,
		now:       time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, c Clinic, entries []schedule.Entry) (*Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(entries) > 0 {
		err := r.schedules.InTx(ctx, func(tx schedule.Repository) error {
			for _, e := range entries {
				if _, err := tx.Create(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.clinics[c.ID] = c
	return &c, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) ([]Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Clinic
	for _, c := range r.clinics {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, c Clinic) (*Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.clinics[c.ID]
	if !ok {
		return nil, ErrNotFound
	}
	cur.Name = c.Name
	cur.Phone = c.Phone
	cur.Location = c.Location
	cur.Status = c.Status
	cur.UpdatedAt = r.now().UTC()
	r.clinics[c.ID] = cur
	return &cur, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clinics[id]; !ok {
		return ErrNotFound
	}
	if _, err := r.schedules.DeleteByClinic(ctx, id); err != nil {
		return err
	}
	delete(r.clinics, id)
	return nil
}
