package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps entries in process memory. It backs single-node
// runs started with --store=memory and the package tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]Entry),
		now:     time.Now,
	}
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.List(ctx, f)
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.Get(ctx, id)
}

func (r *MemoryRepository) Create(ctx context.Context, e Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.Create(ctx, e)
}

func (r *MemoryRepository) Update(ctx context.Context, e Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.Update(ctx, e)
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.Delete(ctx, id)
}

func (r *MemoryRepository) DeleteByClinic(ctx context.Context, clinicID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memoryTx{r.entries, r.now}.DeleteByClinic(ctx, clinicID)
}

// InTx runs fn against a copy of the data and publishes it only when fn
// succeeds.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := make(map[uuid.UUID]Entry, len(r.entries))
	for id, e := range r.entries {
		work[id] = e
	}
	if err := fn(memoryTx{work, r.now}); err != nil {
		return err
	}
	r.entries = work
	return nil
}

// memoryTx operates on a map the caller already holds exclusively.
type memoryTx struct {
	entries map[uuid.UUID]Entry
	now     func() time.Time
}

func (t memoryTx) List(_ context.Context, f Filter) ([]Entry, error) {
	out := make([]Entry, 0)
	for _, e := range t.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t memoryTx) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := t.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t memoryTx) Create(_ context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := t.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	t.entries[e.ID] = e
	return &e, nil
}

func (t memoryTx) Update(_ context.Context, e Entry) (*Entry, error) {
	prev, ok := t.entries[e.ID]
	if !ok {
		return nil, ErrNotFound
	}
	// Ownership is fixed at creation.
	e.DoctorID = prev.DoctorID
	e.AdminID = prev.AdminID
	e.CreatedAt = prev.CreatedAt
	e.UpdatedAt = t.now().UTC()
	t.entries[e.ID] = e
	return &e, nil
}

func (t memoryTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.entries[id]; !ok {
		return ErrNotFound
	}
	delete(t.entries, id)
	return nil
}

func (t memoryTx) DeleteByClinic(_ context.Context, clinicID uuid.UUID) (int, error) {
	n := 0
	for id, e := range t.entries {
		if e.ClinicID != nil && *e.ClinicID == clinicID {
			delete(t.entries, id)
			n++
		}
	}
	return n, nil
}

func (t memoryTx) InTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(t)
}
