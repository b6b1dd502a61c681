package clinic

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/schedule"
)

type Repository interface {
	// Create stores the clinic together with its initial schedule entries;
	// either all rows are written or none.
	Create(ctx context.Context, c Clinic, entries []schedule.Entry) (*Clinic, error)
	Get(ctx context.Context, id uuid.UUID) (*Clinic, error)
	List(ctx context.Context, f Filter) ([]Clinic, error)
	Update(ctx context.Context, c Clinic) (*Clinic, error)
	// Delete removes the clinic and every schedule entry pointing at it.
	Delete(ctx context.Context, id uuid.UUID) error
}
