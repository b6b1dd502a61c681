package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
// Writes that bypass Service skip overlap validation and must not be used
// by request handlers.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// Create assigns an ID when e.ID is uuid.Nil.
	Create(ctx context.Context, e Entry) (*Entry, error)
	Update(ctx context.Context, e Entry) (*Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByClinic(ctx context.Context, clinicID uuid.UUID) (int, error)

	// InTx runs fn atomically; the Repository passed to fn is bound to the
	// transaction.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
