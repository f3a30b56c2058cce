package principal

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no principal matches the lookup.
	ErrNotFound = errors.New("principal not found")

	// ErrAlreadyExists is returned when creating a duplicate principal.
	ErrAlreadyExists = errors.New("principal already exists")
)

// Store is the durable source of principal records. The identity read
// cache recomputes from it; the Registry is its only writer.
type Store interface {
	Get(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	Create(ctx context.Context, p *Principal) error

	// Update applies mutate to the stored record under the store's
	// write lock. mutate returns the names of the fields it changed;
	// Update hands them back so the caller can drive invalidation.
	Update(ctx context.Context, id string, mutate func(*Principal) ([]string, error)) ([]string, error)

	Delete(ctx context.Context, id string) error
}
