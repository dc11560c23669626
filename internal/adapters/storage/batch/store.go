package batch

import (
	"context"
	"errors"

	domain "academy/internal/domain/batch"
)

// ErrNotFound is returned when no batch has the requested id.
var ErrNotFound = errors.New("batch not found")

// Store persists Batch state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Batch, error)
	Save(ctx context.Context, value domain.Batch) error
	List(ctx context.Context) ([]domain.Batch, error)
}
