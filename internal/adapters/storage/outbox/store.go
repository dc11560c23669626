package outbox

import (
	"context"
	"errors"

	domain "academy/internal/domain/outbox"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("outbox entry not found")

// Store persists queued deliveries.
type Store interface {
	// GetByID retrieves an entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save inserts or updates an entry.
	// PRE: none
	// POST: Entry is validated and persisted
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns entries still awaiting delivery.
	// PRE: limit > 0
	// POST: Returns up to limit pending entries, oldest first
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)
}
