package session

import (
	"context"
	"errors"

	domain "academy/internal/domain/session"
)

// Store errors
var (
	ErrNotFound               = errors.New("session record not found")
	ErrDuplicateSessionNumber = errors.New("a session with this number already exists in the batch")
)

// Store persists SessionRecord state. It is the single source of truth for a
// batch's schedule.
type Store interface {
	ListByBatch(ctx context.Context, batchID string) ([]domain.SessionRecord, error)
	GetByID(ctx context.Context, id string) (domain.SessionRecord, error)
	Create(ctx context.Context, record domain.SessionRecord) (domain.SessionRecord, error)
	Update(ctx context.Context, id string, patch domain.Patch) (domain.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}
