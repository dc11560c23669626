package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	batchStore "academy/internal/adapters/storage/batch"
)

// Schedule operation errors.
var (
	// ErrUnboundSlot is returned when an operation needs a persisted record
	// but the slot is a placeholder.
	ErrUnboundSlot = errors.New("slot has no persisted record")
	// ErrSaveTimeout is returned when a write did not finish within the save
	// timeout, either while queued behind another write to the same slot or
	// while waiting on the store. The caller may retry.
	ErrSaveTimeout = errors.New("save timed out")
)

// ScheduleLoadError reports a failed batch or session fetch. No partial
// schedule is ever returned alongside it.
type ScheduleLoadError struct {
	BatchID string
	Source  string // "batch" or "sessions"
	Err     error
}

// Error implements the error interface.
func (e *ScheduleLoadError) Error() string {
	return fmt.Sprintf("load schedule for batch %s: %s fetch failed: %v", e.BatchID, e.Source, e.Err)
}

// Unwrap returns the underlying store error.
func (e *ScheduleLoadError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the load may succeed. An unknown
// batch will not appear on retry.
func (e *ScheduleLoadError) Retryable() bool {
	return !errors.Is(e.Err, batchStore.ErrNotFound)
}

// ImportParseError is returned when a sheet fails before any row is applied.
type ImportParseError struct {
	Errors []string
}

// Error implements the error interface.
// PRE: e.Errors is non-empty
// POST: returns the parser messages joined with "; "
func (e *ImportParseError) Error() string {
	return "import rejected: " + strings.Join(e.Errors, "; ")
}

// withSaveTimeout bounds ctx by timeout when timeout is positive.
func withSaveTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// translateTimeout maps a deadline from the save timeout to ErrSaveTimeout.
func translateTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSaveTimeout, err)
	}
	return err
}
