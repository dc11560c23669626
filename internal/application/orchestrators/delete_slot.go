package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"academy/internal/adapters/metrics"
	sessionStore "academy/internal/adapters/storage/session"
)

// DeleteSlotInput identifies the record behind a bound slot.
type DeleteSlotInput struct {
	RecordID string
}

// DeleteSlotDeps holds external dependencies for a slot delete.
type DeleteSlotDeps struct {
	SessionStore sessionStore.Store
	Timeout      time.Duration
	Metrics      *metrics.Recorder // optional
}

// ExecuteDeleteSlot removes the record behind a bound slot. A placeholder has
// nothing to delete and is rejected without a store call.
// PRE: none
// POST: The record is deleted, or ErrUnboundSlot / a wrapped store error is returned
func ExecuteDeleteSlot(ctx context.Context, input DeleteSlotInput, deps DeleteSlotDeps) error {
	recordID := strings.TrimSpace(input.RecordID)
	if recordID == "" {
		return ErrUnboundSlot
	}

	ctx, cancel := withSaveTimeout(ctx, deps.Timeout)
	defer cancel()

	if err := deps.SessionStore.Delete(ctx, recordID); err != nil {
		err = translateTimeout(err)
		result := metrics.ResultError
		if errors.Is(err, ErrSaveTimeout) {
			result = metrics.ResultTimeout
		}
		deps.Metrics.CountStoreCall("delete", result)
		slog.Error("slot_delete_failed", "record_id", recordID, "error", err)
		return fmt.Errorf("delete session %s: %w", recordID, err)
	}
	deps.Metrics.CountStoreCall("delete", metrics.ResultOK)
	slog.Info("slot_deleted", "record_id", recordID)
	return nil
}
