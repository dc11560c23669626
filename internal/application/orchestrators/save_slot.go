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
	"academy/internal/application/slotguard"
	"academy/internal/domain/session"
)

// SaveSlotInput carries one slot as last loaded and the fields to change.
// Slot.RecordID is empty for a placeholder; Slot.Status and
// Slot.CancellationReason are the values the edit started from.
type SaveSlotInput struct {
	BatchID string
	Slot    session.Slot
	Patch   session.Patch
}

// SaveSlotDeps holds external dependencies for a slot save.
type SaveSlotDeps struct {
	SessionStore sessionStore.Store
	Guard        *slotguard.Guard
	Timeout      time.Duration
	Notifier     CancellationNotifier // optional
	Metrics      *metrics.Recorder    // optional
}

// ExecuteSaveSlot creates the slot's record when it has none, or updates
// only the patched fields when it does. Status changes are validated first;
// a rejected transition returns a *session.TransitionError without any store
// call. Saves against the same (batch, session number) run one at a time.
// PRE: Input.BatchID is non-empty; Input.Slot.SessionNumber >= 1
// POST: Returns the record as stored; the caller should reload the schedule
//
//	after success or failure
func ExecuteSaveSlot(ctx context.Context, input SaveSlotInput, deps SaveSlotDeps) (session.SessionRecord, error) {
	batchID := strings.TrimSpace(input.BatchID)
	if batchID == "" {
		return session.SessionRecord{}, session.ErrEmptyBatchID
	}
	number := input.Slot.SessionNumber
	if number < 1 {
		return session.SessionRecord{}, session.ErrInvalidSessionNumber
	}

	patch := input.Patch
	current := input.Slot.Status
	if current == "" {
		current = session.StatusScheduled
	}
	if patch.TouchesStatus() {
		next := current
		if patch.Status != nil {
			next = *patch.Status
		}
		reason := input.Slot.CancellationReason
		if patch.CancellationReason != nil {
			reason = *patch.CancellationReason
		}
		tr, err := session.ValidateTransition(current, next, reason)
		if err != nil {
			var te *session.TransitionError
			if errors.As(err, &te) {
				deps.Metrics.CountRejection(string(te.Code))
			}
			slog.Info("slot_save_rejected", "batch_id", batchID, "session_number", number, "from", current, "to", next, "error", err)
			return session.SessionRecord{}, err
		}
		patch.Status = &tr.Status
		patch.CancellationReason = &tr.CancellationReason
	}

	if input.Slot.Bound() && patch.IsEmpty() {
		return input.Slot.SessionRecord, nil
	}

	ctx, cancel := withSaveTimeout(ctx, deps.Timeout)
	defer cancel()

	if deps.Guard != nil {
		release, err := deps.Guard.Acquire(ctx, slotguard.Key{BatchID: batchID, SessionNumber: number})
		if err != nil {
			slog.Warn("slot_save_queued_timeout", "batch_id", batchID, "session_number", number, "error", err)
			return session.SessionRecord{}, translateTimeout(err)
		}
		defer release()
	}

	op := "update"
	var saved session.SessionRecord
	var err error
	if input.Slot.Bound() {
		saved, err = deps.SessionStore.Update(ctx, input.Slot.RecordID, patch)
	} else {
		op = "create"
		base := session.Bind(number, input.Slot.SessionRecord)
		base.BatchID = batchID
		base.SessionNumber = number
		saved, err = deps.SessionStore.Create(ctx, patch.Apply(base.SessionRecord))
	}
	if err != nil {
		err = translateTimeout(err)
		result := metrics.ResultError
		if errors.Is(err, ErrSaveTimeout) {
			result = metrics.ResultTimeout
		}
		deps.Metrics.CountStoreCall(op, result)
		slog.Error("slot_save_failed", "batch_id", batchID, "session_number", number, "op", op, "error", err)
		return session.SessionRecord{}, fmt.Errorf("%s session %d: %w", op, number, err)
	}
	deps.Metrics.CountStoreCall(op, metrics.ResultOK)
	slog.Info("slot_saved", "batch_id", batchID, "session_number", number, "record_id", saved.RecordID, "op", op, "status", saved.Status)

	if deps.Notifier != nil && saved.Status == session.StatusCancelled && current != session.StatusCancelled {
		deps.Notifier.NotifyCancelled(context.WithoutCancel(ctx), saved)
	}
	return saved, nil
}
