package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	batchStore "academy/internal/adapters/storage/batch"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/domain/batch"
	"academy/internal/domain/session"
)

// LoadScheduleInput carries the batch whose schedule is requested.
type LoadScheduleInput struct {
	BatchID string
}

// LoadScheduleDeps holds the stores the read path fetches from.
type LoadScheduleDeps struct {
	BatchStore   batchStore.Store
	SessionStore sessionStore.Store
}

// Schedule is the reconciled view of one batch.
type Schedule struct {
	Batch batch.Batch    `json:"batch"`
	Slots []session.Slot `json:"slots"`
}

// BoundRecordIDs maps session numbers to the record ids of bound slots.
func (s Schedule) BoundRecordIDs() map[int]string {
	ids := make(map[int]string, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Bound() && slot.SessionNumber >= 1 {
			ids[slot.SessionNumber] = slot.RecordID
		}
	}
	return ids
}

// Slot returns the slot for a session number, or a placeholder when the
// schedule has none (a number beyond capacity that was never saved).
func (s Schedule) Slot(number int) session.Slot {
	for _, slot := range s.Slots {
		if slot.SessionNumber == number {
			return slot
		}
	}
	return session.DefaultSlot(s.Batch.ID, number)
}

// ExecuteLoadSchedule fetches the batch and its session records concurrently
// and reconciles them into slots.
// PRE: Input.BatchID is non-empty
// POST: Returns the full reconciled schedule, or a *ScheduleLoadError and no slots
func ExecuteLoadSchedule(ctx context.Context, input LoadScheduleInput, deps LoadScheduleDeps) (Schedule, error) {
	batchID := strings.TrimSpace(input.BatchID)
	if batchID == "" {
		return Schedule{}, session.ErrEmptyBatchID
	}

	var b batch.Batch
	var records []session.SessionRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if b, err = deps.BatchStore.GetByID(gctx, batchID); err != nil {
			return &ScheduleLoadError{BatchID: batchID, Source: "batch", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if records, err = deps.SessionStore.ListByBatch(gctx, batchID); err != nil {
			return &ScheduleLoadError{BatchID: batchID, Source: "sessions", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Warn("schedule_load_failed", "batch_id", batchID, "error", err)
		return Schedule{}, err
	}

	slots := session.Reconcile(batchID, b.TotalSessions, records)
	if slots == nil {
		slots = []session.Slot{}
	}
	slog.Debug("schedule_loaded", "batch_id", batchID, "records", len(records), "slots", len(slots))
	return Schedule{Batch: b, Slots: slots}, nil
}
