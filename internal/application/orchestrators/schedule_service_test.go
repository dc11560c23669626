package orchestrators

import (
	"context"
	"errors"
	"testing"

	"academy/internal/domain/batch"
	"academy/internal/domain/session"
)

// TestScheduleService_RenderTemplate verifies row count follows capacity, then slot count.
func TestScheduleService_RenderTemplate(t *testing.T) {
	sessions := newMockSessionStore(bound("r1", "b-open", 1, "A"), bound("r2", "b-open", 2, "B"))
	svc := NewScheduleService(ServiceDeps{
		BatchStore:   newMockBatchStore(batch.Batch{ID: "b-known", TotalSessions: intPtr(3)}, batch.Batch{ID: "b-open"}),
		SessionStore: sessions,
	})

	tests := map[string]string{
		"b-known": "S.No,Title\n1,Session 1\n2,Session 2\n3,Session 3\n",
		"b-open":  "S.No,Title\n1,Session 1\n2,Session 2\n",
	}
	for batchID, want := range tests {
		got, err := svc.RenderTemplate(context.Background(), batchID)
		if err != nil {
			t.Fatalf("%s: %v", batchID, err)
		}
		if got != want {
			t.Errorf("%s: got %q, want %q", batchID, got, want)
		}
	}
}

// TestScheduleService_SaveThenReload verifies the facade wires save and load to the same stores.
func TestScheduleService_SaveThenReload(t *testing.T) {
	svc := NewScheduleService(ServiceDeps{
		BatchStore:   newMockBatchStore(batch.Batch{ID: "b-1", TotalSessions: intPtr(2)}),
		SessionStore: newMockSessionStore(),
	})
	ctx := context.Background()

	before, err := svc.LoadSchedule(ctx, "b-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveSlot(ctx, "b-1", before.Slots[1], session.Patch{Title: strPtr("Grammar")}); err != nil {
		t.Fatal(err)
	}
	after, err := svc.LoadSchedule(ctx, "b-1")
	if err != nil {
		t.Fatal(err)
	}
	if !after.Slots[1].Bound() || after.Slots[1].Title != "Grammar" || after.Slots[0].Bound() {
		t.Errorf("slots after save = %+v", after.Slots)
	}

	if err := svc.DeleteSlot(ctx, after.Slots[1].RecordID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSlot(ctx, after.Slots[0].RecordID); !errors.Is(err, ErrUnboundSlot) {
		t.Errorf("delete placeholder err = %v, want ErrUnboundSlot", err)
	}
}

// TestScheduleService_SaveBatchValidates verifies invalid batches never reach the store.
func TestScheduleService_SaveBatchValidates(t *testing.T) {
	store := newMockBatchStore()
	svc := NewScheduleService(ServiceDeps{BatchStore: store, SessionStore: newMockSessionStore()})

	if err := svc.SaveBatch(context.Background(), batch.Batch{ID: "b-1", TotalSessions: intPtr(-2)}); !errors.Is(err, batch.ErrNegativeTotalSessions) {
		t.Errorf("err = %v", err)
	}
	if len(store.byID) != 0 {
		t.Error("invalid batch persisted")
	}
	if svc.deps.SaveTimeout != DefaultSaveTimeout {
		t.Errorf("SaveTimeout = %v, want default", svc.deps.SaveTimeout)
	}
}
