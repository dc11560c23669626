package orchestrators

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"academy/internal/adapters/metrics"
	"academy/internal/application/slotguard"
	"academy/internal/domain/session"
)

func saveDeps(store *mockSessionStore) SaveSlotDeps {
	return SaveSlotDeps{SessionStore: store, Guard: slotguard.New(), Timeout: time.Second}
}

// TestExecuteSaveSlot_CreatesPlaceholder verifies an unbound slot is created with defaults plus the patch.
func TestExecuteSaveSlot_CreatesPlaceholder(t *testing.T) {
	store := newMockSessionStore()
	input := SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.DefaultSlot("b-1", 4),
		Patch:   session.Patch{Date: strPtr("2026-05-04")},
	}

	saved, err := ExecuteSaveSlot(context.Background(), input, saveDeps(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.RecordID == "" {
		t.Error("created record has no id")
	}
	if len(store.creates) != 1 || len(store.updates) != 0 {
		t.Fatalf("creates=%d updates=%d, want 1/0", len(store.creates), len(store.updates))
	}
	c := store.creates[0]
	if c.Title != "Session 4" || c.Status != session.StatusScheduled || c.Date != "2026-05-04" || c.SessionNumber != 4 || c.BatchID != "b-1" {
		t.Errorf("created %+v", c)
	}
}

// TestExecuteSaveSlot_UpdatesOnlyPatch verifies a bound slot sends only mutated fields.
func TestExecuteSaveSlot_UpdatesOnlyPatch(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	store := newMockSessionStore(existing)

	_, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, existing),
		Patch:   session.Patch{Title: strPtr("Welcome")},
	}, saveDeps(store))
	if err != nil {
		t.Fatal(err)
	}
	if len(store.updates) != 1 || len(store.creates) != 0 {
		t.Fatalf("creates=%d updates=%d, want 0/1", len(store.creates), len(store.updates))
	}
	p := store.updates[0].Patch
	if p.Title == nil || *p.Title != "Welcome" || p.Status != nil || p.Date != nil || p.CancellationReason != nil {
		t.Errorf("patch = %+v, want title only", p)
	}
}

// TestExecuteSaveSlot_RejectsCancelWithoutReason verifies zero store calls on a rejected transition.
func TestExecuteSaveSlot_RejectsCancelWithoutReason(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	store := newMockSessionStore(existing)
	rec := metrics.New()
	deps := saveDeps(store)
	deps.Metrics = rec

	_, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, existing),
		Patch:   session.Patch{Status: statusPtr(session.StatusCancelled), CancellationReason: strPtr("  ")},
	}, deps)

	var te *session.TransitionError
	if !errors.As(err, &te) || te.Code != session.MissingCancellationReason {
		t.Fatalf("err = %v, want MissingCancellationReason", err)
	}
	if store.writes() != 0 {
		t.Errorf("store writes = %d, want 0", store.writes())
	}
	want := `
# HELP academy_slot_save_rejections_total Total number of slot saves rejected before reaching the store.
# TYPE academy_slot_save_rejections_total counter
academy_slot_save_rejections_total{code="missing_cancellation_reason"} 1
`
	if err := testutil.GatherAndCompare(rec.Registry(), strings.NewReader(want), "academy_slot_save_rejections_total"); err != nil {
		t.Error(err)
	}
}

// TestExecuteSaveSlot_CancelNotifies verifies the reason is kept and the notifier fires once.
func TestExecuteSaveSlot_CancelNotifies(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	store := newMockSessionStore(existing)
	notifier := &recordingNotifier{}
	deps := saveDeps(store)
	deps.Notifier = notifier

	saved, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, existing),
		Patch:   session.Patch{Status: statusPtr(session.StatusCancelled), CancellationReason: strPtr(" room unavailable ")},
	}, deps)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Status != session.StatusCancelled || saved.CancellationReason != "room unavailable" {
		t.Errorf("saved = %+v", saved)
	}
	if len(notifier.notified) != 1 || notifier.notified[0].RecordID != "r1" {
		t.Errorf("notified = %+v, want r1 once", notifier.notified)
	}

	// Editing the note of an already-cancelled slot does not notify again.
	if _, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, saved),
		Patch:   session.Patch{Note: strPtr("moved online")},
	}, deps); err != nil {
		t.Fatal(err)
	}
	if len(notifier.notified) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.notified))
	}
}

// TestExecuteSaveSlot_UncancelClearsReason verifies the stored reason is blanked.
func TestExecuteSaveSlot_UncancelClearsReason(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	existing.Status = session.StatusCancelled
	existing.CancellationReason = "room unavailable"
	store := newMockSessionStore(existing)

	saved, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, existing),
		Patch:   session.Patch{Status: statusPtr(session.StatusScheduled)},
	}, saveDeps(store))
	if err != nil {
		t.Fatal(err)
	}
	if saved.CancellationReason != "" || saved.Status != session.StatusScheduled {
		t.Errorf("saved = %+v, want scheduled with no reason", saved)
	}
	p := store.updates[0].Patch
	if p.CancellationReason == nil || *p.CancellationReason != "" {
		t.Errorf("patch reason = %v, want explicit empty", p.CancellationReason)
	}
}

// TestExecuteSaveSlot_ReasonOnlyOnCancelledSlot verifies a reason edit is validated against the current status.
func TestExecuteSaveSlot_ReasonOnlyOnCancelledSlot(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	existing.Status = session.StatusCancelled
	existing.CancellationReason = "flood"
	store := newMockSessionStore(existing)

	_, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
		BatchID: "b-1",
		Slot:    session.Bind(1, existing),
		Patch:   session.Patch{CancellationReason: strPtr("")},
	}, saveDeps(store))
	if !errors.Is(err, session.ErrMissingReason) {
		t.Errorf("err = %v, want ErrMissingReason", err)
	}
}

// TestExecuteSaveSlot_EmptyPatchOnBoundSlot verifies no store call is made.
func TestExecuteSaveSlot_EmptyPatchOnBoundSlot(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	store := newMockSessionStore(existing)

	got, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{BatchID: "b-1", Slot: session.Bind(1, existing)}, saveDeps(store))
	if err != nil || got.RecordID != "r1" {
		t.Errorf("got %+v, %v", got, err)
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}
}

// TestExecuteSaveSlot_InputGuards verifies local rejection of malformed input.
func TestExecuteSaveSlot_InputGuards(t *testing.T) {
	store := newMockSessionStore()
	tests := []struct {
		name  string
		input SaveSlotInput
		want  error
	}{
		{name: "no batch", input: SaveSlotInput{Slot: session.DefaultSlot("", 1)}, want: session.ErrEmptyBatchID},
		{name: "no number", input: SaveSlotInput{BatchID: "b-1"}, want: session.ErrInvalidSessionNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExecuteSaveSlot(context.Background(), tt.input, saveDeps(store)); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}
}

// TestExecuteSaveSlot_QueuedSaveTimesOut verifies a save behind a held slot fails with ErrSaveTimeout.
func TestExecuteSaveSlot_QueuedSaveTimesOut(t *testing.T) {
	store := newMockSessionStore()
	deps := saveDeps(store)
	deps.Timeout = 20 * time.Millisecond

	release, err := deps.Guard.Acquire(context.Background(), slotguard.Key{BatchID: "b-1", SessionNumber: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = ExecuteSaveSlot(context.Background(), SaveSlotInput{BatchID: "b-1", Slot: session.DefaultSlot("b-1", 2)}, deps)
	if !errors.Is(err, ErrSaveTimeout) {
		t.Errorf("err = %v, want ErrSaveTimeout", err)
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}
}

// TestExecuteSaveSlot_StoreTimeout verifies a slow store surfaces as ErrSaveTimeout.
func TestExecuteSaveSlot_StoreTimeout(t *testing.T) {
	store := newMockSessionStore()
	store.block = make(chan struct{})
	deps := saveDeps(store)
	deps.Timeout = 20 * time.Millisecond

	_, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{BatchID: "b-1", Slot: session.DefaultSlot("b-1", 1)}, deps)
	if !errors.Is(err, ErrSaveTimeout) {
		t.Errorf("err = %v, want ErrSaveTimeout", err)
	}
}

// TestExecuteSaveSlot_SameKeySerialised verifies two saves on one slot never overlap in the store.
func TestExecuteSaveSlot_SameKeySerialised(t *testing.T) {
	existing := bound("r1", "b-1", 1, "Intro")
	store := newMockSessionStore(existing)
	store.block = make(chan struct{})
	deps := saveDeps(store)

	errs := make(chan error, 2)
	for _, title := range []string{"A", "B"} {
		go func() {
			_, err := ExecuteSaveSlot(context.Background(), SaveSlotInput{
				BatchID: "b-1",
				Slot:    session.Bind(1, existing),
				Patch:   session.Patch{Title: strPtr(title)},
			}, deps)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if deps.Guard.Pending() != 1 {
		t.Errorf("Pending = %d, want one contended key", deps.Guard.Pending())
	}
	store.block <- struct{}{}
	store.block <- struct{}{}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("save %d: %v", i, err)
		}
	}
	if len(store.updates) != 2 {
		t.Errorf("updates = %d, want 2", len(store.updates))
	}
}
