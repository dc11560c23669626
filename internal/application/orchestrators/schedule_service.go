package orchestrators

import (
	"context"
	"log/slog"
	"time"

	"academy/internal/adapters/metrics"
	batchStore "academy/internal/adapters/storage/batch"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/application/slotguard"
	"academy/internal/domain/batch"
	"academy/internal/domain/session"
	"academy/internal/domain/sessioncsv"
)

// DefaultSaveTimeout bounds a single write when ServiceDeps.SaveTimeout is zero.
const DefaultSaveTimeout = 10 * time.Second

// ServiceDeps holds the collaborators injected into a ScheduleService.
type ServiceDeps struct {
	BatchStore   batchStore.Store
	SessionStore sessionStore.Store
	Notifier     CancellationNotifier // optional
	Metrics      *metrics.Recorder    // optional
	SaveTimeout  time.Duration
}

// ScheduleService is the entry point for every schedule operation. It owns
// the slot guard shared by saves and imports, so one instance should serve
// all callers of a process.
type ScheduleService struct {
	deps  ServiceDeps
	guard *slotguard.Guard
}

// NewScheduleService wires a service around the given stores.
// PRE: deps.BatchStore and deps.SessionStore are non-nil
// POST: Returns a ready service with an empty slot guard
func NewScheduleService(deps ServiceDeps) *ScheduleService {
	if deps.SaveTimeout <= 0 {
		deps.SaveTimeout = DefaultSaveTimeout
	}
	return &ScheduleService{deps: deps, guard: slotguard.New()}
}

// LoadSchedule returns the reconciled slots of a batch.
func (s *ScheduleService) LoadSchedule(ctx context.Context, batchID string) (Schedule, error) {
	return ExecuteLoadSchedule(ctx, LoadScheduleInput{BatchID: batchID}, LoadScheduleDeps{
		BatchStore:   s.deps.BatchStore,
		SessionStore: s.deps.SessionStore,
	})
}

// SaveSlot creates or updates the record behind slot.
func (s *ScheduleService) SaveSlot(ctx context.Context, batchID string, slot session.Slot, patch session.Patch) (session.SessionRecord, error) {
	return ExecuteSaveSlot(ctx, SaveSlotInput{BatchID: batchID, Slot: slot, Patch: patch}, SaveSlotDeps{
		SessionStore: s.deps.SessionStore,
		Guard:        s.guard,
		Timeout:      s.deps.SaveTimeout,
		Notifier:     s.deps.Notifier,
		Metrics:      s.deps.Metrics,
	})
}

// DeleteSlot removes the record with the given id.
func (s *ScheduleService) DeleteSlot(ctx context.Context, recordID string) error {
	return ExecuteDeleteSlot(ctx, DeleteSlotInput{RecordID: recordID}, DeleteSlotDeps{
		SessionStore: s.deps.SessionStore,
		Timeout:      s.deps.SaveTimeout,
		Metrics:      s.deps.Metrics,
	})
}

// ImportSchedule applies a title sheet to a batch.
func (s *ScheduleService) ImportSchedule(ctx context.Context, batchID, raw string) (ImportScheduleResult, error) {
	return ExecuteImportSchedule(ctx, ImportScheduleInput{BatchID: batchID, Raw: raw}, ImportScheduleDeps{
		BatchStore:   s.deps.BatchStore,
		SessionStore: s.deps.SessionStore,
		Guard:        s.guard,
		Timeout:      s.deps.SaveTimeout,
		Metrics:      s.deps.Metrics,
	})
}

// RenderTemplate returns an import sheet for a batch: one row per planned
// session when capacity is known, otherwise one per current slot.
func (s *ScheduleService) RenderTemplate(ctx context.Context, batchID string) (string, error) {
	schedule, err := s.LoadSchedule(ctx, batchID)
	if err != nil {
		return "", err
	}
	return sessioncsv.RenderTemplate(schedule.Batch.TemplateRows(len(schedule.Slots))), nil
}

// ListBatches returns every batch.
func (s *ScheduleService) ListBatches(ctx context.Context) ([]batch.Batch, error) {
	return s.deps.BatchStore.List(ctx)
}

// SaveBatch creates or replaces a batch.
// PRE: b passes Validate
// POST: b is persisted
func (s *ScheduleService) SaveBatch(ctx context.Context, b batch.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.deps.BatchStore.Save(ctx, b); err != nil {
		return err
	}
	slog.Info("batch_saved", "batch_id", b.ID, "capacity_known", b.TotalSessions != nil)
	return nil
}
