package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"academy/internal/adapters/metrics"
	batchStore "academy/internal/adapters/storage/batch"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/application/slotguard"
	"academy/internal/domain/session"
	"academy/internal/domain/sessioncsv"
)

// ImportScheduleInput carries the raw sheet for one batch.
// PRE: Raw is UTF-8 text in the S.No,Title format.
// POST: Rows are applied best-effort; parse-level failures apply nothing.
// INVARIANT: Existing records are only ever retitled; nothing is deleted.
type ImportScheduleInput struct {
	BatchID string
	Raw     string
}

// ImportScheduleResult holds aggregate counts and per-row errors from an import run.
type ImportScheduleResult struct {
	CreatedCount int                      `json:"created_count"`
	UpdatedCount int                      `json:"updated_count"`
	SkippedCount int                      `json:"skipped_count"`
	Skipped      []sessioncsv.SkippedLine `json:"skipped,omitempty"`
	RowErrors    []ImportRowError         `json:"row_errors,omitempty"`
}

// ImportRowError describes a store failure for a single sheet row.
type ImportRowError struct {
	Line          int    `json:"line"`
	SessionNumber int    `json:"session_number"`
	Message       string `json:"message"`
}

// ImportScheduleDeps holds external dependencies for the import orchestrator.
type ImportScheduleDeps struct {
	BatchStore   batchStore.Store
	SessionStore sessionStore.Store
	Guard        *slotguard.Guard
	Timeout      time.Duration     // per row
	Metrics      *metrics.Recorder // optional
}

// ExecuteImportSchedule parses a title sheet and creates or retitles one
// record per row. Rows are applied in sheet order so a repeated session
// number ends with the last row's title. A row whose write fails is recorded
// in RowErrors and the remaining rows still run.
// PRE: Input.BatchID is non-empty
// POST: Returns *ImportParseError with zero store writes when the sheet is
//
//	unusable; otherwise aggregate counts. The caller should reload the
//	schedule afterwards.
func ExecuteImportSchedule(ctx context.Context, input ImportScheduleInput, deps ImportScheduleDeps) (ImportScheduleResult, error) {
	parsed := sessioncsv.Parse(input.Raw)
	if !parsed.OK() {
		slog.Info("schedule_import_rejected", "batch_id", input.BatchID, "errors", parsed.Errors)
		return ImportScheduleResult{}, &ImportParseError{Errors: parsed.Errors}
	}

	schedule, err := ExecuteLoadSchedule(ctx, LoadScheduleInput{BatchID: input.BatchID}, LoadScheduleDeps{
		BatchStore:   deps.BatchStore,
		SessionStore: deps.SessionStore,
	})
	if err != nil {
		return ImportScheduleResult{}, err
	}
	batchID := strings.TrimSpace(input.BatchID)
	bound := schedule.BoundRecordIDs()

	result := ImportScheduleResult{
		SkippedCount: len(parsed.Skipped),
		Skipped:      parsed.Skipped,
	}

	for _, row := range parsed.Rows {
		recordID, created, err := importRow(ctx, batchID, row, bound[row.SessionNumber], deps)
		if err != nil {
			msg := "save failed (see server log)"
			if errors.Is(err, ErrSaveTimeout) {
				msg = "save timed out"
			}
			slog.Error("schedule_import_row_failed", "batch_id", batchID, "line", row.Line, "session_number", row.SessionNumber, "error", err)
			result.RowErrors = append(result.RowErrors, ImportRowError{Line: row.Line, SessionNumber: row.SessionNumber, Message: msg})
			continue
		}
		if created {
			bound[row.SessionNumber] = recordID
			result.CreatedCount++
		} else {
			result.UpdatedCount++
		}
	}

	deps.Metrics.AddImportRows(metrics.OutcomeCreated, result.CreatedCount)
	deps.Metrics.AddImportRows(metrics.OutcomeUpdated, result.UpdatedCount)
	deps.Metrics.AddImportRows(metrics.OutcomeSkipped, result.SkippedCount)
	deps.Metrics.AddImportRows(metrics.OutcomeFailed, len(result.RowErrors))

	slog.Info("schedule_import",
		"batch_id", batchID,
		"rows", len(parsed.Rows),
		"created", result.CreatedCount,
		"updated", result.UpdatedCount,
		"skipped", result.SkippedCount,
		"errors", len(result.RowErrors),
	)
	return result, nil
}

// importRow writes one row under the slot guard and the per-row timeout.
// An empty recordID means the slot is unbound and a record is created.
func importRow(ctx context.Context, batchID string, row sessioncsv.Row, recordID string, deps ImportScheduleDeps) (string, bool, error) {
	ctx, cancel := withSaveTimeout(ctx, deps.Timeout)
	defer cancel()

	if deps.Guard != nil {
		release, err := deps.Guard.Acquire(ctx, slotguard.Key{BatchID: batchID, SessionNumber: row.SessionNumber})
		if err != nil {
			return "", false, translateTimeout(err)
		}
		defer release()
	}

	if recordID != "" {
		title := row.Title
		if _, err := deps.SessionStore.Update(ctx, recordID, session.Patch{Title: &title}); err != nil {
			deps.Metrics.CountStoreCall("update", metrics.ResultError)
			return "", false, translateTimeout(err)
		}
		deps.Metrics.CountStoreCall("update", metrics.ResultOK)
		return recordID, false, nil
	}

	record := session.DefaultSlot(batchID, row.SessionNumber).SessionRecord
	record.Title = row.Title
	created, err := deps.SessionStore.Create(ctx, record)
	if err != nil {
		deps.Metrics.CountStoreCall("create", metrics.ResultError)
		return "", false, translateTimeout(err)
	}
	deps.Metrics.CountStoreCall("create", metrics.ResultOK)
	return created.RecordID, true, nil
}
