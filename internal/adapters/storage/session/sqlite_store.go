package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"academy/internal/adapters/storage"
	domain "academy/internal/domain/session"
)

const selectColumns = "SELECT id, batch_id, session_number, title, date, time, meet_link, note, status, cancellation_reason, is_current FROM class_session"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new session Store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.SessionRecord, error) {
	var r domain.SessionRecord
	var status string
	var isCurrent int
	err := row.Scan(
		&r.RecordID,
		&r.BatchID,
		&r.SessionNumber,
		&r.Title,
		&r.Date,
		&r.Time,
		&r.MeetLink,
		&r.Note,
		&status,
		&r.CancellationReason,
		&isCurrent,
	)
	r.Status = domain.Status(status)
	r.IsCurrent = isCurrent != 0
	return r, err
}

// ListByBatch returns every record of a batch ordered by session number, then
// date, then id.
// PRE: batchID is non-empty
// POST: Returns a possibly empty slice
func (s *SQLiteStore) ListByBatch(ctx context.Context, batchID string) ([]domain.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE batch_id = ? ORDER BY session_number, date, id", batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.SessionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetByID retrieves a record by its id.
// PRE: id is non-empty
// POST: Returns the record or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.SessionRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Create inserts a new record and assigns its id.
// PRE: record has been validated and has no RecordID
// POST: Returns the stored record with RecordID set
func (s *SQLiteStore) Create(ctx context.Context, record domain.SessionRecord) (domain.SessionRecord, error) {
	if record.RecordID != "" {
		return domain.SessionRecord{}, fmt.Errorf("create: record already has id %s", record.RecordID)
	}
	if err := record.Validate(); err != nil {
		return domain.SessionRecord{}, err
	}
	record.RecordID = uuid.New().String()
	stamp := s.now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO class_session (id, batch_id, session_number, title, date, time, meet_link, note, status, cancellation_reason, is_current, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordID,
		record.BatchID,
		record.SessionNumber,
		record.Title,
		record.Date,
		record.Time,
		record.MeetLink,
		record.Note,
		string(record.Status),
		record.CancellationReason,
		boolToInt(record.IsCurrent),
		stamp,
		stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.SessionRecord{}, fmt.Errorf("%w: batch %s session %d", ErrDuplicateSessionNumber, record.BatchID, record.SessionNumber)
		}
		return domain.SessionRecord{}, err
	}
	return record, nil
}

// Update writes only the non-nil fields of patch and returns the updated record.
// PRE: id is non-empty
// POST: Returns the record as stored after the update, or ErrNotFound
func (s *SQLiteStore) Update(ctx context.Context, id string, patch domain.Patch) (domain.SessionRecord, error) {
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC().Format(time.RFC3339), id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE class_session SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.SessionRecord{}, err
	} else if n == 0 {
		return domain.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		return domain.SessionRecord{}, err
	}
	return updated, tx.Commit()
}

// Delete removes a record.
// PRE: id is non-empty
// POST: The record is gone, or ErrNotFound if it never existed
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM class_session WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// patchAssignments maps the set fields of patch to SET clauses in column order.
func patchAssignments(p domain.Patch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Date != nil {
		add("date", *p.Date)
	}
	if p.Time != nil {
		add("time", *p.Time)
	}
	if p.MeetLink != nil {
		add("meet_link", *p.MeetLink)
	}
	if p.Note != nil {
		add("note", *p.Note)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.CancellationReason != nil {
		add("cancellation_reason", *p.CancellationReason)
	}
	if p.IsCurrent != nil {
		add("is_current", boolToInt(*p.IsCurrent))
	}
	return sets, args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
