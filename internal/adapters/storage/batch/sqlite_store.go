package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"academy/internal/adapters/storage"
	domain "academy/internal/domain/batch"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new batch Store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (domain.Batch, error) {
	var b domain.Batch
	var total sql.NullInt64
	if err := row.Scan(&b.ID, &b.Name, &total, &b.TeacherEmail); err != nil {
		return domain.Batch{}, err
	}
	if total.Valid {
		n := int(total.Int64)
		b.TotalSessions = &n
	}
	return b, nil
}

// GetByID retrieves a Batch by its ID.
// PRE: id is non-empty
// POST: Returns the entity or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, "SELECT id, name, total_sessions, teacher_email FROM batch WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Batch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

// Save persists a Batch (insert or update). created_at is kept on update.
// PRE: entity has been validated
// POST: Entity is persisted
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Batch) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	var total any
	if entity.TotalSessions != nil {
		total = *entity.TotalSessions
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch (id, name, total_sessions, teacher_email, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, total_sessions=excluded.total_sessions, teacher_email=excluded.teacher_email`,
		entity.ID,
		entity.Name,
		total,
		entity.TeacherEmail,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// List returns all batches ordered by id.
// PRE: none
// POST: Returns a possibly empty slice
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, total_sessions, teacher_email FROM batch ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}
