package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
)

// migration is one forward-only schema step. Versions start at 1 and are
// applied in order inside their own transaction.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "batch and class_session tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS batch (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				total_sessions INTEGER CHECK (total_sessions IS NULL OR total_sessions >= 0),
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS class_session (
				id TEXT PRIMARY KEY,
				batch_id TEXT NOT NULL,
				session_number INTEGER NOT NULL CHECK (session_number >= 1),
				title TEXT NOT NULL,
				date TEXT NOT NULL DEFAULT '',
				time TEXT NOT NULL DEFAULT '',
				meet_link TEXT NOT NULL DEFAULT '',
				note TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'scheduled',
				cancellation_reason TEXT NOT NULL DEFAULT '',
				is_current INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (batch_id, session_number)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_class_session_batch ON class_session (batch_id, session_number)`,
		},
	},
	{
		version:     2,
		description: "teacher email on batch for cancellation notices",
		statements: []string{
			`ALTER TABLE batch ADD COLUMN teacher_email TEXT NOT NULL DEFAULT ''`,
		},
	},
	{
		version:     3,
		description: "outbox for notices awaiting redelivery",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS outbox (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				payload TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				last_error TEXT NOT NULL DEFAULT '',
				last_attempted_at TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox (status, created_at)`,
		},
	},
}

// LatestSchemaVersion returns the version the schema reaches after MigrateDB.
// PRE: none
// POST: Returns the highest known migration version
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the version recorded in schema_version, or 0 for a
// database that has never been migrated.
// PRE: db is a valid database connection
// POST: Returns the current version or an error
func SchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB applies every pending migration. When dbPath names a file that
// already holds data, a copy is written to dbPath.bak-v<current> first.
// PRE: db is a valid database connection
// POST: SchemaVersion(db) == LatestSchemaVersion()
func MigrateDB(db *sql.DB, dbPath string) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current >= LatestSchemaVersion() {
		return nil
	}

	if current > 0 && !isMemoryPath(dbPath) {
		backup := fmt.Sprintf("%s.bak-v%d", dbPath, current)
		_ = os.Remove(backup)
		if _, err := db.Exec("VACUUM INTO ?", backup); err != nil {
			return fmt.Errorf("failed to back up database before migration: %w", err)
		}
		slog.Info("schema_backup", "path", backup, "version", current)
	}

	ctx := context.Background()
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		slog.Info("schema_migrated", "version", m.version, "description", m.description)
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("migration %d: failed to record version: %w", m.version, err)
	}
	return tx.Commit()
}
