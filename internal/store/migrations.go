package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations are applied in order. Versions are contiguous from 1, so
// migrations[v] is the one that follows version v.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with runs",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add segment_failures table for per-segment errors",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    invocation_id   TEXT NOT NULL UNIQUE,
    macro_name      TEXT NOT NULL,
    path            TEXT NOT NULL,
    status          TEXT NOT NULL,
    segments        INTEGER NOT NULL,
    injected        INTEGER NOT NULL,
    failures        INTEGER NOT NULL DEFAULT 0,
    started_ns      INTEGER NOT NULL,
    duration_ns     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns);
CREATE INDEX IF NOT EXISTS idx_runs_macro ON runs(macro_name, started_ns);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_runs_macro;
DROP INDEX IF EXISTS idx_runs_started;
DROP TABLE IF EXISTS runs;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS segment_failures (
    run_id          INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    segment_index   INTEGER NOT NULL,
    segment         TEXT NOT NULL,
    error           TEXT NOT NULL,
    PRIMARY KEY (run_id, segment_index)
);
`

const migrationV2Down = `
DROP TABLE IF EXISTS segment_failures;
`

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT
)`

// latestVersion is the schema version this build writes.
func latestVersion() int {
	return migrations[len(migrations)-1].Version
}

// inTx runs fn in a transaction, rolling back when it fails.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// MigrateDB brings the history schema up to date. A database written by a
// newer build is refused rather than silently used.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version > latestVersion() {
		return fmt.Errorf("history schema version %d is newer than supported %d", version, latestVersion())
	}

	for _, m := range migrations[version:] {
		err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.Up); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
				m.Version, time.Now().UnixNano(), m.Description)
			if err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// RollbackMigration undoes the newest applied migration.
func RollbackMigration(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version == 0 {
		return errors.New("no migrations to roll back")
	}
	if version > latestVersion() {
		return fmt.Errorf("migration %d not known to this build", version)
	}
	m := migrations[version-1]

	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Down); err != nil {
			return fmt.Errorf("roll back migration %d: %w", version, err)
		}
		if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version); err != nil {
			return fmt.Errorf("remove migration record: %w", err)
		}
		return nil
	})
}

// MigrationStatus reports applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	status := &MigrationStatus{LatestVersion: latestVersion()}
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		status.CurrentVersion = max(status.CurrentVersion, am.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	if status.CurrentVersion < len(migrations) {
		status.Pending = migrations[status.CurrentVersion:]
	}
	return status, nil
}

// ValidateSchema checks that the history tables exist at the current version.
func ValidateSchema(db *sql.DB) error {
	for _, table := range []string{"runs", "segment_failures", "schema_migrations"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing table %s", table)
		}
	}

	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version != latestVersion() {
		return fmt.Errorf("schema version %d, want %d", version, latestVersion())
	}
	return nil
}
