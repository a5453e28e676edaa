package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store represents the SQLite run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertRun records a run and its segment failures in one transaction and
// returns the run ID.
func (s *Store) InsertRun(r *Run) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO runs (invocation_id, macro_name, path, status, segments, injected, failures, started_ns, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.InvocationID, r.MacroName, r.Path, r.Status, r.Segments, r.Injected, len(r.Failures),
		r.StartedAt.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	if len(r.Failures) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO segment_failures (run_id, segment_index, segment, error)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, f := range r.Failures {
			if _, err := stmt.Exec(id, f.SegmentIndex, f.Segment, f.Error); err != nil {
				return 0, fmt.Errorf("insert segment failure %d: %w", f.SegmentIndex, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	r.ID = id
	return id, nil
}

const runColumns = `id, invocation_id, macro_name, path, status, segments, injected, started_ns, duration_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedNs, durationNs int64
	if err := row.Scan(&r.ID, &r.InvocationID, &r.MacroName, &r.Path, &r.Status,
		&r.Segments, &r.Injected, &startedNs, &durationNs); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedNs)
	r.Duration = time.Duration(durationNs)
	return &r, nil
}

// GetRun returns one run with its failures.
func (s *Store) GetRun(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if r.Failures, err = s.failures(id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) failures(runID int64) ([]SegmentFailure, error) {
	rows, err := s.db.Query(`
		SELECT run_id, segment_index, segment, error
		FROM segment_failures WHERE run_id = ? ORDER BY segment_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segment failures: %w", err)
	}
	defer rows.Close()

	var out []SegmentFailure
	for rows.Next() {
		var f SegmentFailure
		if err := rows.Scan(&f.RunID, &f.SegmentIndex, &f.Segment, &f.Error); err != nil {
			return nil, fmt.Errorf("scan segment failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecentRuns returns up to limit runs, newest first. Failures are loaded
// for each run.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY started_ns DESC, id DESC LIMIT ?`, limit)
}

// RunsForMacro returns up to limit runs of one macro, newest first.
func (s *Store) RunsForMacro(name string, limit int) ([]*Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs WHERE macro_name = ? ORDER BY started_ns DESC, id DESC LIMIT ?`, name, limit)
}

func (s *Store) queryRuns(query string, args ...any) ([]*Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for _, r := range runs {
		if r.Failures, err = s.failures(r.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// CountByStatus returns the number of runs per status.
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Stats returns per-macro totals ordered by macro name.
func (s *Store) Stats() ([]MacroStats, error) {
	rows, err := s.db.Query(`
		SELECT macro_name,
		       COUNT(*),
		       SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END),
		       SUM(failures),
		       MAX(started_ns)
		FROM runs GROUP BY macro_name ORDER BY macro_name`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []MacroStats
	for rows.Next() {
		var st MacroStats
		var lastNs int64
		if err := rows.Scan(&st.MacroName, &st.Runs, &st.Completed, &st.Cancelled, &st.Failures, &lastNs); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.LastRun = time.Unix(0, lastNs)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Prune keeps the newest keep runs and deletes the rest, returning the
// number deleted. keep <= 0 deletes nothing.
func (s *Store) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_ns DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return result.RowsAffected()
}

// DB returns the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}
