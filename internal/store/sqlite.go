package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"focusd/internal/aggregate"
	"focusd/internal/session"
)

// Schema for the session history store.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    start_ns      INTEGER NOT NULL,
    end_ns        INTEGER NOT NULL,
    duration_sec  INTEGER NOT NULL,
    focus_score   INTEGER NOT NULL,
    studying      INTEGER NOT NULL,
    distracted    INTEGER NOT NULL,
    absent        INTEGER NOT NULL,
    idle          INTEGER NOT NULL,
    total         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_ns);
`

// SQLite is the durable session store.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// SaveSession inserts one finished session.
func (s *SQLite) SaveSession(ss session.StudySession) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, start_ns, end_ns, duration_sec, focus_score, studying, distracted, absent, idle, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ss.ID, ss.StartTime.UnixNano(), ss.EndTime.UnixNano(), ss.DurationSec, ss.FocusScore,
		ss.Stats.Studying, ss.Stats.Distracted, ss.Stats.Absent, ss.Stats.Idle, ss.Stats.Total,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ListSessions returns up to limit sessions, most recent first. A limit of
// zero or less means all.
func (s *SQLite) ListSessions(limit int) ([]session.StudySession, error) {
	q := `
		SELECT id, start_ns, end_ns, duration_sec, focus_score, studying, distracted, absent, idle, total
		FROM sessions ORDER BY start_ns DESC`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.StudySession
	for rows.Next() {
		var (
			ss             session.StudySession
			startNs, endNs int64
			stats          aggregate.Stats
		)
		if err := rows.Scan(&ss.ID, &startNs, &endNs, &ss.DurationSec, &ss.FocusScore,
			&stats.Studying, &stats.Distracted, &stats.Absent, &stats.Idle, &stats.Total); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ss.StartTime = time.Unix(0, startNs)
		ss.EndTime = time.Unix(0, endNs)
		ss.Stats = stats
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Ping verifies the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
