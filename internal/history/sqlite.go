package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store. Use ":memory:" for an
// in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT NOT NULL,
		round INTEGER NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_events_task ON build_events(task);
	CREATE INDEX IF NOT EXISTS idx_build_events_timestamp ON build_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO build_events (task, round, stage, status, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		ev.Task, ev.Round, ev.Stage, ev.Status, ev.Detail, ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert build event: %w", err)
	}
	return nil
}

// ByTask retrieves all events for a task, oldest first.
func (s *SQLiteStore) ByTask(ctx context.Context, task string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, task, round, stage, status, detail, timestamp FROM build_events WHERE task = ? ORDER BY id",
		task,
	)
	if err != nil {
		return nil, fmt.Errorf("query build events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts int64
		var detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Task, &ev.Round, &ev.Stage, &ev.Status, &detail, &ts); err != nil {
			return nil, fmt.Errorf("scan build event: %w", err)
		}
		ev.Detail = detail.String
		ev.Timestamp = time.Unix(ts, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes events older than the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM build_events WHERE timestamp < ?", olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune build events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
