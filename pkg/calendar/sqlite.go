package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events to a local SQLite database so reminders
// survive process restarts.
type SQLiteStore struct {
	db       *sql.DB
	defaults Defaults
	log      *slog.Logger
}

// OpenSQLite opens (creating if necessary) the database at path.
func OpenSQLite(ctx context.Context, path string, defaults Defaults, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, defaults: defaults.normalize(), log: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    start_at INTEGER NOT NULL,
    end_at INTEGER NOT NULL,
    reminder_minutes INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at);
CREATE INDEX IF NOT EXISTS idx_events_title ON events(title, start_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(title string, start time.Time, durationMinutes, reminderOverrideMinutes int) (Event, error) {
	evt := newEvent(title, start, durationMinutes, reminderOverrideMinutes, s.defaults)

	_, err := s.db.Exec(
		`INSERT INTO events(event_id, title, start_at, end_at, reminder_minutes, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.Title,
		evt.Start.UTC().UnixNano(),
		evt.End.UTC().UnixNano(),
		evt.ReminderMinutes,
		time.Now().UnixNano(),
	)
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return evt, nil
}

func (s *SQLiteStore) Delete(eventID string) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FindByTitle(title string) (Event, error) {
	row := s.db.QueryRow(
		`SELECT event_id, title, start_at, end_at, reminder_minutes
		 FROM events WHERE title = ? ORDER BY start_at ASC, created_at ASC LIMIT 1`, title)

	evt, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return Event{}, ErrNotFound
	}
	return evt, err
}

func (s *SQLiteStore) ListUpcoming(ref time.Time) ([]Event, error) {
	return s.query(
		`SELECT event_id, title, start_at, end_at, reminder_minutes
		 FROM events WHERE start_at >= ? ORDER BY start_at ASC`,
		ref.UTC().UnixNano())
}

func (s *SQLiteStore) ListRange(from, to time.Time) ([]Event, error) {
	return s.query(
		`SELECT event_id, title, start_at, end_at, reminder_minutes
		 FROM events WHERE start_at >= ? AND start_at < ? ORDER BY start_at ASC`,
		from.UTC().UnixNano(), to.UTC().UnixNano())
}

func (s *SQLiteStore) query(q string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func scanEvent(scan func(...any) error) (Event, error) {
	var evt Event
	var start, end int64
	if err := scan(&evt.ID, &evt.Title, &start, &end, &evt.ReminderMinutes); err != nil {
		return Event{}, err
	}
	evt.Start = time.Unix(0, start).UTC()
	evt.End = time.Unix(0, end).UTC()
	return evt, nil
}
