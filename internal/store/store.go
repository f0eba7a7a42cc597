package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/engine"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("schedule not found")

// Store handles persistent storage using SQLite
type Store struct {
	db *sql.DB

	// Serialises writes so a computed schedule is never half-replaced
	mu sync.Mutex
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY between our own writers
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		date TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pin_states (
		device_id TEXT PRIMARY KEY,
		state INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Lock holds the write lock until the returned function is called. Callers
// use it to make "load, modify, save" sequences atomic.
func (s *Store) Lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// SaveSchedule stores the schedule of date's calendar day. The caller must
// hold Lock.
func (s *Store) SaveSchedule(ctx context.Context, date time.Time, schedule *engine.Schedule) error {
	body, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}

	query := `INSERT OR REPLACE INTO schedules (date, body, updated_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, day.Format(date), string(body), time.Now()); err != nil {
		return fmt.Errorf("saving schedule for %s: %w", day.Format(date), err)
	}
	return nil
}

// LoadSchedule retrieves the schedule of date's calendar day
func (s *Store) LoadSchedule(ctx context.Context, date time.Time) (*engine.Schedule, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM schedules WHERE date = ?`, day.Format(date)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, day.Format(date))
	}
	if err != nil {
		return nil, err
	}

	var schedule engine.Schedule
	if err := json.Unmarshal([]byte(body), &schedule); err != nil {
		return nil, fmt.Errorf("decoding schedule for %s: %w", day.Format(date), err)
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// HasSchedule reports whether a schedule is stored for date
func (s *Store) HasSchedule(ctx context.Context, date time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE date = ?`, day.Format(date)).Scan(&n)
	return n > 0, err
}

// ScheduleDates lists stored dates within [from, to], oldest first
func (s *Store) ScheduleDates(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM schedules WHERE date >= ? AND date <= ? ORDER BY date`,
		day.Format(from), day.Format(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// PinStates returns the last state driven to each device
func (s *Store) PinStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id, state FROM pin_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := map[string]bool{}
	for rows.Next() {
		var id string
		var state int
		if err := rows.Scan(&id, &state); err != nil {
			return nil, err
		}
		states[id] = state == 1
	}
	return states, rows.Err()
}

// SavePinStates records the states driven to the given devices
func (s *Store) SavePinStates(ctx context.Context, states map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, on := range states {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO pin_states (device_id, state, updated_at) VALUES (?, ?, ?)`,
			id, boolToInt(on), time.Now())
		if err != nil {
			return fmt.Errorf("saving state of %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
