// Package history keeps a SQLite log of door moves and sensor readings.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/sensor"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("history: store closed")

const (
	dirPermissions = 0750
	busyTimeoutMs  = 5000

	// fixed width so text ordering matches time ordering
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

	defaultLimit = 50
	maxLimit     = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS door_moves (
	id          TEXT PRIMARY KEY,
	direction   TEXT NOT NULL,
	result      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_door_moves_started ON door_moves(started_at);

CREATE TABLE IF NOT EXISTS sensor_readings (
	id          TEXT PRIMARY KEY,
	light       REAL,
	temperature REAL,
	sampled_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_sampled ON sensor_readings(sampled_at);
`

// Move is a recorded door move.
type Move struct {
	ID        string        `json:"id"`
	Direction string        `json:"direction"`
	Result    string        `json:"result"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	// DurationMs mirrors Duration for JSON consumers.
	DurationMs int64 `json:"duration_ms"`
}

// Reading is a recorded sensor reading. Nil values were not available.
type Reading struct {
	ID          string    `json:"id"`
	Light       *float64  `json:"light"`
	Temperature *float64  `json:"temperature"`
	SampledAt   time.Time `json:"sampled_at"`
}

// Store is the SQLite history log. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// RecordMove stores a door move report.
func (s *Store) RecordMove(ctx context.Context, r door.MoveReport) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO door_moves (id, direction, result, started_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), r.Direction.String(), r.Result.String(),
		r.Started.UTC().Format(timeFormat), r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting door move: %w", err)
	}
	return nil
}

// RecordReading stores a sensor reading. Empty readings are skipped.
func (s *Store) RecordReading(ctx context.Context, r sensor.Reading) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if r.Empty() {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (id, light, temperature, sampled_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), nullableFloat(r.Light), nullableFloat(r.Temperature),
		r.Time.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor reading: %w", err)
	}
	return nil
}

// Moves returns the most recent moves, newest first.
func (s *Store) Moves(ctx context.Context, limit int) ([]Move, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, direction, result, started_at, duration_ms FROM door_moves ORDER BY started_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying door moves: %w", err)
	}
	defer rows.Close()

	moves := []Move{}
	for rows.Next() {
		var m Move
		var started string
		if err := rows.Scan(&m.ID, &m.Direction, &m.Result, &started, &m.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning door move: %w", err)
		}
		if m.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, fmt.Errorf("parsing door move time: %w", err)
		}
		m.Duration = time.Duration(m.DurationMs) * time.Millisecond
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// Readings returns the most recent sensor readings, newest first.
func (s *Store) Readings(ctx context.Context, limit int) ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, light, temperature, sampled_at FROM sensor_readings ORDER BY sampled_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sensor readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var r Reading
		var light, temp sql.NullFloat64
		var sampled string
		if err := rows.Scan(&r.ID, &light, &temp, &sampled); err != nil {
			return nil, fmt.Errorf("scanning sensor reading: %w", err)
		}
		if r.SampledAt, err = time.Parse(timeFormat, sampled); err != nil {
			return nil, fmt.Errorf("parsing sensor reading time: %w", err)
		}
		if light.Valid {
			r.Light = &light.Float64
		}
		if temp.Valid {
			r.Temperature = &temp.Float64
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing history database: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
