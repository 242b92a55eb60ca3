// Package database persists counting sessions and their events in SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"crosswatch/internal/geometry"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// SessionRecord is one counting session of a source
type SessionRecord struct {
	ID        string     `json:"id"`
	SourceID  string     `json:"source_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	In        int        `json:"in"`
	Out       int        `json:"out"`
	Frames    uint64     `json:"frames"`
}

// CrossingRecord is one counted boundary crossing
type CrossingRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SourceID   string    `json:"source_id"`
	TrackID    int       `json:"track_id"`
	Direction  string    `json:"direction"`
	FrameIndex uint64    `json:"frame_index"`
	Timestamp  time.Time `json:"timestamp"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
}

// AlertRecord is one violation alert
type AlertRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	SourceID         string    `json:"source_id"`
	FrameIndex       uint64    `json:"frame_index"`
	Timestamp        time.Time `json:"timestamp"`
	Consecutive      int       `json:"consecutive"`
	FramePath        string    `json:"frame_path,omitempty"`
	NotificationSent bool      `json:"notification_sent"`
}

// RecognitionRecord is the first sighting of a name in a session
type RecognitionRecord struct {
	ID               string       `json:"id"`
	SessionID        string       `json:"session_id"`
	SourceID         string       `json:"source_id"`
	Name             string       `json:"name"`
	Confidence       float64      `json:"confidence"`
	Box              geometry.Box `json:"box"`
	FrameIndex       uint64       `json:"frame_index"`
	Timestamp        time.Time    `json:"timestamp"`
	FramePath        string       `json:"frame_path,omitempty"`
	NotificationSent bool         `json:"notification_sent"`
}

// EventFilter narrows event listings. Zero fields match everything.
type EventFilter struct {
	SourceID  string
	SessionID string
	Since     *time.Time
	Limit     int
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Per-connection pragmas go in the DSN so every pooled connection has them
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Database{db: db}, nil
}

// Ping checks the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			in_count INTEGER DEFAULT 0,
			out_count INTEGER DEFAULT 0,
			frames INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS crossing_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			track_id INTEGER NOT NULL,
			direction TEXT NOT NULL,
			frame_index INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			x REAL,
			y REAL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			frame_index INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			consecutive INTEGER,
			frame_path TEXT,
			notification_sent INTEGER DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS recognition_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			name TEXT NOT NULL,
			confidence REAL,
			bounding_box TEXT,
			frame_index INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			frame_path TEXT,
			notification_sent INTEGER DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source_id, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_crossings_source_time ON crossing_events(source_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source_time ON alert_events(source_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_recognitions_source_time ON recognition_events(source_id, timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveSession inserts a session, or updates its totals if it already exists
func (d *Database) SaveSession(s *SessionRecord) error {
	query := `INSERT INTO sessions (id, source_id, started_at, ended_at, in_count, out_count, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at = excluded.ended_at,
			in_count = excluded.in_count,
			out_count = excluded.out_count,
			frames = excluded.frames`

	_, err := d.db.Exec(query, s.ID, s.SourceID, s.StartedAt.UTC(), nullTime(s.EndedAt), s.In, s.Out, s.Frames)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateSessionTotals records the latest counts of a session
func (d *Database) UpdateSessionTotals(id string, in, out int, frames uint64) error {
	_, err := d.db.Exec("UPDATE sessions SET in_count = ?, out_count = ?, frames = ? WHERE id = ?",
		in, out, frames, id)
	if err != nil {
		return fmt.Errorf("failed to update session totals: %w", err)
	}
	return nil
}

// EndSession stamps the end time of a session
func (d *Database) EndSession(id string, at time.Time) error {
	_, err := d.db.Exec("UPDATE sessions SET ended_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

const sessionColumns = `id, source_id, started_at, ended_at, in_count, out_count, frames`

// GetSession retrieves a session by ID, nil if it does not exist
func (d *Database) GetSession(id string) (*SessionRecord, error) {
	row := d.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions newest first, optionally for one source
func (d *Database) ListSessions(sourceID string, limit int) ([]*SessionRecord, error) {
	w := newWhere()
	w.eq("source_id", sourceID)
	query := "SELECT " + sessionColumns + " FROM sessions" + w.String() + " ORDER BY started_at DESC"
	args := w.args
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveCrossing stores a crossing event, assigning an ID if it has none
func (d *Database) SaveCrossing(c *CrossingRecord) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	query := `INSERT INTO crossing_events
		(id, session_id, source_id, track_id, direction, frame_index, timestamp, x, y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.Exec(query, c.ID, c.SessionID, c.SourceID, c.TrackID, c.Direction,
		c.FrameIndex, c.Timestamp.UTC(), c.X, c.Y)
	if err != nil {
		return fmt.Errorf("failed to save crossing: %w", err)
	}
	return nil
}

// ListCrossings returns crossings newest first
func (d *Database) ListCrossings(f EventFilter) ([]*CrossingRecord, error) {
	query, args := f.query(`SELECT id, session_id, source_id, track_id, direction, frame_index, timestamp, x, y
		FROM crossing_events`)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crossings: %w", err)
	}
	defer rows.Close()

	var out []*CrossingRecord
	for rows.Next() {
		var c CrossingRecord
		if err := rows.Scan(&c.ID, &c.SessionID, &c.SourceID, &c.TrackID, &c.Direction,
			&c.FrameIndex, &c.Timestamp, &c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("failed to scan crossing: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveAlert stores an alert event, assigning an ID if it has none
func (d *Database) SaveAlert(a *AlertRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `INSERT INTO alert_events
		(id, session_id, source_id, frame_index, timestamp, consecutive, frame_path, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			frame_path = excluded.frame_path,
			notification_sent = excluded.notification_sent`

	_, err := d.db.Exec(query, a.ID, a.SessionID, a.SourceID, a.FrameIndex, a.Timestamp.UTC(),
		a.Consecutive, a.FramePath, boolInt(a.NotificationSent))
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts newest first
func (d *Database) ListAlerts(f EventFilter) ([]*AlertRecord, error) {
	query, args := f.query(`SELECT id, session_id, source_id, frame_index, timestamp, consecutive,
		frame_path, notification_sent FROM alert_events`)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*AlertRecord
	for rows.Next() {
		var a AlertRecord
		var sent int
		if err := rows.Scan(&a.ID, &a.SessionID, &a.SourceID, &a.FrameIndex, &a.Timestamp,
			&a.Consecutive, &a.FramePath, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.NotificationSent = sent == 1
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveRecognition stores a recognition event, assigning an ID if it has none
func (d *Database) SaveRecognition(r *RecognitionRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	boxJSON, err := json.Marshal(r.Box)
	if err != nil {
		return fmt.Errorf("failed to marshal bounding box: %w", err)
	}

	query := `INSERT INTO recognition_events
		(id, session_id, source_id, name, confidence, bounding_box, frame_index, timestamp,
		 frame_path, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			frame_path = excluded.frame_path,
			notification_sent = excluded.notification_sent`

	_, err = d.db.Exec(query, r.ID, r.SessionID, r.SourceID, r.Name, r.Confidence, string(boxJSON),
		r.FrameIndex, r.Timestamp.UTC(), r.FramePath, boolInt(r.NotificationSent))
	if err != nil {
		return fmt.Errorf("failed to save recognition: %w", err)
	}
	return nil
}

// ListRecognitions returns recognitions newest first
func (d *Database) ListRecognitions(f EventFilter) ([]*RecognitionRecord, error) {
	query, args := f.query(`SELECT id, session_id, source_id, name, confidence, bounding_box,
		frame_index, timestamp, frame_path, notification_sent FROM recognition_events`)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recognitions: %w", err)
	}
	defer rows.Close()

	var out []*RecognitionRecord
	for rows.Next() {
		var r RecognitionRecord
		var boxJSON string
		var sent int
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SourceID, &r.Name, &r.Confidence, &boxJSON,
			&r.FrameIndex, &r.Timestamp, &r.FramePath, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan recognition: %w", err)
		}
		r.NotificationSent = sent == 1
		if boxJSON != "" {
			if err := json.Unmarshal([]byte(boxJSON), &r.Box); err != nil {
				return nil, fmt.Errorf("failed to unmarshal bounding box: %w", err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteOldEvents deletes events of every kind older than the specified time
func (d *Database) DeleteOldEvents(before time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"crossing_events", "alert_events", "recognition_events"} {
		result, err := d.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", before.UTC())
		if err != nil {
			return total, fmt.Errorf("failed to delete old events from %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var s SessionRecord
	var ended sql.NullTime
	if err := row.Scan(&s.ID, &s.SourceID, &s.StartedAt, &ended, &s.In, &s.Out, &s.Frames); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// query appends the filter's WHERE, ORDER BY and LIMIT clauses to base
func (f EventFilter) query(base string) (string, []any) {
	w := newWhere()
	w.eq("source_id", f.SourceID)
	w.eq("session_id", f.SessionID)
	if f.Since != nil {
		w.add("timestamp >= ?", f.Since.UTC())
	}

	query := base + w.String() + " ORDER BY timestamp DESC"
	args := w.args
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return query, args
}

type where struct {
	clauses []string
	args    []any
}

func newWhere() *where { return &where{} }

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

// eq adds "column = ?" unless value is empty
func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
