// Package store persists campaign snapshots and journal entries to
// SQLite. The in-memory session state stays authoritative; this is the
// durable boundary an explicit save crosses.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a campaign that was never saved.
var ErrNotFound = errors.New("campaign not found")

// Campaign is one saved session snapshot.
type Campaign struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JournalRow is one persisted journal entry.
type JournalRow struct {
	SessionID   string
	EventType   string
	Description string
	Timestamp   time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open prepares a SQLite database at the given path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			session_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			data_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			description TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_session_timestamp ON journal_entries(session_id, timestamp, id);`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_updated ON campaigns(updated_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCampaign upserts the snapshot for a session.
func (s *Store) SaveCampaign(sessionID, title string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO campaigns (session_id, title, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at;`,
		sessionID, title, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	return nil
}

// LoadCampaign returns the saved snapshot and title for a session.
func (s *Store) LoadCampaign(sessionID string) ([]byte, string, error) {
	var data, title string
	err := s.db.QueryRow(
		`SELECT data_json, title FROM campaigns WHERE session_id = ?;`, sessionID,
	).Scan(&data, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load campaign: %w", err)
	}
	return []byte(data), title, nil
}

// ListCampaigns returns every saved campaign, most recently updated
// first.
func (s *Store) ListCampaigns() ([]Campaign, error) {
	rows, err := s.db.Query(
		`SELECT session_id, title, created_at, updated_at FROM campaigns ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.SessionID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCampaign removes a saved campaign and its journal entries.
func (s *Store) DeleteCampaign(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM campaigns WHERE session_id = ?;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec(`DELETE FROM journal_entries WHERE session_id = ?;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete journal entries: %w", err)
	}
	return nil
}

// AppendJournal persists one journal entry.
func (s *Store) AppendJournal(row JournalRow) error {
	_, err := s.db.Exec(`
		INSERT INTO journal_entries (session_id, event_type, description, timestamp)
		VALUES (?, ?, ?, ?);`,
		row.SessionID, row.EventType, row.Description, row.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// JournalEntries returns a session's persisted journal in insertion
// order.
func (s *Store) JournalEntries(sessionID string) ([]JournalRow, error) {
	rows, err := s.db.Query(`
		SELECT session_id, event_type, description, timestamp
		FROM journal_entries WHERE session_id = ?
		ORDER BY timestamp, id;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal entries: %w", err)
	}
	defer rows.Close()

	var out []JournalRow
	for rows.Next() {
		var r JournalRow
		if err := rows.Scan(&r.SessionID, &r.EventType, &r.Description, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
