// Package journal keeps the per-session campaign event log in memory,
// mirroring entries to the store best-effort and reloading from it on a
// cold read.
package journal

import (
	"log/slog"
	"sync"
	"time"

	"cronista/internal/store"
)

// Entry is one recorded campaign event.
type Entry struct {
	Timestamp   string         `json:"timestamp"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// Persister is the slice of the store the journal needs. A nil
// Persister keeps the journal memory-only.
type Persister interface {
	AppendJournal(row store.JournalRow) error
	JournalEntries(sessionID string) ([]store.JournalRow, error)
}

// Journal records narrated campaign events per session.
type Journal struct {
	mu       sync.Mutex
	sessions map[string][]Entry
	db       Persister
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a Journal backed by the given persister, which may be
// nil.
func New(db Persister, logger *slog.Logger) *Journal {
	return &Journal{
		sessions: make(map[string][]Entry),
		db:       db,
		logger:   logger.With(slog.String("system", "journal")),
		now:      time.Now,
	}
}

// Register appends an event to the session's journal and mirrors it to
// the store. Persistence failures are logged and swallowed; the
// in-memory log is authoritative for the running session.
func (j *Journal) Register(sessionID, eventType, description string, metadata map[string]any) Entry {
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := j.now()
	entry := Entry{
		Timestamp:   now.Format(time.RFC3339),
		EventType:   eventType,
		Description: description,
		Metadata:    metadata,
	}

	j.mu.Lock()
	j.sessions[sessionID] = append(j.sessions[sessionID], entry)
	size := len(j.sessions[sessionID])
	j.mu.Unlock()

	if j.db != nil {
		err := j.db.AppendJournal(store.JournalRow{
			SessionID:   sessionID,
			EventType:   eventType,
			Description: description,
			Timestamp:   now,
		})
		if err != nil {
			j.logger.Warn("journal persist failed",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
	}

	j.logger.Info("event registered",
		slog.String("session", sessionID),
		slog.String("event", eventType),
		slog.Int("size", size))
	return entry
}

// Log returns the session's events. When nothing is in memory it falls
// back to the persisted entries, caching them for subsequent reads.
func (j *Journal) Log(sessionID string) []Entry {
	j.mu.Lock()
	events := j.sessions[sessionID]
	j.mu.Unlock()
	if len(events) > 0 || j.db == nil {
		return append([]Entry(nil), events...)
	}

	rows, err := j.db.JournalEntries(sessionID)
	if err != nil {
		j.logger.Warn("journal load failed",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	loaded := make([]Entry, len(rows))
	for i, r := range rows {
		loaded[i] = Entry{
			Timestamp:   r.Timestamp.Format(time.RFC3339),
			EventType:   r.EventType,
			Description: r.Description,
			Metadata:    map[string]any{},
		}
	}

	j.mu.Lock()
	if len(j.sessions[sessionID]) == 0 {
		j.sessions[sessionID] = loaded
	}
	j.mu.Unlock()

	j.logger.Info("journal loaded from store",
		slog.String("session", sessionID),
		slog.Int("events", len(loaded)))
	return append([]Entry(nil), loaded...)
}

// Clear drops the session's in-memory journal. Persisted entries are
// untouched.
func (j *Journal) Clear(sessionID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.sessions, sessionID)
}
