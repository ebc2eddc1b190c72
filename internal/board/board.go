// Package board holds the per-session virtual tabletop state: an
// optional background image, the positioned tokens and the grid flag.
// It is independent of any connected client.
package board

import (
	"log/slog"
	"sync"
)

// Token is a positioned marker on the board.
type Token struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color,omitempty"`
	Image string `json:"img,omitempty"`
	Kind  string `json:"type"`
}

// Snapshot is a point-in-time copy of a session's board. Token order is
// not stable across calls.
type Snapshot struct {
	Background  string  `json:"background"`
	Tokens      []Token `json:"tokens"`
	GridVisible bool    `json:"grid_visible"`
}

type session struct {
	mu          sync.Mutex
	background  string
	tokens      map[string]Token
	gridVisible bool
}

// Store is the process-wide board state, partitioned by session id.
// Sessions are created lazily on first access and never destroyed.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

// NewStore returns an empty Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*session),
		logger:   logger.With(slog.String("system", "board")),
	}
}

func (s *Store) session(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{tokens: make(map[string]Token), gridVisible: true}
	s.sessions[id] = sess
	return sess
}

// SetBackground replaces the background reference unconditionally.
func (s *Store) SetBackground(sessionID, imageRef string) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	sess.background = imageRef
	sess.mu.Unlock()
	s.logger.Debug("background set", slog.String("session", sessionID))
}

// AddToken inserts or overwrites a token by id. Last write wins on id
// collision.
func (s *Store) AddToken(sessionID string, tok Token) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	sess.tokens[tok.ID] = tok
	sess.mu.Unlock()
}

// UpdatePosition moves an existing token. It reports false when the
// token id is unknown. Coordinates are not clamped here.
func (s *Store) UpdatePosition(sessionID, tokenID string, x, y int) bool {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	tok, ok := sess.tokens[tokenID]
	if !ok {
		return false
	}
	tok.X, tok.Y = x, y
	sess.tokens[tokenID] = tok
	return true
}

// RemoveToken deletes a token by id, reporting whether it existed.
func (s *Store) RemoveToken(sessionID, tokenID string) bool {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.tokens[tokenID]; !ok {
		return false
	}
	delete(sess.tokens, tokenID)
	return true
}

// ClearTokens empties the token set, preserving background and grid.
func (s *Store) ClearTokens(sessionID string) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	sess.tokens = make(map[string]Token)
	sess.mu.Unlock()
	s.logger.Debug("tokens cleared", slog.String("session", sessionID))
}

// Tokens returns a copy of all tokens for a session.
func (s *Store) Tokens(sessionID string) []Token {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	out := make([]Token, 0, len(sess.tokens))
	for _, tok := range sess.tokens {
		out = append(out, tok)
	}
	return out
}

// Snapshot returns the session's background, tokens and grid flag.
func (s *Store) Snapshot(sessionID string) Snapshot {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	tokens := make([]Token, 0, len(sess.tokens))
	for _, tok := range sess.tokens {
		tokens = append(tokens, tok)
	}
	return Snapshot{
		Background:  sess.background,
		Tokens:      tokens,
		GridVisible: sess.gridVisible,
	}
}

// Restore replaces a session's board with a previously saved snapshot.
func (s *Store) Restore(sessionID string, snap Snapshot) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.background = snap.Background
	sess.gridVisible = snap.GridVisible
	sess.tokens = make(map[string]Token, len(snap.Tokens))
	for _, tok := range snap.Tokens {
		sess.tokens[tok.ID] = tok
	}
}
