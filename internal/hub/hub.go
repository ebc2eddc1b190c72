// Package hub owns the live client channels for each session and the
// delivery primitives over them. A broken channel never blocks delivery
// to the rest of its session: failed sends are collected during the
// pass and the offenders pruned afterwards.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Role tags a connection with its client kind. The launcher role is a
// health probe: it never appears in rosters and never triggers
// connect or disconnect announcements.
type Role string

const (
	RoleDM       Role = "dm"
	RolePlayer   Role = "player"
	RoleLauncher Role = "launcher"
)

// Valid reports whether the role is one of the known client kinds.
func (r Role) Valid() bool {
	switch r {
	case RoleDM, RolePlayer, RoleLauncher:
		return true
	}
	return false
}

// Visible reports whether the role participates in rosters and
// presence announcements.
func (r Role) Visible() bool {
	return r != RoleLauncher
}

// Conn is one live bidirectional client channel. Send must not block
// indefinitely; it returns an error when the channel can no longer
// accept messages.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// ClientInfo is the roster entry for a connected client.
type ClientInfo struct {
	Name        string `json:"name"`
	Role        Role   `json:"type"`
	ConnectedAt string `json:"connected_at"`
	Online      bool   `json:"online"`
}

type entry struct {
	conn Conn
	info ClientInfo
}

type session struct {
	mu      sync.Mutex
	entries map[string]entry // keyed by connection id
}

// Hub is the process-wide connection registry, partitioned by session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an empty Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		logger:   logger.With(slog.String("system", "hub")),
		now:      time.Now,
	}
}

func (h *Hub) session(id string, create bool) *session {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if ok || !create {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.sessions[id]; ok {
		return s
	}
	s = &session{entries: make(map[string]entry)}
	h.sessions[id] = s
	return s
}

// Connect registers a channel under a session with its role and display
// name, then announces client_connected to the session unless the role
// is launcher.
func (h *Hub) Connect(sessionID string, c Conn, role Role, name string) {
	s := h.session(sessionID, true)
	s.mu.Lock()
	s.entries[c.ID()] = entry{
		conn: c,
		info: ClientInfo{
			Name:        name,
			Role:        role,
			ConnectedAt: h.now().Format(time.RFC3339),
			Online:      true,
		},
	}
	total := len(s.entries)
	s.mu.Unlock()

	h.logger.Info("client connected",
		slog.String("session", sessionID),
		slog.String("name", name),
		slog.String("role", string(role)),
		slog.Int("total", total))

	if role.Visible() {
		h.SendToSession(sessionID, map[string]any{
			"type":              "client_connected",
			"client_name":       name,
			"client_type":       role,
			"total_connections": total,
			"timestamp":         h.now().Format(time.RFC3339),
		})
	}
}

// Disconnect removes the channel and returns its roster entry. It
// reports false when the channel is not registered, which happens when
// a failed send already pruned it. When the session has no remaining
// channels its entry is dropped; board and combat state are untouched.
func (h *Hub) Disconnect(sessionID string, c Conn) (ClientInfo, bool) {
	s := h.session(sessionID, false)
	if s == nil {
		return ClientInfo{}, false
	}

	s.mu.Lock()
	e, ok := s.entries[c.ID()]
	if ok {
		delete(s.entries, c.ID())
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if remaining == 0 {
		h.mu.Lock()
		if cur, exists := h.sessions[sessionID]; exists && cur == s {
			s.mu.Lock()
			if len(s.entries) == 0 {
				delete(h.sessions, sessionID)
			}
			s.mu.Unlock()
		}
		h.mu.Unlock()
	}

	if !ok {
		return ClientInfo{}, false
	}

	h.logger.Info("client disconnected",
		slog.String("session", sessionID),
		slog.String("name", e.info.Name),
		slog.String("role", string(e.info.Role)),
		slog.Int("remaining", remaining))
	return e.info, true
}

// snapshot copies the session's entries so delivery never holds the
// registration lock.
func (h *Hub) snapshot(sessionID string) []entry {
	s := h.session(sessionID, false)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// deliver sends payload to every entry accepted by the filter and
// returns the entries whose send failed.
func (h *Hub) deliver(sessionID string, payload []byte, accept func(entry) bool) []entry {
	var dead []entry
	for _, e := range h.snapshot(sessionID) {
		if accept != nil && !accept(e) {
			continue
		}
		if err := e.conn.Send(payload); err != nil {
			h.logger.Error("send failed",
				slog.String("session", sessionID),
				slog.String("name", e.info.Name),
				slog.String("error", err.Error()))
			dead = append(dead, e)
		}
	}
	return dead
}

// prune removes channels that failed a send, closes them, and announces
// their departure to the remaining clients.
func (h *Hub) prune(sessionID string, dead []entry) {
	for _, e := range dead {
		info, ok := h.Disconnect(sessionID, e.conn)
		_ = e.conn.Close()
		if ok {
			h.AnnounceDeparture(sessionID, info)
		}
	}
}

// AnnounceDeparture broadcasts client_disconnected for a channel that
// was just removed. Launchers leave silently.
func (h *Hub) AnnounceDeparture(sessionID string, info ClientInfo) {
	if !info.Role.Visible() {
		return
	}
	h.SendToSession(sessionID, map[string]any{
		"type":              "client_disconnected",
		"client_name":       info.Name,
		"client_type":       info.Role,
		"total_connections": h.Count(sessionID),
		"timestamp":         h.now().Format(time.RFC3339),
	})
}

func (h *Hub) broadcast(sessionID string, msg any, accept func(entry) bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", slog.String("error", err.Error()))
		return
	}
	h.prune(sessionID, h.deliver(sessionID, payload, accept))
}

// SendToSession delivers msg to every live channel of the session.
func (h *Hub) SendToSession(sessionID string, msg any) {
	h.broadcast(sessionID, msg, nil)
}

// BroadcastExcept delivers msg to everyone in the session but the given
// channel, so the origin of a change never receives its own echo.
func (h *Hub) BroadcastExcept(sessionID string, msg any, except Conn) {
	h.broadcast(sessionID, msg, func(e entry) bool {
		return e.conn.ID() != except.ID()
	})
}

// SendToRole delivers msg only to channels tagged with the given role.
func (h *Hub) SendToRole(sessionID string, msg any, role Role) {
	h.broadcast(sessionID, msg, func(e entry) bool {
		return e.info.Role == role
	})
}

// Clients returns the roster of non-launcher channels for a session.
func (h *Hub) Clients(sessionID string) []ClientInfo {
	entries := h.snapshot(sessionID)
	out := make([]ClientInfo, 0, len(entries))
	for _, e := range entries {
		if !e.info.Role.Visible() {
			continue
		}
		out = append(out, e.info)
	}
	return out
}

// Count returns the number of live channels for a session, launchers
// included.
func (h *Hub) Count(sessionID string) int {
	s := h.session(sessionID, false)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats reports the total number of sessions with live channels and the
// total channel count, for the health surface.
func (h *Hub) Stats() (sessions, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions = len(h.sessions)
	for _, s := range h.sessions {
		s.mu.Lock()
		clients += len(s.entries)
		s.mu.Unlock()
	}
	return sessions, clients
}
