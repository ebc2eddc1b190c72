// Package session composes the per-session singletons into one
// registry that can snapshot a session's state for persistence and
// restore it at load time. Sessions are created lazily by the
// underlying stores; any string is a valid session id.
package session

import (
	"cronista/internal/board"
	"cronista/internal/combat"
)

// Snapshot is the serializable state of one session.
type Snapshot struct {
	Board  board.Snapshot   `json:"board_state"`
	Combat combat.Encounter `json:"combat_state"`
}

// Registry ties the session-partitioned stores together.
type Registry struct {
	board  *board.Store
	combat *combat.Engine
}

// NewRegistry returns a Registry over the given stores.
func NewRegistry(b *board.Store, c *combat.Engine) *Registry {
	return &Registry{board: b, combat: c}
}

// Snapshot captures the session's board and combat state. The two
// reads are not atomic with respect to each other; callers saving
// mid-combat get whichever encounter state is current.
func (r *Registry) Snapshot(sessionID string) Snapshot {
	return Snapshot{
		Board:  r.board.Snapshot(sessionID),
		Combat: r.combat.State(sessionID),
	}
}

// Restore replaces the session's board and combat state with a saved
// snapshot.
func (r *Registry) Restore(sessionID string, snap Snapshot) {
	r.board.Restore(sessionID, snap.Board)
	r.combat.Restore(sessionID, snap.Combat)
}
