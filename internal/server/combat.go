package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"cronista/internal/combat"
	"cronista/internal/protocol"
)

type combatRequest struct {
	SessionID string           `json:"session_id"`
	Action    string           `json:"action"`
	Data      combatActionData `json:"data"`
}

type combatActionData struct {
	Enemies []combat.EnemyGroup  `json:"enemigos"`
	Party   []combat.PartyMember `json:"pjs"`
	Enemy   *combat.Enemy        `json:"enemigo"`
	Target  string               `json:"target"`
	Amount  int                  `json:"amount"`
}

// handleCombat serves POST /combat. Every successful action broadcasts
// the resulting combat snapshot to the whole session.
func (s *Server) handleCombat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req combatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	var (
		enc combat.Encounter
		err error
	)

	switch req.Action {
	case "start":
		if len(req.Data.Enemies) == 0 {
			writeError(w, http.StatusBadRequest, "no enemies provided")
			return
		}
		balanced := combat.AdjustEncounter(s.logger, req.Data.Enemies, req.Data.Party)
		enc = s.combat.Start(sessionID, balanced, req.Data.Party)
		s.journal.Register(sessionID, "combat_start", "Inicio de combate", map[string]any{
			"combatientes": len(enc.Combatants),
		})
	case "next_turn":
		enc, err = s.combat.NextTurn(sessionID)
	case "add_enemy":
		if req.Data.Enemy == nil {
			writeError(w, http.StatusBadRequest, "missing enemigo")
			return
		}
		enc, err = s.combat.AddCombatant(sessionID, *req.Data.Enemy)
	case "damage":
		if req.Data.Target == "" {
			writeError(w, http.StatusBadRequest, "missing target")
			return
		}
		enc, err = s.combat.ApplyDamage(sessionID, req.Data.Target, req.Data.Amount)
	case "heal":
		if req.Data.Target == "" {
			writeError(w, http.StatusBadRequest, "missing target")
			return
		}
		enc, err = s.combat.Heal(sessionID, req.Data.Target, req.Data.Amount)
	case "end":
		var rounds int
		rounds, err = s.combat.End(sessionID)
		if err == nil {
			s.journal.Register(sessionID, "combat_end", "Combate finalizado", map[string]any{
				"rondas": rounds,
			})
			enc = s.combat.State(sessionID)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, combat.ErrTargetNotFound):
			writeError(w, http.StatusNotFound, "target not found")
		case errors.Is(err, combat.ErrNoEncounter):
			writeError(w, http.StatusNotFound, "no active encounter")
		default:
			writeError(w, http.StatusInternalServerError, "combat action failed")
		}
		return
	}

	s.hub.SendToSession(sessionID, protocol.NewCombatUpdate(enc))
	writeJSON(w, http.StatusOK, enc)
}
