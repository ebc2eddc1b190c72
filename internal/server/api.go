package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cronista/internal/dice"
	"cronista/internal/protocol"
	"cronista/internal/session"
	"cronista/internal/store"
)

type rollRequest struct {
	SessionID string `json:"session_id"`
	Formula   string `json:"formula"`
	Roller    string `json:"roller"`
}

// handleRoll serves POST /roll: evaluate a dice formula and broadcast
// the outcome to the session.
func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req rollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	res, err := dice.Eval(dice.DefaultRoller, req.Formula)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := map[string]any{
		"resultado":   res.Total,
		"explicacion": res.Explanation,
		"formula":     res.Formula,
		"roller":      req.Roller,
	}
	s.hub.SendToSession(sessionID, protocol.NewDiceResult(payload))
	writeJSON(w, http.StatusOK, res)
}

type journalAddRequest struct {
	SessionID   string `json:"session_id"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
}

func (s *Server) handleJournalAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req journalAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "event_type and description are required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	entry := s.journal.Register(sessionID, req.EventType, req.Description, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"entry":  entry,
	})
}

func (s *Server) handleJournalSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     s.journal.Log(sessionID),
	})
}

type saveRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	title := req.Title
	if title == "" {
		title = sessionID
	}

	snap := s.registry.Snapshot(sessionID)
	data, err := json.Marshal(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	if err := s.db.SaveCampaign(sessionID, title, data); err != nil {
		s.logger.Error("save campaign", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}

	s.journal.Register(sessionID, "campaign_saved", title, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"session_id": sessionID,
		"title":      title,
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	data, title, err := s.db.LoadCampaign(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		s.logger.Error("load campaign", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "load failed")
		return
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt campaign data")
		return
	}
	s.registry.Restore(sessionID, snap)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"session_id":   sessionID,
		"title":        title,
		"board_state":  snap.Board,
		"combat_state": snap.Combat,
	})
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	campaigns, err := s.db.ListCampaigns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if campaigns == nil {
		campaigns = []store.Campaign{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

func (s *Server) handleCampaignDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/campaigns/"), "/")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	if err := s.db.DeleteCampaign(sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
