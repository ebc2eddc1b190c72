package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"cronista/internal/board"
	"cronista/internal/dice"
	"cronista/internal/protocol"
)

type sceneRequest struct {
	SessionID string             `json:"session_id"`
	SceneID   int                `json:"scene_id"`
	Scene     sceneData          `json:"scene"`
	Party     []scenePartyMember `json:"pjs"`
}

type sceneData struct {
	Title     string       `json:"nombre"`
	Image     string       `json:"img"`
	Narrative string       `json:"narrativa"`
	Enemies   []sceneEnemy `json:"enemigos"`
}

type sceneEnemy struct {
	Name  string        `json:"nombre"`
	Count dice.Quantity `json:"cantidad"`
}

type scenePartyMember struct {
	Name  string `json:"nombre"`
	Image string `json:"img"`
}

// handleScene serves POST /vtt/scene: it projects a scene onto the
// board. The background is replaced, stale tokens are cleared, and a
// fresh token is created per party member and per enemy instance. Every
// step is broadcast so connected boards stay in lockstep.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	s.board.SetBackground(sessionID, req.Scene.Image)
	s.hub.SendToSession(sessionID, protocol.Scene{
		Type:      "scene",
		ShowVTT:   true,
		Image:     req.Scene.Image,
		Title:     req.Scene.Title,
		Text:      req.Scene.Narrative,
		Narrative: req.Scene.Narrative,
	})

	s.board.ClearTokens(sessionID)
	s.hub.SendToSession(sessionID, protocol.NewClearMap())

	for idx, member := range req.Party {
		tok := board.Token{
			ID:    fmt.Sprintf("pj_%d", idx),
			Name:  member.Name,
			X:     128 + idx*64,
			Y:     128,
			Color: "#2ecc71",
			Image: member.Image,
			Kind:  "pj",
		}
		s.board.AddToken(sessionID, tok)
		s.hub.SendToSession(sessionID, protocol.NewTokenCreated(tok))
	}

	for idx, enemy := range req.Scene.Enemies {
		count := enemy.Count.Resolve(dice.DefaultRoller)
		for i := 0; i < count; i++ {
			name := enemy.Name
			if count > 1 {
				name = fmt.Sprintf("%s #%d", enemy.Name, i+1)
			}
			tok := board.Token{
				ID:    fmt.Sprintf("enemigo_%d_%d_%d", req.SceneID, idx, i),
				Name:  name,
				X:     64 + i*64,
				Y:     384,
				Color: "#ff4444",
				Kind:  "enemigo",
			}
			s.board.AddToken(sessionID, tok)
			s.hub.SendToSession(sessionID, protocol.NewTokenCreated(tok))
		}
	}

	s.journal.Register(sessionID, "scene_projected", req.Scene.Title, map[string]any{
		"scene_id": req.SceneID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "projected",
		"scene_id": req.SceneID,
	})
}

type tokenCreateRequest struct {
	SessionID string `json:"session_id"`
	TokenID   string `json:"token_id"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Color     string `json:"color"`
	Image     string `json:"img"`
	Kind      string `json:"token_type"`
}

func (s *Server) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req tokenCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TokenID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "token_id and name are required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	kind := req.Kind
	if kind == "" {
		kind = "pj"
	}

	tok := board.Token{
		ID:    req.TokenID,
		Name:  req.Name,
		X:     req.X,
		Y:     req.Y,
		Color: req.Color,
		Image: req.Image,
		Kind:  kind,
	}
	s.board.AddToken(sessionID, tok)
	s.hub.SendToSession(sessionID, protocol.NewTokenCreated(tok))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"token":  tok,
	})
}

type tokenDeleteRequest struct {
	SessionID string `json:"session_id"`
	TokenID   string `json:"token_id"`
}

func (s *Server) handleTokenDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req tokenDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	if !s.board.RemoveToken(sessionID, req.TokenID) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	s.hub.SendToSession(sessionID, protocol.NewTokenRemoved(req.TokenID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type clearRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	s.board.ClearTokens(sessionID)
	s.hub.SendToSession(sessionID, protocol.NewClearMap())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBoardState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/vtt/state/"), "/")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}
	writeJSON(w, http.StatusOK, s.board.Snapshot(sessionID))
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/connections/"), "/")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	clients := s.hub.Clients(sessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":        sessionID,
		"total_connections": len(clients),
		"clients":           clients,
	})
}
