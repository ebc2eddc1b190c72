// Package protocol dispatches inbound socket messages against the
// session state and fans the resulting deltas back out through the hub.
package protocol

import (
	"encoding/json"
	"log/slog"

	"cronista/internal/board"
	"cronista/internal/hub"
)

// Handler routes one inbound message to its effect. It is shared by
// every connection; all per-session state lives in the hub and board.
type Handler struct {
	hub    *hub.Hub
	board  *board.Store
	logger *slog.Logger
}

// NewHandler wires a Handler to the session singletons.
func NewHandler(h *hub.Hub, b *board.Store, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    h,
		board:  b,
		logger: logger.With(slog.String("system", "protocol")),
	}
}

// Handle applies one raw inbound message from conn. Malformed payloads
// are dropped; they never reach shared state.
func (h *Handler) Handle(sessionID string, conn hub.Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("invalid message",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return
	}

	switch env.Type {
	case "request_clients":
		clients := h.hub.Clients(sessionID)
		h.reply(conn, ClientsList{Type: "clients_list", Clients: clients, Total: len(clients)})

	case "request_map_state":
		snap := h.board.Snapshot(sessionID)
		h.reply(conn, MapState{Type: "map_state", Background: snap.Background, Tokens: snap.Tokens})

	case "token_moved":
		var msg TokenMoved
		if err := json.Unmarshal(data, &msg); err != nil || msg.TokenID == "" {
			h.logger.Warn("malformed token_moved", slog.String("session", sessionID))
			return
		}
		if !h.board.UpdatePosition(sessionID, msg.TokenID, msg.X, msg.Y) {
			return
		}
		h.hub.BroadcastExcept(sessionID, TokenUpdated{
			Type:    "token_updated",
			TokenID: msg.TokenID,
			X:       msg.X,
			Y:       msg.Y,
		}, conn)

	case "scene":
		h.logger.Info("relaying scene", slog.String("session", sessionID))
		h.hub.SendToSession(sessionID, json.RawMessage(data))

	default:
		// Forward-compatibility fallback: relay verbatim so commands the
		// server does not know about still reach every client.
		h.hub.SendToSession(sessionID, json.RawMessage(data))
	}
}

func (h *Handler) reply(conn hub.Conn, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal reply", slog.String("error", err.Error()))
		return
	}
	if err := conn.Send(payload); err != nil {
		h.logger.Warn("reply failed", slog.String("error", err.Error()))
	}
}
