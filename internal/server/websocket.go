package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cronista/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// wsClient adapts a gorilla websocket connection to the hub. Outbound
// messages go through a buffered channel drained by writePump so that a
// slow reader never blocks a broadcast.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *wsClient) ID() string { return c.id }

// Send queues a message for delivery. A full buffer counts as a failed
// send, which makes the hub prune the connection.
func (c *wsClient) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.matchOrigin(origin) != ""
		},
	}
}

// handleWebsocket serves GET /ws/{session_id}?client_type=&client_name=.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	role := hub.Role(strings.ToLower(r.URL.Query().Get("client_type")))
	if role == "" {
		role = hub.RolePlayer
	}
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid client_type")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("client_name"))
	if name == "" {
		name = "Player"
	}
	if len(name) > s.cfg.MaxClientName {
		name = name[:s.cfg.MaxClientName]
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", slog.String("error", err.Error()))
		return
	}

	client := newWSClient(conn)
	go client.writePump()

	s.hub.Connect(sessionID, client, role, name)
	s.readLoop(sessionID, client)

	info, ok := s.hub.Disconnect(sessionID, client)
	_ = conn.Close()
	if ok {
		s.hub.AnnounceDeparture(sessionID, info)
	}
}

// readLoop blocks until the connection drops, dispatching every inbound
// message to the protocol handler.
func (s *Server) readLoop(sessionID string, client *wsClient) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", slog.String("session_id", sessionID), slog.String("error", err.Error()))
			}
			return
		}
		s.handler.Handle(sessionID, client, data)
	}
}
