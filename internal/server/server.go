package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"cronista/internal/board"
	"cronista/internal/combat"
	"cronista/internal/hub"
	"cronista/internal/journal"
	"cronista/internal/protocol"
	"cronista/internal/session"
	"cronista/internal/store"
)

// defaultSessionID is used when a request omits session_id, matching
// what single-table deployments expect.
const defaultSessionID = "default_session"

// Server wraps HTTP handlers and the per-session coordination state.
type Server struct {
	cfg             Config
	logger          *slog.Logger
	mux             *http.ServeMux
	allowedOrigins  []string
	allowAllOrigins bool

	hub      *hub.Hub
	board    *board.Store
	combat   *combat.Engine
	journal  *journal.Journal
	registry *session.Registry
	db       *store.Store
	handler  *protocol.Handler
}

// New constructs a Server with routes and middleware configured. The
// store may be nil, which keeps campaigns and the journal memory-only.
func New(cfg Config, db *store.Store) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	h := hub.New(logger)
	b := board.NewStore(logger)
	c := combat.NewEngine(logger)

	var persister journal.Persister
	if db != nil {
		persister = db
	}

	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		hub:            h,
		board:          b,
		combat:         c,
		journal:        journal.New(persister, logger),
		registry:       session.NewRegistry(b, c),
		db:             db,
		handler:        protocol.NewHandler(h, b, logger),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}

	srv.routes()
	return srv
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Router returns the full handler chain, for serving and for tests.
func (s *Server) Router() http.Handler {
	return s.withCORS(s.loggingMiddleware(s.mux))
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	addr := ":" + s.cfg.Port
	s.logger.Info("starting server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/ws/", s.handleWebsocket)
	s.mux.HandleFunc("/combat", s.handleCombat)
	s.mux.HandleFunc("/vtt/scene", s.handleScene)
	s.mux.HandleFunc("/vtt/token/create", s.handleTokenCreate)
	s.mux.HandleFunc("/vtt/token", s.handleTokenDelete)
	s.mux.HandleFunc("/vtt/clear", s.handleClear)
	s.mux.HandleFunc("/vtt/state/", s.handleBoardState)
	s.mux.HandleFunc("/api/connections/", s.handleConnections)
	s.mux.HandleFunc("/roll", s.handleRoll)
	s.mux.HandleFunc("/journal/add", s.handleJournalAdd)
	s.mux.HandleFunc("/journal/summary", s.handleJournalSummary)
	s.mux.HandleFunc("/save", s.handleSave)
	s.mux.HandleFunc("/load", s.handleLoad)
	s.mux.HandleFunc("/campaigns", s.handleCampaigns)
	s.mux.HandleFunc("/campaigns/", s.handleCampaignDelete)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Hijack allows WebSocket handlers to upgrade the connection through the wrapped writer.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, clients := s.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"sessions": sessions,
		"clients":  clients,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
