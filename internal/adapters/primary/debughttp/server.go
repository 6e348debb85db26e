package debughttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	"github.com/taskwire/taskwire-client/internal/core/services"
)

// Config holds debug server configuration
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// Server exposes a localhost status endpoint for the web dashboard:
// connection state, declared rooms, store sizes and live presence counts.
// Read-only; it never mutates the session.
type Server struct {
	session *services.Session
	logger  *slog.Logger
	srv     *http.Server
}

// New creates the debug server.
func New(cfg Config, session *services.Session, logger *slog.Logger) *Server {
	s := &Server{
		session: session,
		logger:  logger.With("component", "debug_server"),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/debug/state", s.handleState)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving until Shutdown or failure.
func (s *Server) Start() error {
	s.logger.Info("debug server listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	Connection      services.ConnState `json:"connection"`
	Rooms           []string           `json:"rooms"`
	Tasks           int                `json:"tasks"`
	Workspaces      int                `json:"workspaces"`
	PendingTotal    int                `json:"pending_mutations"`
	CursorsLive     int                `json:"cursors_live"`
	TypingLive      int                `json:"typing_live"`
	GeneratedAtUnix int64              `json:"generated_at"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	membership := s.session.Rooms().Membership()
	rooms := make([]string, 0, len(membership))
	for _, room := range membership {
		rooms = append(rooms, room.String())
	}

	s.writeJSON(w, http.StatusOK, stateResponse{
		Connection:      s.session.State(),
		Rooms:           rooms,
		Tasks:           s.session.Tasks().Size(),
		Workspaces:      s.session.Workspaces().Size(),
		PendingTotal:    s.session.Tasks().PendingTotal() + s.session.Workspaces().PendingTotal(),
		CursorsLive:     s.session.Presence().Len(domain.PresenceCursor),
		TypingLive:      s.session.Presence().Len(domain.PresenceTyping),
		GeneratedAtUnix: time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
