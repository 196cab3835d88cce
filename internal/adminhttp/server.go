// Package adminhttp exposes the Core's operational surface over HTTP:
// health, relay directory stats, and the export/import backup pair (spec
// §5's Export/Import operations), routed with go-chi the way the
// teacher's gRPC/lp handlers sit alongside the domain service rather
// than inside it.
package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solconnect/messaging-core/internal/bus"
	"github.com/solconnect/messaging-core/internal/domain/model"
	"github.com/solconnect/messaging-core/internal/relay"
)

// Server is the admin/diagnostic HTTP surface.
type Server struct {
	bus       *bus.Bus
	directory *relay.Directory
	logger    *slog.Logger
	router    chi.Router
}

// New builds the router. It does not start listening; call ListenAndServe
// or mount .Router() into an existing http.Server.
func New(b *bus.Bus, directory *relay.Directory, logger *slog.Logger) *Server {
	s := &Server{bus: b, directory: directory, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/relays", s.handleRelays)
	r.Get("/sessions/{sessionID}/export", s.handleExport)
	r.Post("/sessions/{sessionID}/import", s.handleImport)
	r.Post("/sessions/{sessionID}/sync", s.handleSync)

	s.router = r
	return s
}

// Router exposes the underlying chi.Router for embedding into a larger
// mux or a custom http.Server.
func (s *Server) Router() chi.Router { return s.router }

// ListenAndServe blocks serving the admin surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("adminhttp: listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRelays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.directory.List())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := s.bus.Export(r.Context(), sessionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var messages []*model.Message
	if err := json.NewDecoder(r.Body).Decode(&messages); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.bus.Import(r.Context(), messages); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"imported": len(messages)})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	stats, err := s.bus.Sync(r.Context(), sessionID)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
