// Package webview serves a read-only JSON view of a live telemetry
// session over HTTP. It exposes the same rollups the report renderer
// consumes, so an operator can poll a session while the browser is
// still being driven.
package webview

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"webscope/internal/session"
)

const defaultEventLimit = 100

// maxEventLimit caps ?limit so a client cannot ask for more than the
// telemetry log retains anyway.
const maxEventLimit = 1000

// Server is the live status server for one session. All endpoints are
// GET and side-effect free; mutation stays with the browser driver.
type Server struct {
	sess   *session.Session
	logger *zap.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires a status server around sess. The addr is bound on
// Start; pass "127.0.0.1:0" to let the kernel pick a port.
func NewServer(addr string, sess *session.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sess:   sess,
		logger: logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/console", s.handleConsole)
		r.Get("/network", s.handleNetwork)
		r.Get("/performance", s.handlePerformance)
		r.Get("/events", s.handleEvents)
		r.Get("/export", s.handleExport)
	})
	return r
}

// Handler returns the routed handler, mainly for tests that drive the
// server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background. It
// returns once the listener is bound, so Addr is valid immediately
// after. Serve errors other than a clean shutdown are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("status server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("session_id", s.sess.ID()),
	)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr reports the bound listen address, or the configured one before
// Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"session_id": s.sess.ID(),
		"active":     s.sess.Active(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Summary())
}

func (s *Server) handleConsole(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Console().ExportSummary())
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Network().ExportSummary())
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Performance().Export())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}
	events := s.sess.Events().Recent(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": s.sess.ID(),
		"count":      len(events),
		"events":     events,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sess.Export())
}
