// Package dashboard serves the bot's monitoring API: session state,
// trade history, statistics, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/session"
	"github.com/jenbur242/pocket-option/internal/storage"
)

// SessionView exposes the live session state to the API.
type SessionView interface {
	Snapshot() session.Snapshot
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	session   SessionView
	broker    broker.Broker
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

func NewServer(cfg Config, store storage.Interface, sess SessionView, brk broker.Broker, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		session:   sess,
		broker:    brk,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/session", s.handleGetSession)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/api/trades", s.handleGetTrades)
	s.router.Get("/api/progressions", s.handleGetProgressions)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health stays open for container probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()

	balance := 0.0
	if s.broker != nil {
		b, err := s.broker.Balance(r.Context())
		if err != nil {
			s.logger.WithError(err).Warn("Failed to get account balance")
		} else {
			balance = b.InexactFloat64()
		}
	}

	s.writeJSON(w, map[string]interface{}{
		"session": snap,
		"balance": balance,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetStatistics())
}

func (s *Server) handleGetTrades(w http.ResponseWriter, _ *http.Request) {
	trades := s.storage.GetTrades()
	// Newest first; the API is for eyeballs, not exports.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleGetProgressions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.session.Snapshot().Progressions)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
