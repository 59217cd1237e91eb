// Package dashboard serves a read-only HTTP view of the running strategy:
// a JSON metrics API, the leg book, health, and Prometheus exposition.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/strategy"
)

// Store holds the latest published snapshot. The monitor loop writes, HTTP
// handlers read; the strategy itself is never touched from a handler.
type Store struct {
	mu       sync.RWMutex
	snapshot strategy.Snapshot
	legs     []models.Leg
	updated  time.Time
}

// Publish replaces the stored snapshot.
func (st *Store) Publish(snap strategy.Snapshot, legs []models.Leg) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snapshot = snap
	st.legs = legs
	st.updated = time.Now()
}

// Snapshot returns the stored snapshot, its legs, and the publish time.
func (st *Store) Snapshot() (strategy.Snapshot, []models.Leg, time.Time) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot, st.legs, st.updated
}

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr string
	AuthToken  string
}

// Server is the dashboard HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     *Store
	logger    *logrus.Logger
	addr      string
	authToken string
}

// NewServer creates a dashboard server reading from the given store and
// exposing the given Prometheus gatherer at /metrics.
func NewServer(cfg Config, store *Store, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		logger:    logger,
		addr:      cfg.ListenAddr,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/metrics", s.handleMetrics)
	s.router.Get("/api/legs", s.handleLegs)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("addr", s.addr).Info("starting dashboard server")
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, _, updated := s.store.Snapshot()
	writeJSON(w, map[string]interface{}{
		"status":       "ok",
		"last_update":  updated,
		"current_time": time.Now(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap, _, updated := s.store.Snapshot()
	writeJSON(w, map[string]interface{}{
		"metrics":     snap,
		"last_update": updated,
	})
}

func (s *Server) handleLegs(w http.ResponseWriter, _ *http.Request) {
	_, legs, _ := s.store.Snapshot()
	if legs == nil {
		legs = []models.Leg{}
	}
	writeJSON(w, legs)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
