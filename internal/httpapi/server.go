package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/libertymesh/operator/internal/config"
	"github.com/libertymesh/operator/internal/dispatch"
	"github.com/libertymesh/operator/internal/observability"
	"github.com/libertymesh/operator/internal/restrict"
	"github.com/libertymesh/operator/internal/state"
	"github.com/libertymesh/operator/internal/work"
)

// Server is the local admin surface: health, metrics, and read-only views of
// the gateway's live state. It never writes state; all mutation flows through
// the radio.
type Server struct {
	cfg      config.Config
	store    *state.Store
	restrict *restrict.Manager
	resolver *dispatch.Resolver
	queue    *work.Queue
	metrics  *observability.Metrics
}

func New(cfg config.Config, store *state.Store, restrictions *restrict.Manager, resolver *dispatch.Resolver, queue *work.Queue, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		restrict: restrictions,
		resolver: resolver,
		queue:    queue,
		metrics:  metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/sessions", s.handleSessions)
	r.Get("/v1/restrictions", s.handleRestrictions)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth":     s.queue.Depth(),
		"queue_capacity":  s.cfg.QueueDepth,
		"triage_sessions": s.store.SessionCount(),
		"restricted":      s.store.RestrictionCount(now),
		"responders":      s.resolver.Responders(),
	})
}

type sessionView struct {
	Sender       string   `json:"sender"`
	Phone        string   `json:"phone"`
	Trigger      string   `json:"trigger"`
	GPSLat       *float64 `json:"gps_lat,omitempty"`
	GPSLon       *float64 `json:"gps_lon,omitempty"`
	DispatchedTo []string `json:"dispatched_to"`
	StartedAt    string   `json:"started_at"`
	LastActivity string   `json:"last_activity"`
	Exchanges    int      `json:"exchanges"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.store.Sessions()
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionView{
			Sender:       sess.Sender,
			Phone:        sess.Phone,
			Trigger:      sess.Trigger,
			GPSLat:       sess.GPSLat,
			GPSLon:       sess.GPSLon,
			DispatchedTo: sess.DispatchedTo,
			StartedAt:    sess.StartedAt.UTC().Format(time.RFC3339),
			LastActivity: sess.LastActivity.UTC().Format(time.RFC3339),
			Exchanges:    len(sess.Exchanges),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

type restrictionView struct {
	Sender   string `json:"sender"`
	Phone    string `json:"phone"`
	LockedBy string `json:"locked_by"`
	Expiry   string `json:"expiry"`
}

func (s *Server) handleRestrictions(w http.ResponseWriter, _ *http.Request) {
	entries := s.restrict.Active()
	out := make([]restrictionView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, restrictionView{
			Sender:   entry.Sender,
			Phone:    entry.Phone,
			LockedBy: entry.LockedBy,
			Expiry:   entry.Expiry.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"restrictions": out})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
