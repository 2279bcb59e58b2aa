// Package statusapi is the solver's read-only ops surface (§6 DOMAIN STACK):
// a gorilla/mux + gorilla/websocket + rs/cors HTTP server streaming per-pair
// outcomes and scheduler/registry state, plus prometheus counters. It is the
// direct descendant of the teacher's pkg/api market-data feed, repointed at
// solver telemetry instead of order-book ticks.
package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rainarb/solver/internal/history"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/scheduler"
)

// Server serves the ops REST/WS/metrics surface over one HTTP listener.
type Server struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	history   *history.Store
	router    *mux.Router
	hub       *Hub
	metrics   *metrics
	log       *zap.SugaredLogger
}

// NewServer constructs a Server. sched and hist may be nil (their endpoints
// then report zero values / an empty history), which keeps the status API
// usable in tests and partial deployments.
func NewServer(reg *registry.Registry, sched *scheduler.Scheduler, hist *history.Store, log *zap.SugaredLogger) *Server {
	promReg := prometheus.NewRegistry()
	s := &Server{
		registry:  reg,
		scheduler: sched,
		history:   hist,
		router:    mux.NewRouter(),
		hub:       NewHub(log),
		metrics:   newMetrics(promReg),
		log:       log,
	}
	s.setupRoutes(promReg)
	return s
}

func (s *Server) setupRoutes(promReg *prometheus.Registry) {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/registry", s.handleRegistry).Methods(http.MethodGet)
	api.HandleFunc("/history/recent", s.handleRecentHistory).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
}

// Start runs the hub loop and serves the ops surface on addr. Blocks until
// the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(s.router)

	if s.log != nil {
		s.log.Infow("statusapi: listening", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

// BroadcastOutcome pushes an outcome event to WebSocket subscribers and
// records it in the prometheus counters in one call, so callers only need
// one hook.
func (s *Server) BroadcastOutcome(ev OutcomeEvent) {
	s.hub.BroadcastOutcome(ev)
	s.metrics.ObserveOutcome(ev.PipelineOutcome)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondJSON(w, SchedulerStats{})
		return
	}
	snap := s.scheduler.Snapshot()
	respondJSON(w, SchedulerStats{
		Scheduled: snap.Scheduled,
		Selected:  snap.Selected,
		Confirmed: snap.Confirmed,
		Reverted:  snap.Reverted,
		TimedOut:  snap.TimedOut,
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		respondJSON(w, RegistrySnapshot{PairsByOrderbook: map[string]int{}})
		return
	}
	byOB := s.registry.Snapshot()
	out := make(map[string]int, len(byOB))
	for ob, count := range byOB {
		out[ob.Hex()] = count
	}
	respondJSON(w, RegistrySnapshot{
		OwnerCount:       s.registry.OwnerCount(),
		PairCount:        s.registry.PairCount(),
		PairsByOrderbook: out,
	})
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondJSON(w, []history.Outcome{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recent, err := s.history.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history unavailable", err.Error())
		return
	}
	respondJSON(w, recent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
