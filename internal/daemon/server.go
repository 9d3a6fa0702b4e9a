// Package daemon exposes the fabric over HTTP: health probes, component and
// graph queries, the visualization payload, bus statistics, transaction
// summaries, and Prometheus metrics.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edufabric/integration-fabric/internal/fabric"
	"github.com/edufabric/integration-fabric/internal/integration"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port int
	Bind string
}

// Server is the HTTP surface over a fabric instance.
// It is safe for concurrent use.
type Server struct {
	mu     sync.RWMutex
	fabric *fabric.Fabric
	config ServerConfig
	server *http.Server
	router *chi.Mux
}

// NewServer creates the HTTP server over the given fabric.
func NewServer(f *fabric.Fabric, config ServerConfig) *Server {
	s := &Server{
		fabric: f,
		config: config,
		router: chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/components", s.handleComponents)
		r.Get("/components/{id}/history", s.handleComponentHistory)
		r.Get("/graph", s.handleGraph)
		r.Get("/impact/{id}", s.handleImpact)
		r.Get("/visualization", s.handleVisualization)
		r.Get("/events/stats", s.handleEventStats)
		r.Get("/transactions/summary", s.handleTransactionSummary)
		r.Get("/transactions/active", s.handleTransactionsActive)
	})

	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the HTTP handler for testing purposes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// LivezResponse is the response format for the /healthz endpoint.
type LivezResponse struct {
	Status string `json:"status"`
}

// handleHealthz is the liveness probe: 200 whenever the process serves.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivezResponse{Status: "alive"})
}

// ReadyzResponse is the response format for the /readyz endpoint.
type ReadyzResponse struct {
	Status     string `json:"status"`
	BusRunning bool   `json:"bus_running"`
	Components int    `json:"components"`
}

// handleReadyz is the readiness probe. It reports 200 while the overall
// health is not CRITICAL and the bus is dispatching, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	overall := s.fabric.Monitor.OverallStatus()
	running := s.fabric.Bus.Running()

	code := http.StatusOK
	if !running || overall == integration.HealthCritical {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, ReadyzResponse{
		Status:     string(overall),
		BusRunning: running,
		Components: len(s.fabric.Registry.IDs()),
	})
}

// ComponentView is one component in the /api/components response.
type ComponentView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Type         string         `json:"type,omitempty"`
	Version      string         `json:"version,omitempty"`
	State        string         `json:"state"`
	Message      string         `json:"message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// handleComponents lists all registered components with current status.
func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	var out []ComponentView
	for _, c := range s.fabric.Registry.Components() {
		st := s.fabric.Tracker.GetStatus(c.ID())
		out = append(out, ComponentView{
			ID:           c.ID(),
			Name:         c.Name(),
			Type:         c.Type(),
			Version:      c.Version(),
			State:        string(st.State),
			Message:      st.Message,
			Details:      st.Details,
			Timestamp:    st.Timestamp,
			Dependencies: s.fabric.Registry.GetDependencies(c.ID()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleComponentHistory returns a component's status history, oldest-first.
// Optional since/until query parameters take RFC3339 timestamps.
func (s *Server) handleComponentHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.fabric.Registry.Has(id) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown component %q", id))
		return
	}

	var since, until time.Time
	var err error
	if raw := r.URL.Query().Get("since"); raw != "" {
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		if until, err = time.Parse(time.RFC3339, raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
	}

	writeJSON(w, http.StatusOK, s.fabric.Tracker.GetHistory(id, since, until))
}

// GraphResponse is the response format for the /api/graph endpoint.
type GraphResponse struct {
	Nodes []string            `json:"nodes"`
	Edges map[string][]string `json:"edges"`
}

// handleGraph returns the dependency graph.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g := s.fabric.Registry.Graph()
	writeJSON(w, http.StatusOK, GraphResponse{
		Nodes: g.Nodes(),
		Edges: g.AllEdges(),
	})
}

// ImpactResponse is the response format for the /api/impact endpoint.
type ImpactResponse struct {
	ComponentID string   `json:"component_id"`
	Impacted    []string `json:"impacted"`
}

// handleImpact returns the transitive dependents of a component in BFS order.
func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.fabric.Registry.Has(id) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown component %q", id))
		return
	}

	writeJSON(w, http.StatusOK, ImpactResponse{
		ComponentID: id,
		Impacted:    s.fabric.Registry.AnalyzeImpact(id),
	})
}

// handleVisualization returns the health monitor's visualization payload.
func (s *Server) handleVisualization(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fabric.Monitor.VisualizationData())
}

// handleEventStats returns event bus counters.
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fabric.Bus.Stats())
}

// handleTransactionSummary returns aggregate transaction counts.
func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fabric.Transactions.Summary())
}

// handleTransactionsActive returns all non-terminal transactions.
func (s *Server) handleTransactionsActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fabric.Transactions.Active())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Start starts the HTTP server and blocks until it's stopped.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}
	server := s.server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error; %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server; %w", err)
	}

	return nil
}
