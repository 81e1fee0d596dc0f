// Package devserver is a self-contained development backend: it serves the
// document-store REST surface over an in-memory store, simulates node
// execution, and pushes progress frames over a websocket hub. It exists so
// the engine (and its UI) can be developed without the real backend.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railyard/railyard/internal/logging"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/ports"
)

// stepDelay paces the simulated execution so progress is visible.
const stepDelay = 150 * time.Millisecond

// Server hosts the REST surface and the push hub.
type Server struct {
	store  ports.SectionStore
	hub    *Hub
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc // nodeID -> cancel
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a dev server over the given store.
func New(store ports.SectionStore, opts ...Option) *Server {
	s := &Server{
		store:   store,
		logger:  logging.NewNop(),
		running: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	return s
}

// Handler builds the HTTP routes.
func (s *Server) Handler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/sections", s.getSections)
	r.Put("/sections/{id}", s.putSection)
	r.Post("/node/{id}/deactivate", s.deactivateNode)
	r.Post("/execute", s.execute)
	r.Post("/stop/{nodeId}", s.stop)
	r.Post("/execute-flow", s.executeFlow)
	r.Get("/events", s.hub.ServeHTTP)

	return r
}

// Close stops all simulated runs and disconnects push clients.
func (s *Server) Close() {
	s.mu.Lock()
	for id, cancel := range s.running {
		cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()
	s.hub.Close()
}

func (s *Server) getSections(w http.ResponseWriter, r *http.Request) {
	sections, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sections)
}

func (s *Server) putSection(w http.ResponseWriter, r *http.Request) {
	var section domain.Section
	if err := json.NewDecoder(r.Body).Decode(&section); err != nil {
		http.Error(w, "invalid section document", http.StatusBadRequest)
		return
	}
	section.ID = chi.URLParam(r, "id")

	if err := s.store.Save(r.Context(), &section); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Debug("section saved", "section_id", section.ID, "nodes", len(section.Nodes))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deactivateNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SectionID string `json:"sectionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	nodeID := chi.URLParam(r, "id")
	if err := s.store.Deactivate(r.Context(), body.SectionID, nodeID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req ports.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.NodeID == "" {
		http.Error(w, "nodeId is required", http.StatusBadRequest)
		return
	}

	s.startRun(req.NodeID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")

	s.mu.Lock()
	cancel, ok := s.running[nodeID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) executeFlow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SectionID   string `json:"sectionId"`
		StartNodeID string `json:"startNodeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sections, err := s.store.LoadAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var section *domain.Section
	for _, sec := range sections {
		if sec.ID == body.SectionID {
			section = sec
			break
		}
	}
	if section == nil || section.Node(body.StartNodeID) == nil {
		http.Error(w, "unknown section or start node", http.StatusNotFound)
		return
	}

	go s.simulateFlow(section, body.StartNodeID)
	w.WriteHeader(http.StatusAccepted)
}

// startRun simulates one node's execution: start, progress steps, output,
// completion. A stop request cancels mid-run with an error frame.
func (s *Server) startRun(nodeID string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if prev, ok := s.running[nodeID]; ok {
		prev()
	}
	s.running[nodeID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, nodeID)
			s.mu.Unlock()
		}()
		s.runNode(ctx, nodeID)
	}()
}

func (s *Server) runNode(ctx context.Context, nodeID string) bool {
	s.hub.Broadcast(&domain.ExecStartFrame{NodeID: nodeID})
	for _, p := range []float64{0.25, 0.5, 0.75} {
		select {
		case <-ctx.Done():
			s.hub.Broadcast(&domain.ExecErrorFrame{NodeID: nodeID, Error: "stopped"})
			return false
		case <-time.After(stepDelay):
			s.hub.Broadcast(&domain.ProgressFrame{NodeID: nodeID, Progress: p})
		}
	}
	s.hub.Broadcast(&domain.OutputFrame{NodeID: nodeID, Output: "ok"})
	s.hub.Broadcast(&domain.ExecCompleteFrame{NodeID: nodeID})
	return true
}

// simulateFlow walks the graph breadth-first from the start node, running
// each stage and pulsing the edges it feeds.
func (s *Server) simulateFlow(section *domain.Section, startNodeID string) {
	ctx := context.Background()
	visited := map[string]bool{}
	queue := []string{startNodeID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node := section.Node(id)
		if node == nil || node.IsDeactivated {
			continue
		}
		if !s.runNode(ctx, id) {
			return
		}
		for _, next := range node.ConnectedTo {
			s.hub.Broadcast(&domain.FlowProgressFrame{SourceID: id, TargetID: next})
			queue = append(queue, next)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
