// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpc exposes substrate's agent/task/workflow surface over HTTP+JSON
// using chi (spec §6.5): ping, agent lifecycle control, task create/list/get,
// workflow create/get, agent/workflow execution, and autonomous goal
// submission. There are no update or delete routes.
package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/orchestrator"
	"github.com/kadirpekel/substrate/task"
	"github.com/kadirpekel/substrate/workflow"
)

// Server wires substrate's core collaborators to an HTTP router.
type Server struct {
	Agents       *agent.Registry
	Lifecycle    *agent.Lifecycle
	Tasks        task.Store
	Workflows    workflow.Storage
	WorkflowExec *workflow.Executor
	Orchestrator *orchestrator.Orchestrator

	router chi.Router
	reqs   *prometheus.CounterVec
	dur    *prometheus.HistogramVec

	wfMu sync.RWMutex
	wfs  map[string]*workflow.Workflow
}

// NewServer builds a Server and its routes. reg may be nil to skip
// Prometheus registration (e.g. in tests), mirroring package queue's
// sub-registry convention — each Server gets its own metrics, never the
// global default registry.
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		wfs: make(map[string]*workflow.Workflow),
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substrate_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		dur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "substrate_http_request_duration_seconds",
			Help: "HTTP request latency by route.",
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(s.reqs, s.dur)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/ping", s.handlePing)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
		r.Post("/{id}/start", s.handleAgentTransition(agent.StateRunning))
		r.Post("/{id}/pause", s.handleAgentTransition(agent.StatePaused))
		r.Post("/{id}/resume", s.handleAgentTransition(agent.StateRunning))
		r.Post("/{id}/stop", s.handleAgentTransition(agent.StateStopped))
		r.Post("/{id}/execute", s.handleExecuteAgent)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
	})

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", s.handleCreateWorkflow)
		r.Get("/{id}", s.handleGetWorkflow)
		r.Post("/{id}/execute", s.handleExecuteWorkflow)
	})

	r.Post("/goals", s.handleExecuteGoal)

	return r
}

// registerWorkflow makes w executable via /workflows/{id}/execute and
// persists it if a Storage backend is configured.
func (s *Server) registerWorkflow(w *workflow.Workflow) error {
	s.wfMu.Lock()
	s.wfs[w.ID] = w
	s.wfMu.Unlock()
	if s.Workflows != nil {
		return s.Workflows.SaveWorkflow(w)
	}
	return nil
}

func (s *Server) lookupWorkflow(id string) (*workflow.Workflow, bool) {
	s.wfMu.RLock()
	defer s.wfMu.RUnlock()
	w, ok := s.wfs[id]
	return w, ok
}

// metricsMiddleware records request count and latency per chi route
// pattern, grounded on the teacher's http_metrics_middleware.go with the
// OpenTelemetry span omitted (not a dependency of this module).
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		s.reqs.WithLabelValues(pattern, r.Method, http.StatusText(ww.Status())).Inc()
		s.dur.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}
