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

package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/task"
)

// agentView is the JSON projection of a registered agent.
type agentView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	metas := s.Agents.List()
	out := make([]agentView, 0, len(metas))
	for _, m := range metas {
		state := ""
		if s.Lifecycle != nil {
			state = string(s.Lifecycle.GetState(m.ID))
		}
		out = append(out, agentView{ID: m.ID, Description: m.Description, State: state})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAgentTransition returns a handler requesting the named lifecycle
// transition for the {id} path param (spec §4.1 legal-transition table).
func (s *Server) handleAgentTransition(to agent.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !s.Agents.IsRegistered(id) {
			writeError(w, http.StatusNotFound, errNotRegistered(id))
			return
		}
		if s.Lifecycle == nil {
			writeError(w, http.StatusServiceUnavailable, errNoLifecycle())
			return
		}
		s.Lifecycle.Register(id)
		if err := s.Lifecycle.RequestTransition(id, to); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(to)})
	}
}

type executeAgentRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.Agents.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errNotRegistered(id))
		return
	}

	var req executeAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := a.Execute(r.Context(), req.Input, agent.Context{SessionID: req.SessionID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Tasks.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.Tasks.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createTaskRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AgentID     string `json:"agent_id"`
	Input       any    `json:"input"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	t, err := task.New(req.ID, req.Name, req.Description, req.AgentID, req.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Tasks.Put(t); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type executeWorkflowRequest struct {
	UseParallel bool `json:"use_parallel"`
}

// handleExecuteWorkflow runs the {id} workflow registered through
// POST /workflows (via s.WorkflowExec). Parallel step execution is a documented
// Non-goal of the current executor (DESIGN.md): requesting use_parallel
// returns 400 rather than silently running sequentially.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeWorkflowRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.UseParallel {
		writeError(w, http.StatusBadRequest, errParallelUnsupported())
		return
	}

	id := chi.URLParam(r, "id")
	wf, ok := s.lookupWorkflow(id)
	if !ok {
		writeError(w, http.StatusNotFound, errNotRegistered(id))
		return
	}
	if s.WorkflowExec == nil {
		writeError(w, http.StatusServiceUnavailable, errNoExecutor())
		return
	}

	ec, err := s.WorkflowExec.Execute(r.Context(), wf)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "context": ec})
		return
	}
	writeJSON(w, http.StatusOK, ec)
}

type executeGoalRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) handleExecuteGoal(w http.ResponseWriter, r *http.Request) {
	var req executeGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, errNoOrchestrator())
		return
	}

	result, err := s.Orchestrator.ExecuteAutonomous(r.Context(), req.Goal)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "result": result})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
