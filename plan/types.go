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

// Package plan represents a plan manifest as a dependency graph of tasks
// grouped into iterations, and executes it with retry, backoff, and
// atomic checkpointing.
package plan

import "time"

// Status is the lifecycle state of an Iteration or Manifest.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// Task is a unit of work within an Iteration, identified by "I{n}.T{m}".
// AgentID may be empty or "auto", in which case the orchestrator package
// (PlanRunner, and the workflow it compiles from a plan) resolves an agent
// by capability-tag match against the words of Title plus any string
// entries of Metadata["tags"] before falling back to a configured default
// agent. The plan Executor itself does not resolve agents.
type Task struct {
	ID                 string         `json:"id"`
	IterationID        string         `json:"iteration_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	AgentID            string         `json:"agent_id,omitempty"`
	Dependencies       []string       `json:"dependencies,omitempty"`
	AcceptanceCriteria []string       `json:"acceptance_criteria,omitempty"`
	Completed          bool           `json:"completed"`
	Status             Status         `json:"status"`
	Result             *TaskResult    `json:"result,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// AutoAgent reports whether the task leaves agent selection to discovery
// (spec SPEC_FULL.md §3 AgentDiscovery).
func (t *Task) AutoAgent() bool {
	return t.AgentID == "" || t.AgentID == "auto"
}

// TaskResult is the outcome of one task execution attempt.
type TaskResult struct {
	TaskID      string    `json:"task_id"`
	Success     bool      `json:"success"`
	Response    string    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	TokensUsed  *[2]int   `json:"tokens_used,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Iteration is a named group of tasks, an organizational unit within a plan.
type Iteration struct {
	ID     string  `json:"id"`
	Number int     `json:"number"`
	Name   string  `json:"name"`
	Tasks  []*Task `json:"tasks"`
	Status Status  `json:"status"`
}

// GetTask finds a task by id within this iteration.
func (it *Iteration) GetTask(id string) *Task {
	for _, t := range it.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// IsComplete reports whether every task in the iteration is completed.
func (it *Iteration) IsComplete() bool {
	for _, t := range it.Tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}

// Manifest is the top-level plan document: a goal plus its iterations.
type Manifest struct {
	RequirementID string       `json:"requirement_id"`
	ProjectName   string       `json:"project_name"`
	Iterations    []*Iteration `json:"iterations"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewManifest constructs an empty manifest.
func NewManifest(requirementID, projectName string) *Manifest {
	now := time.Now()
	return &Manifest{RequirementID: requirementID, ProjectName: projectName, CreatedAt: now, UpdatedAt: now}
}

// AddIteration appends an iteration to the manifest.
func (m *Manifest) AddIteration(it *Iteration) {
	m.Iterations = append(m.Iterations, it)
	m.UpdatedAt = time.Now()
}

// GetIteration finds an iteration by id.
func (m *Manifest) GetIteration(id string) *Iteration {
	for _, it := range m.Iterations {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// GetTask finds a task by id across all iterations.
func (m *Manifest) GetTask(id string) *Task {
	for _, it := range m.Iterations {
		if t := it.GetTask(id); t != nil {
			return t
		}
	}
	return nil
}

// TotalTasks counts tasks across every iteration.
func (m *Manifest) TotalTasks() int {
	n := 0
	for _, it := range m.Iterations {
		n += len(it.Tasks)
	}
	return n
}

// AllTasks returns every task across every iteration, in manifest order.
func (m *Manifest) AllTasks() []*Task {
	tasks := make([]*Task, 0, m.TotalTasks())
	for _, it := range m.Iterations {
		tasks = append(tasks, it.Tasks...)
	}
	return tasks
}
