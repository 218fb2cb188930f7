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

// Package workflow executes a Workflow: an ordered sequence of steps, each
// referencing a task to run against a resolved agent, with stop-on-first-
// failure semantics and a recorded ExecutionContext.
package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is a Workflow's lifecycle state. Error carries the failure reason.
type State struct {
	Name   string // "idle", "running", "completed", "error"
	Reason string // populated only when Name == "error"
}

func Idle() State      { return State{Name: "idle"} }
func Running() State   { return State{Name: "running"} }
func Completed() State { return State{Name: "completed"} }
func ErrorState(reason string) State { return State{Name: "error", Reason: reason} }

func (s State) IsIdle() bool { return s.Name == "idle" }

func (s State) String() string {
	if s.Name == "error" {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return s.Name
}

// Step is one entry in a Workflow: a reference to a Task plus an execution
// order and an optional JSON condition (e.g. {"dependsOn": ["step-1"]}).
type Step struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TaskID      string `json:"task_id"`
	Order       int    `json:"order"`
	ConfigJSON  string `json:"config_json,omitempty"`
}

// Workflow is an ordered, stateful collection of steps.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
	State       State  `json:"state"`
}

// New constructs an idle Workflow with no steps.
func New(id, name, description string) *Workflow {
	return &Workflow{ID: id, Name: name, Description: description, State: Idle()}
}

// AddStep appends a step, rejecting a duplicate step id.
func (w *Workflow) AddStep(s Step) error {
	for _, existing := range w.Steps {
		if existing.ID == s.ID {
			return fmt.Errorf("workflow: duplicate step id: %s", s.ID)
		}
	}
	w.Steps = append(w.Steps, s)
	return nil
}

// Validate checks the workflow's internal consistency: step ids are unique
// and every dependsOn condition references a step that exists.
func (w *Workflow) Validate() error {
	ids := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if ids[s.ID] {
			return fmt.Errorf("workflow: duplicate step id: %s", s.ID)
		}
		ids[s.ID] = true
	}
	for _, s := range w.Steps {
		cond, err := ParseCondition(s.ConfigJSON)
		if err != nil {
			return fmt.Errorf("workflow: step %s: %w", s.ID, err)
		}
		for _, dep := range cond.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("workflow: step %s depends on unknown step %s", s.ID, dep)
			}
		}
	}
	return nil
}

// sortedSteps returns a copy of w.Steps sorted by Order, stable on ties.
func (w *Workflow) sortedSteps() []Step {
	steps := make([]Step, len(w.Steps))
	copy(steps, w.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// Comparator is a single field/operator/value test evaluated against the
// Output of the named step already recorded in an ExecutionContext (spec
// §6.2: "when: {field, op, value}"). field names a prior step id; op is one
// of eq, ne, contains, exists.
type Comparator struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

// Condition is a step's gating expression: dependsOn (all listed steps must
// have completed successfully in this execution), when (run only if the
// comparator holds), and skip_if (skip if the comparator holds). Unknown
// keys in ConfigJSON are ignored for forward-compat. An absent/empty
// condition always runs.
type Condition struct {
	DependsOn []string    `json:"dependsOn,omitempty"`
	When      *Comparator `json:"when,omitempty"`
	SkipIf    *Comparator `json:"skip_if,omitempty"`
}

// ParseCondition parses a step's ConfigJSON into a Condition. An empty
// string is the always-run condition.
func ParseCondition(configJSON string) (Condition, error) {
	if configJSON == "" {
		return Condition{}, nil
	}
	var c Condition
	if err := json.Unmarshal([]byte(configJSON), &c); err != nil {
		return Condition{}, fmt.Errorf("parse step condition: %w", err)
	}
	return c, nil
}

// evaluateComparator resolves Field against ctx's recorded step outputs.
func evaluateComparator(c *Comparator, ctx *ExecutionContext) bool {
	result, ok := ctx.StepResults[c.Field]
	switch c.Op {
	case "exists":
		return ok
	case "eq":
		return ok && result.Output == c.Value
	case "ne":
		return !ok || result.Output != c.Value
	case "contains":
		return ok && strings.Contains(result.Output, c.Value)
	default:
		return false
	}
}

// ShouldRun evaluates the full condition against an in-progress execution
// context: every dependsOn step must have succeeded, any "when" comparator
// must hold, and any "skip_if" comparator must not hold.
func (c Condition) ShouldRun(ctx *ExecutionContext) bool {
	for _, dep := range c.DependsOn {
		if !ctx.stepSucceeded(dep) {
			return false
		}
	}
	if c.When != nil && !evaluateComparator(c.When, ctx) {
		return false
	}
	if c.SkipIf != nil && evaluateComparator(c.SkipIf, ctx) {
		return false
	}
	return true
}

// StepResult is the recorded outcome of executing one step.
type StepResult struct {
	StepID      string    `json:"step_id"`
	Success     bool      `json:"success"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ExecutionContext accumulates per-step results across a workflow run.
type ExecutionContext struct {
	WorkflowID       string                 `json:"workflow_id"`
	StepResults      map[string]*StepResult `json:"step_results"`
	CurrentStepIndex int                    `json:"current_step_index"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at,omitempty"`
}

// NewExecutionContext starts a fresh context for workflowID.
func NewExecutionContext(workflowID string) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:  workflowID,
		StepResults: make(map[string]*StepResult),
		StartedAt:   time.Now(),
	}
}

// stepSucceeded reports whether stepID ran and succeeded in this context.
func (c *ExecutionContext) stepSucceeded(stepID string) bool {
	r, ok := c.StepResults[stepID]
	return ok && r.Success
}
