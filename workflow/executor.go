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

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/task"
)

// ExecutionErrorKind classifies a failure raised by the executor itself,
// distinct from a step's recorded failure.
type ExecutionErrorKind string

const (
	ErrNotIdle        ExecutionErrorKind = "not_idle"
	ErrTaskNotFound    ExecutionErrorKind = "task_not_found"
	ErrAgentNotFound   ExecutionErrorKind = "agent_not_found"
	ErrStepFailed      ExecutionErrorKind = "step_failed"
)

// ExecutionError is a typed error from the workflow executor.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	StepID  string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("workflow: %s: step %s: %s", e.Kind, e.StepID, e.Message)
	}
	return fmt.Sprintf("workflow: %s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// AgentRunner executes one agent against a task's rendered input, returning
// its output text or an error. Implementations typically wrap an
// engine.Engine invocation.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentID string, input string) (string, error)
}

// Storage persists Workflow and ExecutionContext state transitions. A
// checkpoint manager (package checkpoint) satisfies the optional
// Checkpointer interface below and is consulted after every successful
// step, per spec §4.4.
type Storage interface {
	SaveWorkflow(w *Workflow) error
	SaveExecutionContext(ec *ExecutionContext) error
}

// Checkpointer writes a checkpoint snapshot after a successfully completed
// step. A nil Checkpointer in Executor disables checkpointing.
type Checkpointer interface {
	WriteCheckpoint(ctx context.Context, workflowID, lastStepID string, ec *ExecutionContext) error
}

// Executor runs a Workflow's steps sequentially, honoring conditional
// guards, stopping on the first step failure (spec §4.4).
type Executor struct {
	Tasks      task.Store
	Agents     *agent.Registry
	Runner     AgentRunner
	Storage    Storage
	Checkpoint Checkpointer
}

// NewExecutor builds an Executor.
func NewExecutor(tasks task.Store, agents *agent.Registry, runner AgentRunner, storage Storage, checkpoint Checkpointer) *Executor {
	return &Executor{Tasks: tasks, Agents: agents, Runner: runner, Storage: storage, Checkpoint: checkpoint}
}

// Execute validates w is Idle, sorts its steps by Order (insertion order
// breaking ties), and runs them in sequence. It persists the workflow's
// state transitions. Once the steps have started it returns the accumulated
// ExecutionContext whether or not a step fails, and a non-nil error
// additionally reports which step failed and why; a workflow that fails
// validation, is not Idle, or whose initial persist fails yields a nil
// context and an error.
func (e *Executor) Execute(ctx context.Context, w *Workflow) (*ExecutionContext, error) {
	return e.execute(ctx, w, NewExecutionContext(w.ID))
}

// ExecuteResume re-enters w starting from a previously checkpointed
// ExecutionContext, skipping any step that already recorded a successful
// result. w must be Idle (the recovery manager resets workflow state before
// calling this) — the same precondition Execute enforces.
func (e *Executor) ExecuteResume(ctx context.Context, w *Workflow, resumeFrom *ExecutionContext) (*ExecutionContext, error) {
	ec := resumeFrom
	if ec == nil {
		ec = NewExecutionContext(w.ID)
	}
	return e.execute(ctx, w, ec)
}

func (e *Executor) execute(ctx context.Context, w *Workflow, ec *ExecutionContext) (*ExecutionContext, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if !w.State.IsIdle() {
		return nil, &ExecutionError{Kind: ErrNotIdle, Message: fmt.Sprintf("workflow %s is %s", w.ID, w.State)}
	}

	steps := w.sortedSteps()
	w.State = Running()
	if err := e.persist(w, nil); err != nil {
		return nil, err
	}

	if len(steps) == 0 {
		w.State = Completed()
		ec.CompletedAt = time.Now()
		return ec, e.persist(w, ec)
	}

	for i, step := range steps {
		ec.CurrentStepIndex = i

		if ec.stepSucceeded(step.ID) {
			continue
		}

		cond, err := ParseCondition(step.ConfigJSON)
		if err != nil {
			return ec, err
		}
		if !cond.ShouldRun(ec) {
			continue
		}

		t, terr := e.Tasks.Get(step.TaskID)
		if terr != nil {
			execErr := &ExecutionError{Kind: ErrTaskNotFound, StepID: step.ID, Message: step.TaskID, Err: terr}
			w.State = ErrorState(execErr.Error())
			ec.CompletedAt = time.Now()
			e.persist(w, ec)
			return ec, execErr
		}

		if _, ok := e.Agents.Get(t.AgentID); !ok {
			execErr := &ExecutionError{Kind: ErrAgentNotFound, StepID: step.ID, Message: t.AgentID}
			w.State = ErrorState(execErr.Error())
			ec.CompletedAt = time.Now()
			e.persist(w, ec)
			return ec, execErr
		}

		input, ierr := t.InputString()
		if ierr != nil {
			input = string(t.Input)
		}

		result := e.runStep(ctx, step.ID, t.AgentID, input)
		ec.StepResults[step.ID] = result

		if !result.Success {
			execErr := &ExecutionError{Kind: ErrStepFailed, StepID: step.ID, Message: result.Error}
			w.State = ErrorState(result.Error)
			ec.CompletedAt = time.Now()
			e.persist(w, ec)
			return ec, execErr
		}

		if e.Checkpoint != nil {
			_ = e.Checkpoint.WriteCheckpoint(ctx, w.ID, step.ID, ec)
		}
	}

	w.State = Completed()
	ec.CompletedAt = time.Now()
	return ec, e.persist(w, ec)
}

func (e *Executor) runStep(ctx context.Context, stepID, agentID, input string) *StepResult {
	start := time.Now()
	output, err := e.Runner.RunAgent(ctx, agentID, input)
	r := &StepResult{StepID: stepID, StartedAt: start, CompletedAt: time.Now()}
	if err != nil {
		r.Success = false
		r.Error = err.Error()
		return r
	}
	r.Success = true
	r.Output = output
	return r
}

func (e *Executor) persist(w *Workflow, ec *ExecutionContext) error {
	if e.Storage == nil {
		return nil
	}
	if err := e.Storage.SaveWorkflow(w); err != nil {
		return fmt.Errorf("workflow: persist %s: %w", w.ID, err)
	}
	if ec != nil {
		if err := e.Storage.SaveExecutionContext(ec); err != nil {
			return fmt.Errorf("workflow: persist execution context %s: %w", ec.WorkflowID, err)
		}
	}
	return nil
}
