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

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/checkpoint"
	"github.com/kadirpekel/substrate/plan"
	"github.com/kadirpekel/substrate/recovery"
	"github.com/kadirpekel/substrate/task"
	"github.com/kadirpekel/substrate/workflow"
)

// Orchestrator drives the full autonomous pipeline: goal -> plan -> DAG ->
// workflow -> execute -> recover/reassign -> learn (spec §2, §4.4).
type Orchestrator struct {
	Agents      *agent.Registry
	Tasks       task.Store
	Planner     Planner
	Runner      workflow.AgentRunner
	Storage     workflow.Storage
	Checkpoints *checkpoint.Manager
	Recovery    *recovery.Manager
	Reassign    *recovery.Reassignment
	Selector    *recovery.AgentSelector
	Learning    recovery.LearningStore
	Config      AutonomousConfig
}

// New builds an Orchestrator. Checkpoints, Recovery, Reassign, Selector and
// Learning may be nil; ExecuteAutonomous degrades gracefully, skipping the
// capability each represents.
func New(agents *agent.Registry, tasks task.Store, planner Planner, runner workflow.AgentRunner, storage workflow.Storage, cfg AutonomousConfig) *Orchestrator {
	return &Orchestrator{Agents: agents, Tasks: tasks, Planner: planner, Runner: runner, Storage: storage, Config: cfg}
}

// checkpointer returns o.Checkpoints as a workflow.Checkpointer, or a true
// nil interface (not a nil-wrapped pointer) when none is configured.
func (o *Orchestrator) checkpointer() workflow.Checkpointer {
	if o.Checkpoints == nil {
		return nil
	}
	return o.Checkpoints
}

// ExecuteAutonomous plans goal, compiles the plan into a workflow, executes
// it, and on step failure dispatches recovery (checkpoint restore or retry)
// before falling back to agent reassignment, per the dispatch order
// SPEC_FULL.md documents: RecoveryManager first, AgentReassignment next, a
// terminal AutonomousError only if both are exhausted or disabled.
func (o *Orchestrator) ExecuteAutonomous(ctx context.Context, goal string) (*ExecutionResult, error) {
	manifest, err := o.Planner.Plan(ctx, goal)
	if err != nil {
		return nil, &AutonomousError{Category: CategoryPlanning, Message: "plan goal", Err: err}
	}

	wf, err := o.buildWorkflow(manifest)
	if err != nil {
		return nil, &AutonomousError{Category: CategoryPlanning, Message: "compile plan into workflow", Err: err}
	}

	executor := workflow.NewExecutor(o.Tasks, o.Agents, o.Runner, o.Storage, o.checkpointer())
	result := &ExecutionResult{WorkflowID: wf.ID}

	ec, execErr := executor.Execute(ctx, wf)

	for execErr != nil {
		var wfErr *workflow.ExecutionError
		if !errors.As(execErr, &wfErr) || wfErr.StepID == "" || !o.Config.EnableRecovery || o.Recovery == nil {
			return o.fail(result, ec, CategoryWorkflowExecution, "workflow execution failed", execErr)
		}
		failedStep := wfErr.StepID

		recovered, strategy, rerr := o.Recovery.Recover(ctx, executor, wf, failedStep, execErr)
		o.observe(wf.ID, failedStep, strategy.Kind, rerr == nil)
		if rerr == nil {
			result.RecoveriesPerformed++
			ec, execErr = recovered, nil
			break
		}

		if strategy.Kind == recovery.StrategyRetry || strategy.Kind == recovery.StrategyRestoreCheckpoint {
			if recovered != nil {
				ec = recovered
			}
			execErr = rerr
			continue
		}

		if (strategy.Kind != recovery.StrategyReassign && strategy.Kind != recovery.StrategyGiveUp) || !o.Config.EnableReassignment || o.Reassign == nil {
			return o.fail(result, ec, CategoryRecovery, "recovery exhausted", rerr)
		}

		t, terr := o.Tasks.Get(o.stepTaskID(wf, failedStep))
		if terr != nil {
			return o.fail(result, ec, CategoryReassignment, "lookup failed step's task", terr)
		}

		newAgent, raerr := o.Reassign.Reassign(wf.ID, failedStep, titleTags(&plan.Task{Title: t.Name}), t.AgentID)
		if raerr != nil {
			return o.fail(result, ec, CategoryReassignment, "no replacement agent available", raerr)
		}
		result.ReassignmentsPerformed++

		t.AgentID = newAgent
		if perr := o.Tasks.Put(t); perr != nil {
			return o.fail(result, ec, CategoryReassignment, "persist reassigned task", perr)
		}
		o.Recovery.ResetAttempts(wf.ID, failedStep)

		wf.State = workflow.Idle()
		ec, execErr = executor.Execute(ctx, wf)
	}

	result.Success = true
	result.Context = ec
	for _, r := range ec.StepResults {
		if r.Success {
			result.StepsCompleted++
		} else {
			result.StepsFailed++
		}
	}
	return result, nil
}

func (o *Orchestrator) fail(result *ExecutionResult, ec *workflow.ExecutionContext, cat AutonomousErrorCategory, msg string, cause error) (*ExecutionResult, error) {
	result.Context = ec
	errMsg := cause.Error()
	result.Error = &errMsg
	return result, &AutonomousError{Category: cat, Message: msg, Err: cause}
}

func (o *Orchestrator) observe(workflowID, stepID string, strategy recovery.StrategyKind, succeeded bool) {
	if o.Learning == nil || !o.Config.EnableLearning {
		return
	}
	o.Learning.Observe(recovery.Outcome{WorkflowID: workflowID, StepID: stepID, Strategy: strategy, Succeeded: succeeded})
}

func (o *Orchestrator) stepTaskID(wf *workflow.Workflow, stepID string) string {
	for _, s := range wf.Steps {
		if s.ID == stepID {
			return s.TaskID
		}
	}
	return ""
}

// buildWorkflow compiles manifest's tasks into task.Store entries and a
// workflow.Workflow whose step order follows the plan's topological order
// and whose dependsOn conditions mirror the plan's task dependencies.
func (o *Orchestrator) buildWorkflow(manifest *plan.Manifest) (*workflow.Workflow, error) {
	dag, err := plan.BuildDAG(manifest)
	if err != nil {
		return nil, err
	}
	order, err := dag.TopologicalSort()
	if err != nil {
		return nil, err
	}

	wf := workflow.New(uuid.NewString(), manifest.ProjectName, "autonomous run for "+manifest.RequirementID)

	for i, taskID := range order {
		pt := manifest.GetTask(taskID)
		if pt == nil {
			continue
		}

		agentID := pt.AgentID
		if pt.AutoAgent() {
			agentID = o.resolveDefaultAgent(pt)
		}

		tt, err := task.New(pt.ID, pt.Title, pt.Description, agentID, pt.Description)
		if err != nil {
			return nil, err
		}
		if err := o.Tasks.Put(tt); err != nil {
			return nil, err
		}

		cond := workflow.Condition{DependsOn: pt.Dependencies}
		cfg, err := json.Marshal(cond)
		if err != nil {
			return nil, err
		}
		if err := wf.AddStep(workflow.Step{
			ID:     pt.ID,
			Name:   pt.Title,
			TaskID: pt.ID,
			Order:  i,
			ConfigJSON: string(cfg),
		}); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

func (o *Orchestrator) resolveDefaultAgent(pt *plan.Task) string {
	if o.Selector != nil {
		if a, ok := o.Selector.SelectFor(titleTags(pt), ""); ok {
			return a.ID()
		}
	}
	return o.Config.DefaultAgentID
}
