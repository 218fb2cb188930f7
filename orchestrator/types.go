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

// Package orchestrator implements the top-level autonomous pipeline (spec
// §2, §4.4): goal -> plan -> DAG -> workflow -> execute -> recover/reassign
// -> learn.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/kadirpekel/substrate/workflow"
)

// CheckpointFrequency names how often checkpoints are taken during
// ExecuteAutonomous. ExecuteAutonomous does not read it: whenever
// Checkpoints is set, the workflow executor checkpoints after every
// successful step.
type CheckpointFrequency string

const (
	CheckpointEveryStep      CheckpointFrequency = "every_step"
	CheckpointEveryIteration CheckpointFrequency = "every_iteration"
	CheckpointOnFailure      CheckpointFrequency = "on_failure"
)

// AutonomousConfig configures one ExecuteAutonomous run (grounded on the
// reference implementation's AutonomousConfig).
type AutonomousConfig struct {
	MaxRetries          int
	EnableRecovery      bool
	EnableReassignment  bool
	EnableLearning      bool
	CheckpointFrequency CheckpointFrequency
	DefaultAgentID      string // used when a plan task leaves AgentID empty/"auto" and no capability match is found
}

// DefaultAutonomousConfig mirrors the reference implementation's defaults.
func DefaultAutonomousConfig() AutonomousConfig {
	return AutonomousConfig{
		MaxRetries:          3,
		EnableRecovery:      true,
		EnableReassignment:  true,
		EnableLearning:      true,
		CheckpointFrequency: CheckpointEveryStep,
	}
}

// ExecutionMonitor tracks coarse-grained progress across one autonomous
// execution, suitable for surfacing over the RPC layer (spec §6.5).
type ExecutionMonitor struct {
	mu             sync.Mutex
	TotalSteps     int
	CompletedSteps int
	FailedSteps    int
	RecoveredSteps int
	CurrentStep    *string
}

// NewExecutionMonitor builds a monitor for a workflow with totalSteps steps.
func NewExecutionMonitor(totalSteps int) *ExecutionMonitor {
	return &ExecutionMonitor{TotalSteps: totalSteps}
}

func (m *ExecutionMonitor) setCurrent(stepID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := stepID
	m.CurrentStep = &s
}

func (m *ExecutionMonitor) recordCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletedSteps++
}

func (m *ExecutionMonitor) recordFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedSteps++
}

func (m *ExecutionMonitor) recordRecovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecoveredSteps++
}

// Progress returns CompletedSteps/TotalSteps in [0, 1]. Returns 1 for a
// zero-step workflow (nothing left to do).
func (m *ExecutionMonitor) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TotalSteps == 0 {
		return 1
	}
	return float64(m.CompletedSteps) / float64(m.TotalSteps)
}

// StatusSummary renders a short human-readable progress line.
func (m *ExecutionMonitor) StatusSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := "none"
	if m.CurrentStep != nil {
		current = *m.CurrentStep
	}
	return fmt.Sprintf("%d/%d complete, %d failed, %d recovered, current=%s",
		m.CompletedSteps, m.TotalSteps, m.FailedSteps, m.RecoveredSteps, current)
}

// ExecutionResult is the top-level return value of ExecuteAutonomous.
type ExecutionResult struct {
	Success                 bool
	WorkflowID              string
	Context                 *workflow.ExecutionContext
	StepsCompleted          int
	StepsFailed             int
	RecoveriesPerformed     int
	ReassignmentsPerformed  int
	Error                   *string
}

// AutonomousErrorCategory classifies where in the pipeline ExecuteAutonomous
// failed (spec §6.6).
type AutonomousErrorCategory string

const (
	CategoryPlanning          AutonomousErrorCategory = "planning"
	CategoryWorkflowExecution AutonomousErrorCategory = "workflow_execution"
	CategoryRecovery          AutonomousErrorCategory = "recovery"
	CategoryReassignment      AutonomousErrorCategory = "reassignment"
	CategoryLearning          AutonomousErrorCategory = "learning"
	CategoryWorkspace         AutonomousErrorCategory = "workspace"
)

// AutonomousError wraps a pipeline-stage failure with its category.
type AutonomousError struct {
	Category AutonomousErrorCategory
	Message  string
	Err      error
}

func (e *AutonomousError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orchestrator: %s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s: %s", e.Category, e.Message)
}

func (e *AutonomousError) Unwrap() error { return e.Err }
