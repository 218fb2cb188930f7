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

// Package recovery selects and executes a recovery strategy for a failed
// workflow step (spec §4.4): restore a checkpoint, retry, or hand the step
// over for reassignment to a different agent. StrategySkip and CanSkip are
// defined, but Decide never selects a skip and Recover does not execute
// one. Failure classification distinguishes transient
// causes worth retrying from permanent ones that should escalate.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kadirpekel/substrate/checkpoint"
	"github.com/kadirpekel/substrate/workflow"
)

// Classification is whether a failure is worth retrying.
type Classification string

const (
	Transient Classification = "transient"
	Permanent Classification = "permanent"
)

// Failure is a classified cause, carrying the reason text that drove the
// classification.
type Failure struct {
	Classification Classification
	Reason         string
}

// transientPatterns and permanentPatterns are modeled on the plan
// executor's recoverable/fatal string tables (spec §4.3, §4.4) and overlap
// with them, but the two sets of lists are not identical.
var transientPatterns = []string{
	"timeout", "connection reset", "connection refused", "rate limit",
	"429", "quota", "network", "temporary", "5",
}

var permanentPatterns = []string{
	"schema", "validation", "agent not found", "not registered",
	"unauthorized", "403", "401", "dependency", "invalid",
}

// Classify inspects err's message against the known transient/permanent
// vocabulary. An unrecognized message defaults to Permanent: an unknown
// failure should escalate rather than retry silently.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Classification: Permanent, Reason: "no error"}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return Failure{Classification: Transient, Reason: err.Error()}
		}
	}
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return Failure{Classification: Permanent, Reason: err.Error()}
		}
	}
	return Failure{Classification: Permanent, Reason: err.Error()}
}

// StrategyKind enumerates the recovery strategies spec §4.4 names.
type StrategyKind string

const (
	StrategyRestoreCheckpoint StrategyKind = "restore_checkpoint"
	StrategyRetry             StrategyKind = "retry"
	StrategySkip              StrategyKind = "skip"
	StrategyReassign          StrategyKind = "reassign"
	StrategyGiveUp            StrategyKind = "give_up"
)

// Strategy is the chosen recovery action plus its bookkeeping.
type Strategy struct {
	Kind          StrategyKind
	CheckpointID  string
	Attempt       int
	MaxAttempts   int
	Reason        string
}

// Record is the internal bookkeeping the manager keeps per failed step
// (spec §3 "Recovery record"), tracking retry attempts so they aren't
// unbounded.
type Record struct {
	WorkflowID string
	StepID     string
	Attempts   int
	Failure    Failure
}

// Manager selects and executes a recovery strategy for a failed workflow
// step, cooperating with a checkpoint store to resume past the point of
// failure (spec §4.4).
type Manager struct {
	Checkpoints *checkpoint.Manager
	MaxRetries  int

	mu      sync.Mutex
	records map[string]*Record // key: workflowID + "/" + stepID
}

// NewManager builds a Manager. A nil Checkpoints disables
// restore-checkpoint recovery; failures then fall straight to retry.
func NewManager(checkpoints *checkpoint.Manager, maxRetries int) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{Checkpoints: checkpoints, MaxRetries: maxRetries, records: make(map[string]*Record)}
}

// CanSkip reports whether failedStepID may be skipped in w: spec §4.4
// permits Skip only when no other step's dependsOn references the failed
// step, so skipping it can never silently satisfy a downstream guard.
func CanSkip(w *workflow.Workflow, failedStepID string) bool {
	for _, s := range w.Steps {
		cond, err := workflow.ParseCondition(s.ConfigJSON)
		if err != nil {
			continue
		}
		for _, dep := range cond.DependsOn {
			if dep == failedStepID {
				return false
			}
		}
	}
	return true
}

func recordKey(workflowID, stepID string) string { return workflowID + "/" + stepID }

func (m *Manager) record(workflowID, stepID string) *Record {
	key := recordKey(workflowID, stepID)
	r, ok := m.records[key]
	if !ok {
		r = &Record{WorkflowID: workflowID, StepID: stepID}
		m.records[key] = r
	}
	return r
}

// Decide classifies cause and chooses the next strategy for workflowID's
// failedStepID, without executing it. Permanent failures resolve straight
// to StrategyReassign. Transient failures are retried (from the latest
// checkpoint when one can be restored) until MaxRetries attempts have been
// made, after which they resolve to StrategyGiveUp, signalling the caller
// to fall back to agent reassignment.
func (m *Manager) Decide(workflowID, failedStepID string, cause error) Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()

	failure := Classify(cause)
	r := m.record(workflowID, failedStepID)
	r.Failure = failure

	if failure.Classification == Permanent {
		return Strategy{Kind: StrategyReassign, Reason: failure.Reason, Attempt: r.Attempts, MaxAttempts: m.MaxRetries}
	}

	if r.Attempts >= m.MaxRetries {
		return Strategy{Kind: StrategyGiveUp, Reason: failure.Reason, Attempt: r.Attempts, MaxAttempts: m.MaxRetries}
	}

	r.Attempts++
	if m.Checkpoints != nil {
		if _, _, err := m.Checkpoints.Restore(context.Background(), workflowID); err == nil {
			return Strategy{Kind: StrategyRestoreCheckpoint, Reason: failure.Reason, Attempt: r.Attempts, MaxAttempts: m.MaxRetries}
		}
	}
	return Strategy{Kind: StrategyRetry, Reason: failure.Reason, Attempt: r.Attempts, MaxAttempts: m.MaxRetries}
}

// Recover executes the decided strategy against exec/w, re-entering the
// workflow from either a restored checkpoint or a clean retry. It resets w
// to Idle before re-entry, mirroring ExecuteResume's precondition.
func (m *Manager) Recover(ctx context.Context, exec *workflow.Executor, w *workflow.Workflow, failedStepID string, cause error) (*workflow.ExecutionContext, Strategy, error) {
	strategy := m.Decide(w.ID, failedStepID, cause)

	switch strategy.Kind {
	case StrategyRestoreCheckpoint:
		ec, _, err := m.Checkpoints.Restore(ctx, w.ID)
		if err != nil {
			return nil, strategy, fmt.Errorf("recovery: restore checkpoint for %s: %w", w.ID, err)
		}
		w.State = workflow.Idle()
		resumed, err := exec.ExecuteResume(ctx, w, ec)
		return resumed, strategy, err

	case StrategyRetry:
		w.State = workflow.Idle()
		resumed, err := exec.Execute(ctx, w)
		return resumed, strategy, err

	case StrategyGiveUp, StrategyReassign:
		return nil, strategy, fmt.Errorf("recovery: %s at step %s: %s", strategy.Kind, failedStepID, strategy.Reason)

	default:
		return nil, strategy, fmt.Errorf("recovery: unknown strategy %s", strategy.Kind)
	}
}
