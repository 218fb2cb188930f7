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

package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/substrate/llms"
	"github.com/kadirpekel/substrate/workspace"
)

// RunMode bounds how many iterations of the execution loop run.
type RunMode struct {
	Bounded bool
	Limit   int // only meaningful when Bounded is true
}

// Continuous runs the executor until every task completes, a task fails, or
// an iteration makes no progress; there is no iteration cap.
func Continuous() RunMode { return RunMode{} }

// Bounded runs the executor for at most n iterations.
func Bounded(n int) RunMode { return RunMode{Bounded: true, Limit: n} }

// ExecutionConfig configures a single PlanExecutor.Execute call.
type ExecutionConfig struct {
	Resume            bool
	SkipCompleted     bool
	CheckDependencies bool
	StatePath         string
	WorkspaceRoot     string // root for hierarchical CONTEXT.md lookup; empty disables injection
	MaxRetries        int
	BaseDelay         time.Duration
	RunMode           RunMode
}

// DefaultExecutionConfig mirrors the teacher's Rust ExecutionConfig::default.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		SkipCompleted:     true,
		CheckDependencies: true,
		StatePath:         "plan/plan_manifest.json",
		MaxRetries:        3,
		BaseDelay:         time.Second,
		RunMode:           Bounded(5),
	}
}

// ErrorCategory distinguishes retryable failures from ones that should
// abort the executor immediately.
type ErrorCategory string

const (
	CategoryRecoverable ErrorCategory = "recoverable"
	CategoryFatal       ErrorCategory = "fatal"
)

// ExecutionErrorKind enumerates the typed failures the executor itself can
// raise, distinct from errors returned by the TaskExecutor it drives.
type ExecutionErrorKind string

const (
	ErrAgentNotFound     ExecutionErrorKind = "agent_not_found"
	ErrDependencyNotMet  ExecutionErrorKind = "dependency_not_met"
	ErrModelExecution    ExecutionErrorKind = "model_execution"
	ErrPersistence       ExecutionErrorKind = "persistence"
)

// ExecutionError is a typed error from the plan executor.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// recoverablePatterns and fatalPatterns mirror the teacher's
// ExecutionError::category string-matching table verbatim (spec §4.3).
var recoverablePatterns = []string{
	"429", "rate limit", "timeout", "network", "connection",
	"5", "server error", "file lock", "temporary",
}

var fatalPatterns = []string{
	"401", "403", "unauthorized", "forbidden", "missing", "invalid",
	"not found", "dependency not met",
}

// Category classifies an ExecutionError as recoverable or fatal by matching
// its lowercased message against known transient/permanent patterns, with a
// typed fallback for our own ExecutionErrorKind values.
func (e *ExecutionError) Category() ErrorCategory {
	msg := strings.ToLower(e.Error())
	for _, p := range recoverablePatterns {
		if strings.Contains(msg, p) {
			return CategoryRecoverable
		}
	}
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return CategoryFatal
		}
	}
	switch e.Kind {
	case ErrModelExecution, ErrPersistence:
		return CategoryRecoverable
	default:
		return CategoryFatal
	}
}

// categorizeProviderError folds an llms.ProviderError into the same
// recoverable/fatal taxonomy the executor retries on.
func categorizeProviderError(err error) ErrorCategory {
	var perr *llms.ProviderError
	if pe, ok := err.(*llms.ProviderError); ok {
		perr = pe
	}
	if perr == nil {
		return CategoryFatal
	}
	if perr.Recoverable() {
		return CategoryRecoverable
	}
	return CategoryFatal
}

// TaskExecutor renders and invokes an agent for one plan task. Implementations
// typically wrap an agent.Registry plus an engine.Engine, with
// injectedContext prepended to the rendered prompt (spec §4.3 context
// injection).
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, task *Task, injectedContext string) (*TaskResult, error)
}

// Executor runs a Manifest to completion against a TaskExecutor, honoring
// dependency ordering, retry with exponential backoff, and atomic
// checkpointing after every task.
type Executor struct {
	Config   ExecutionConfig
	Runner   TaskExecutor
}

// NewExecutor builds an Executor.
func NewExecutor(cfg ExecutionConfig, runner TaskExecutor) *Executor {
	return &Executor{Config: cfg, Runner: runner}
}

// Execute runs manifest's tasks in DAG order, iteration-bounded by
// Config.RunMode, persisting progress after every task.
func (e *Executor) Execute(ctx context.Context, manifest *Manifest) error {
	dag, err := BuildDAG(manifest)
	if err != nil {
		return err
	}
	order, err := dag.TopologicalSort()
	if err != nil {
		return err
	}

	iterations := 0
	for {
		if e.Config.RunMode.Bounded && iterations >= e.Config.RunMode.Limit {
			return nil
		}
		iterations++

		progressed := false
		for _, taskID := range order {
			task := manifest.GetTask(taskID)
			if task == nil {
				continue
			}
			if task.Completed && e.Config.SkipCompleted {
				continue
			}

			if e.Config.CheckDependencies {
				if err := e.checkDependencies(manifest, task); err != nil {
					task.Status = StatusBlocked
					return err
				}
			}

			task.Status = StatusInProgress

			injected := ""
			if e.Config.WorkspaceRoot != "" {
				injected, _ = workspace.LoadContext(e.Config.WorkspaceRoot, e.Config.WorkspaceRoot)
			}

			result, err := e.executeTaskWithRetry(ctx, task, injected)
			if err != nil {
				return err
			}

			task.Result = result
			task.Completed = result.Success
			if result.Success {
				task.Status = StatusCompleted
			} else {
				task.Status = StatusFailed
			}
			if it := manifest.GetIteration(task.IterationID); it != nil {
				if it.IsComplete() {
					it.Status = StatusCompleted
				} else {
					it.Status = StatusInProgress
				}
			}
			progressed = true

			if e.Config.StatePath != "" {
				if err := workspace.AtomicWriteJSON(e.Config.StatePath, manifest); err != nil {
					return &ExecutionError{Kind: ErrPersistence, Message: e.Config.StatePath, Err: err}
				}
			}

			if !result.Success {
				return &ExecutionError{Kind: ErrModelExecution, Message: result.Error}
			}
		}

		if allTasksComplete(manifest) {
			return nil
		}
		if !progressed {
			return nil
		}
	}
}

func allTasksComplete(manifest *Manifest) bool {
	for _, t := range manifest.AllTasks() {
		if !t.Completed {
			return false
		}
	}
	return true
}

func (e *Executor) checkDependencies(manifest *Manifest, task *Task) error {
	for _, depID := range task.Dependencies {
		dep := manifest.GetTask(depID)
		if dep == nil {
			return &ExecutionError{Kind: ErrDependencyNotMet, Message: fmt.Sprintf("dependency task not found: %s", depID)}
		}
		if !dep.Completed {
			return &ExecutionError{Kind: ErrDependencyNotMet, Message: fmt.Sprintf("dependency task not completed: %s", depID)}
		}
	}
	return nil
}

// executeTaskWithRetry wraps Runner.ExecuteTask with exponential backoff,
// retrying only recoverable failures up to Config.MaxRetries (spec §4.3
// retry logic: delay = base_delay * 2^attempt).
func (e *Executor) executeTaskWithRetry(ctx context.Context, task *Task, injectedContext string) (*TaskResult, error) {
	var lastErr string

	for attempt := 0; attempt <= e.Config.MaxRetries; attempt++ {
		result, err := e.Runner.ExecuteTask(ctx, task, injectedContext)
		if err != nil {
			execErr := &ExecutionError{Kind: ErrModelExecution, Message: err.Error(), Err: err}
			category := categorizeProviderError(err)
			if category == CategoryFatal {
				category = execErr.Category()
			}
			if category == CategoryFatal || attempt >= e.Config.MaxRetries {
				return nil, execErr
			}
			lastErr = err.Error()
		} else if result.Success {
			return result, nil
		} else {
			category := (&ExecutionError{Kind: ErrModelExecution, Message: result.Error}).Category()
			if category == CategoryFatal || attempt >= e.Config.MaxRetries {
				return result, nil
			}
			lastErr = result.Error
		}

		if attempt < e.Config.MaxRetries {
			delay := e.Config.BaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &ExecutionError{Kind: ErrModelExecution, Message: lastErr, Err: ctx.Err()}
			}
		}
	}

	return nil, &ExecutionError{Kind: ErrModelExecution, Message: lastErr}
}
