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
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/plan"
	"github.com/kadirpekel/substrate/recovery"
)

// RegistryRunner adapts an agent.Registry into workflow.AgentRunner: it
// resolves the agent by id and invokes its Execute contract directly (spec
// §2 "Agent ... async execute(input, context) -> output").
type RegistryRunner struct {
	Agents    *agent.Registry
	SessionID string
}

// NewRegistryRunner builds a RegistryRunner over registry.
func NewRegistryRunner(registry *agent.Registry, sessionID string) *RegistryRunner {
	return &RegistryRunner{Agents: registry, SessionID: sessionID}
}

// RunAgent satisfies workflow.AgentRunner.
func (r *RegistryRunner) RunAgent(ctx context.Context, agentID, input string) (string, error) {
	a, ok := r.Agents.Get(agentID)
	if !ok {
		return "", fmt.Errorf("orchestrator: agent %q is not registered", agentID)
	}
	out, err := a.Execute(ctx, input, agent.Context{SessionID: r.SessionID})
	if err != nil {
		return "", err
	}
	if out.Text != "" {
		return out.Text, nil
	}
	if out.Structured != nil {
		return fmt.Sprintf("%v", out.Structured), nil
	}
	return "", nil
}

// PlanRunner adapts an agent.Registry (plus an optional capability
// selector) into plan.TaskExecutor, resolving "auto"-agent tasks by
// capability-tag match against the task's title before falling back to
// DefaultAgentID (SPEC_FULL.md §3 AgentDiscovery).
type PlanRunner struct {
	Agents         *agent.Registry
	Selector       *recovery.AgentSelector
	DefaultAgentID string
	SessionID      string
}

// NewPlanRunner builds a PlanRunner.
func NewPlanRunner(registry *agent.Registry, selector *recovery.AgentSelector, defaultAgentID, sessionID string) *PlanRunner {
	return &PlanRunner{Agents: registry, Selector: selector, DefaultAgentID: defaultAgentID, SessionID: sessionID}
}

// titleTags splits a plan task's title into lowercase words and appends any
// string entries of Metadata["tags"], giving a crude capability-tag query.
func titleTags(t *plan.Task) []string {
	words := strings.Fields(strings.ToLower(t.Title))
	if tags, ok := t.Metadata["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				words = append(words, s)
			}
		}
	}
	return words
}

func (r *PlanRunner) resolveAgentID(t *plan.Task) string {
	if !t.AutoAgent() {
		return t.AgentID
	}
	if r.Selector != nil {
		if a, ok := r.Selector.SelectFor(titleTags(t), ""); ok {
			return a.ID()
		}
	}
	return r.DefaultAgentID
}

// ExecuteTask satisfies plan.TaskExecutor.
func (r *PlanRunner) ExecuteTask(ctx context.Context, t *plan.Task, injectedContext string) (*plan.TaskResult, error) {
	agentID := r.resolveAgentID(t)
	a, ok := r.Agents.Get(agentID)
	if !ok {
		return &plan.TaskResult{TaskID: t.ID, Success: false, Error: fmt.Sprintf("agent %q not registered", agentID), CompletedAt: time.Now()}, nil
	}

	var b strings.Builder
	if injectedContext != "" {
		b.WriteString(injectedContext)
		b.WriteString("\n\n")
	}
	b.WriteString(t.Title)
	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(t.Description)
	}

	out, err := a.Execute(ctx, b.String(), agent.Context{SessionID: r.SessionID})
	if err != nil {
		return &plan.TaskResult{TaskID: t.ID, Success: false, Error: err.Error(), CompletedAt: time.Now()}, nil
	}
	return &plan.TaskResult{TaskID: t.ID, Success: true, Response: out.Text, CompletedAt: time.Now()}, nil
}
