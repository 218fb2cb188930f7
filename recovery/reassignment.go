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

package recovery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/substrate/agent"
)

// CapabilityProvider is an optional interface an Agent may implement to
// declare the capability tags an AgentSelector matches against. An agent
// that doesn't implement it is treated as having no tags.
type CapabilityProvider interface {
	Capabilities() []string
}

// SuccessRateSource reports an agent's historical success rate, used only
// to break ties between equally-qualified candidates (spec §4.4). A nil
// source leaves ties broken by registry insertion order.
type SuccessRateSource func(agentID string) (rate float64, known bool)

// AgentSelector enumerates registered agents matching a failed step's
// required capability tags.
type AgentSelector struct {
	Registry    *agent.Registry
	SuccessRate SuccessRateSource
}

// NewAgentSelector builds a selector over registry.
func NewAgentSelector(registry *agent.Registry, successRate SuccessRateSource) *AgentSelector {
	return &AgentSelector{Registry: registry, SuccessRate: successRate}
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
}

func intersects(required, have map[string]bool) bool {
	if len(required) == 0 {
		return true
	}
	for t := range required {
		if have[t] {
			return true
		}
	}
	return false
}

// SelectFor returns the best candidate agent whose declared capabilities
// intersect requiredTags, excluding excludeID (typically the agent that
// just failed). Ties are broken by higher historical success rate when
// known, otherwise by registry insertion order.
func (s *AgentSelector) SelectFor(requiredTags []string, excludeID string) (agent.Agent, bool) {
	required := tagSet(requiredTags)
	type candidate struct {
		a     agent.Agent
		rate  float64
		known bool
	}
	var candidates []candidate

	for _, meta := range s.Registry.List() {
		if meta.ID == excludeID {
			continue
		}
		a, ok := s.Registry.Get(meta.ID)
		if !ok {
			continue
		}
		var have map[string]bool
		if cp, ok := a.(CapabilityProvider); ok {
			have = tagSet(cp.Capabilities())
		}
		if !intersects(required, have) {
			continue
		}
		rate, known := 0.0, false
		if s.SuccessRate != nil {
			rate, known = s.SuccessRate(meta.ID)
		}
		candidates = append(candidates, candidate{a: a, rate: rate, known: known})
	}

	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].known && candidates[j].known {
			return candidates[i].rate > candidates[j].rate
		}
		return candidates[i].known && !candidates[j].known
	})
	return candidates[0].a, true
}

// Reassignment chooses an alternative agent for a failed step, bounding the
// number of attempts per step (spec §4.4: default 2, confirmed against the
// reference implementation's AgentReassignment::new(selector, Some(2))).
type Reassignment struct {
	Selector    *AgentSelector
	MaxAttempts int

	mu       sync.Mutex
	attempts map[string]int            // workflowID/stepID -> attempt count
	assigned map[string]string         // workflowID/stepID -> last assigned agent id
}

// NewReassignment builds a Reassignment. maxAttempts <= 0 uses the spec
// default of 2.
func NewReassignment(selector *AgentSelector, maxAttempts int) *Reassignment {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Reassignment{
		Selector:    selector,
		MaxAttempts: maxAttempts,
		attempts:    make(map[string]int),
		assigned:    make(map[string]string),
	}
}

// Reassign picks a new agent for workflowID's stepID, excluding
// currentAgentID, refusing once the bounded attempt count is exhausted.
func (r *Reassignment) Reassign(workflowID, stepID string, requiredTags []string, currentAgentID string) (string, error) {
	key := recordKey(workflowID, stepID)

	r.mu.Lock()
	attempt := r.attempts[key]
	if attempt >= r.MaxAttempts {
		r.mu.Unlock()
		return "", fmt.Errorf("recovery: reassignment attempts exhausted for step %s (%d/%d)", stepID, attempt, r.MaxAttempts)
	}
	r.mu.Unlock()

	candidate, ok := r.Selector.SelectFor(requiredTags, currentAgentID)
	if !ok {
		return "", fmt.Errorf("recovery: no capable agent found to replace %s for step %s", currentAgentID, stepID)
	}

	r.mu.Lock()
	r.attempts[key] = attempt + 1
	r.assigned[key] = candidate.ID()
	r.mu.Unlock()

	return candidate.ID(), nil
}

// Attempts reports how many reassignment attempts have been made for a step.
func (r *Reassignment) Attempts(workflowID, stepID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[recordKey(workflowID, stepID)]
}

// ResetAttempts resets a step's recovery-manager retry counter back to
// zero. Per spec §9 open question (b), reassignment resets the retry
// budget rather than preserving it: a newly assigned agent gets a fresh
// attempt count.
func (m *Manager) ResetAttempts(workflowID, stepID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, recordKey(workflowID, stepID))
}
