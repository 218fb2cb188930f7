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

	"github.com/kadirpekel/substrate/plan"
)

// Planner produces a task manifest for a natural-language goal. Substrate
// has no built-in planning model; a Planner is the external collaborator
// ExecuteAutonomous drives (spec §6).
type Planner interface {
	Plan(ctx context.Context, goal string) (*plan.Manifest, error)
}

// SingleTaskPlanner wraps an entire goal as one task in one iteration. It's
// adequate for tests and CLI runs that don't need multi-step decomposition.
type SingleTaskPlanner struct {
	IterationName string
	TaskTitle     string
}

// Plan satisfies Planner.
func (p *SingleTaskPlanner) Plan(_ context.Context, goal string) (*plan.Manifest, error) {
	name := p.IterationName
	if name == "" {
		name = "main"
	}
	title := p.TaskTitle
	if title == "" {
		title = goal
	}

	m := plan.NewManifest("goal", name)
	it := &plan.Iteration{ID: "I1", Number: 1, Name: name, Status: plan.StatusPlanned}
	it.Tasks = append(it.Tasks, &plan.Task{
		ID:          "I1.T1",
		IterationID: it.ID,
		Title:       title,
		Description: goal,
		Status:      plan.StatusPlanned,
	})
	m.AddIteration(it)
	return m, nil
}
