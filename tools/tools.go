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

// Package tools defines the Tool contract (spec §3, §6.2) and a registry,
// plus a minimal built-in set the engine can exercise in tests. Shell
// execution, patching, and code-scanning tool implementations remain out of
// scope per spec.md §1; only the interface contract is specified here.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/substrate/llms"
)

// Handler consumes a JSON argument map and produces a JSON-typed result or
// an error.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named callable exposed to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     Handler
}

// Definition adapts Tool into the llms wire-level ToolDefinition.
func (t Tool) Definition() llms.ToolDefinition {
	return llms.ConvertToolInfoToDefinition(t.Name, t.Description, t.Parameters)
}

// Registry is a name-unique tool registry.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Tool
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q: handler cannot be nil", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.Name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[name]
	return t, ok
}

// Definitions returns the ToolDefinition for every registered tool, in no
// particular order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llms.ToolDefinition, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, t.Definition())
	}
	return out
}

// Invoke runs the named tool's handler. Returns an error if the tool is
// unregistered; otherwise whatever the handler returns, success or error —
// the engine treats a handler error as data, not a terminating condition.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q is not registered", name)
	}
	return t.Handler(ctx, args)
}
