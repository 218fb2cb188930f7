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

package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/substrate/engine"
)

// LLMAgent adapts an engine.Engine loop to the Agent interface, keeping one
// OrchestrationContext per session id so repeated calls accumulate history
// the way a long-running conversation would.
type LLMAgent struct {
	id          string
	description string
	engine      *engine.Engine

	// Sessions persists chat history and analytics reports to the
	// workspace (spec §6.3). Nil disables persistence (in-memory only).
	Sessions *SessionStore

	mu       sync.Mutex
	sessions map[string]*engine.OrchestrationContext
}

// NewLLMAgent builds an LLMAgent backed by eng.
func NewLLMAgent(id, description string, eng *engine.Engine) *LLMAgent {
	return &LLMAgent{
		id:          id,
		description: description,
		engine:      eng,
		sessions:    make(map[string]*engine.OrchestrationContext),
	}
}

func (a *LLMAgent) ID() string          { return a.id }
func (a *LLMAgent) Description() string { return a.description }

// Execute runs one turn of actx.SessionID's conversation through the
// underlying engine loop, translating its FinishReason into Output.
func (a *LLMAgent) Execute(ctx context.Context, input string, actx Context) (Output, error) {
	sessionID := actx.SessionID
	if sessionID == "" {
		sessionID = a.id
	}

	octx, err := a.sessionContext(sessionID)
	if err != nil {
		return Output{}, err
	}

	result, err := a.engine.Execute(ctx, input, octx)
	if err != nil {
		return Output{}, err
	}

	out := Output{Text: result.FinalMessage}
	if result.FinishReason == engine.FinishStop && len(result.ToolCalls) == 0 {
		out.Terminated = true
	}
	if len(result.ToolCalls) > 0 {
		name := result.ToolCalls[len(result.ToolCalls)-1].Name
		out.ToolCall = &name
	}

	a.persistSession(sessionID, octx)
	return out, nil
}

// persistSession writes octx's history and a refreshed analytics report,
// if a SessionStore is configured. Failures are logged, not returned:
// persistence is best-effort and must not fail an otherwise-successful
// Execute call.
func (a *LLMAgent) persistSession(sessionID string, octx *engine.OrchestrationContext) {
	if a.Sessions == nil {
		return
	}
	history := octx.Snapshot()
	if err := a.Sessions.SaveHistory(sessionID, history); err != nil {
		slog.Warn("agent: failed to persist session history", "session_id", sessionID, "error", err)
		return
	}
	report := SessionReport{
		SessionID:     sessionID,
		MessageCount:  len(history),
		InvokedAgents: octx.InvokedAgents,
		GeneratedAt:   time.Now(),
	}
	if err := a.Sessions.SaveReport(report); err != nil {
		slog.Warn("agent: failed to persist session report", "session_id", sessionID, "error", err)
	}
}

func (a *LLMAgent) sessionContext(sessionID string) (*engine.OrchestrationContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if octx, ok := a.sessions[sessionID]; ok {
		return octx, nil
	}
	octx, err := engine.NewOrchestrationContext(sessionID)
	if err != nil {
		return nil, err
	}
	a.sessions[sessionID] = octx
	return octx, nil
}
