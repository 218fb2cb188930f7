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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kadirpekel/substrate/llms"
	"github.com/kadirpekel/substrate/workspace"
)

// SessionReport is the per-session analytics snapshot written to
// <workspace>/.substrate/sessions/<session_id>.json.
type SessionReport struct {
	SessionID     string    `json:"session_id"`
	MessageCount  int       `json:"message_count"`
	InvokedAgents []string  `json:"invoked_agents,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// SessionStore persists per-session chat history and analytics reports
// under <workspace>/.substrate (spec's Workspace & persistence layout):
// one keyed history/history.json shared across sessions, and one
// sessions/<session_id>.json report per session. Both are written with
// workspace.AtomicWriteJSON, the same write-to-temp-then-rename primitive
// the plan manifest and workflow records use.
type SessionStore struct {
	mu   sync.Mutex
	root string
}

// NewSessionStore roots the store at <workspaceRoot>/.substrate.
func NewSessionStore(workspaceRoot string) *SessionStore {
	return &SessionStore{root: filepath.Join(workspaceRoot, ".substrate")}
}

func (s *SessionStore) historyPath() string {
	return filepath.Join(s.root, "history", "history.json")
}

func (s *SessionStore) reportPath(sessionID string) string {
	return filepath.Join(s.root, "sessions", sessionID+".json")
}

// SaveHistory atomically rewrites history.json with sessionID's message
// log, preserving every other session's entry in the same keyed file.
func (s *SessionStore) SaveHistory(sessionID string, messages []llms.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string][]llms.ChatMessage)
	if err := workspace.ReadJSON(s.historyPath(), &all); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("agent: read session history: %w", err)
	}
	all[sessionID] = messages
	return workspace.AtomicWriteJSON(s.historyPath(), all)
}

// LoadHistory returns the persisted message log for sessionID, or nil if
// none has been saved yet.
func (s *SessionStore) LoadHistory(sessionID string) ([]llms.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string][]llms.ChatMessage)
	if err := workspace.ReadJSON(s.historyPath(), &all); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("agent: read session history: %w", err)
	}
	return all[sessionID], nil
}

// SaveReport atomically writes report to its own sessions/<id>.json file.
func (s *SessionStore) SaveReport(report SessionReport) error {
	return workspace.AtomicWriteJSON(s.reportPath(report.SessionID), report)
}
