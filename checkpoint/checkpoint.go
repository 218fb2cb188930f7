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

// Package checkpoint stores workflow execution snapshots (spec §4.4,
// §6.3): enough state to rewind a workflow's ExecutionContext to the last
// completed step and resume from the next one.
package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/substrate/workflow"
	"github.com/kadirpekel/substrate/workspace"
)

// Checkpoint is a snapshot of one workflow's execution state at the moment
// a step completed.
type Checkpoint struct {
	ID         string                       `json:"id"`
	WorkflowID string                       `json:"workflow_id"`
	LastStepID string                       `json:"last_step_id"`
	Context    *workflow.ExecutionContext   `json:"context"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// Store persists and retrieves checkpoints. Implementations must make
// LatestFor idempotent: restoring the same checkpoint twice yields the same
// ExecutionContext.
type Store interface {
	Save(ctx context.Context, c *Checkpoint) error
	Load(ctx context.Context, id string) (*Checkpoint, error)
	LatestFor(ctx context.Context, workflowID string) (*Checkpoint, error)
}

// FileStore persists one JSON file per checkpoint under
// "<workspace>/.substrate/checkpoints/<uuid>.json" (spec §6.3 layout),
// using the shared atomic write-then-rename helper.
type FileStore struct {
	mu   sync.Mutex
	root string

	// latest indexes the most recent checkpoint id per workflow among the
	// saves made through this FileStore; it is not rebuilt from disk.
	latest map[string]string
}

// NewFileStore builds a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir, latest: make(map[string]string)}
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, id+".json")
}

// Save writes c to disk and records it as the latest checkpoint for its
// workflow.
func (s *FileStore) Save(_ context.Context, c *Checkpoint) error {
	if err := workspace.AtomicWriteJSON(s.path(c.ID), c); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", c.ID, err)
	}
	s.mu.Lock()
	s.latest[c.WorkflowID] = c.ID
	s.mu.Unlock()
	return nil
}

// Load reads a checkpoint by id.
func (s *FileStore) Load(_ context.Context, id string) (*Checkpoint, error) {
	var c Checkpoint
	if err := workspace.ReadJSON(s.path(id), &c); err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", id, err)
	}
	return &c, nil
}

// LatestFor returns the most recently saved checkpoint for workflowID, or
// an error if none exists in this process's memory of saves.
func (s *FileStore) LatestFor(ctx context.Context, workflowID string) (*Checkpoint, error) {
	s.mu.Lock()
	id, ok := s.latest[workflowID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint: no checkpoint recorded for workflow %s", workflowID)
	}
	return s.Load(ctx, id)
}

// Manager adapts a Store into workflow.Checkpointer: one checkpoint is
// written after every successfully completed step, per spec §4.4.
type Manager struct {
	Store Store
}

// NewManager builds a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{Store: store}
}

// WriteCheckpoint satisfies workflow.Checkpointer.
func (m *Manager) WriteCheckpoint(ctx context.Context, workflowID, lastStepID string, ec *workflow.ExecutionContext) error {
	c := &Checkpoint{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		LastStepID: lastStepID,
		Context:    ec,
		CreatedAt:  time.Now(),
	}
	return m.Store.Save(ctx, c)
}

// Restore loads workflowID's latest checkpoint and returns the
// ExecutionContext to resume from, along with the id of the last step that
// completed before the snapshot. Applying the same restore twice is
// idempotent: it only reads state, it never mutates the stored checkpoint.
func (m *Manager) Restore(ctx context.Context, workflowID string) (*workflow.ExecutionContext, string, error) {
	c, err := m.Store.LatestFor(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}
	return c.Context, c.LastStepID, nil
}
