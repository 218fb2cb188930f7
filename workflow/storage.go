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

package workflow

import (
	"fmt"
	"path/filepath"

	"github.com/kadirpekel/substrate/workspace"
)

// FileStorage persists workflows and execution contexts as one JSON file
// per record under root, via workspace.AtomicWriteJSON (write-then-rename).
type FileStorage struct {
	Root string
}

// NewFileStorage builds a FileStorage rooted at dir (typically
// "<workspace>/.substrate/workflows").
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{Root: dir}
}

func (s *FileStorage) workflowPath(id string) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s.json", id))
}

func (s *FileStorage) contextPath(workflowID string) string {
	return filepath.Join(s.Root, fmt.Sprintf("%s.context.json", workflowID))
}

// SaveWorkflow atomically writes w to <Root>/<id>.json.
func (s *FileStorage) SaveWorkflow(w *Workflow) error {
	return workspace.AtomicWriteJSON(s.workflowPath(w.ID), w)
}

// SaveExecutionContext atomically writes ec to <Root>/<workflow_id>.context.json.
func (s *FileStorage) SaveExecutionContext(ec *ExecutionContext) error {
	return workspace.AtomicWriteJSON(s.contextPath(ec.WorkflowID), ec)
}

// LoadWorkflow reads a previously saved workflow by id.
func (s *FileStorage) LoadWorkflow(id string) (*Workflow, error) {
	var w Workflow
	if err := workspace.ReadJSON(s.workflowPath(id), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// LoadExecutionContext reads a previously saved execution context by
// workflow id.
func (s *FileStorage) LoadExecutionContext(workflowID string) (*ExecutionContext, error) {
	var ec ExecutionContext
	if err := workspace.ReadJSON(s.contextPath(workflowID), &ec); err != nil {
		return nil, err
	}
	return &ec, nil
}
