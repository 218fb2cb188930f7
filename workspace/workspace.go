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

// Package workspace provides the on-disk persistence primitives shared
// across the plan manifest, workflow records, checkpoints, and session
// analytics: atomic JSON writes and hierarchical CONTEXT.md lookup.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContextFileName is the well-known name of a directory-scoped context file.
const ContextFileName = "CONTEXT.md"

// AtomicWriteJSON marshals v as indented JSON and writes it to path via
// write-to-temp-then-rename, so readers never observe a partial file.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workspace: create dir for %s: %w", path, err)
		}
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("workspace: rename %s -> %s: %w", tempPath, path, err)
	}
	return nil
}

// ReadJSON unmarshals the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("workspace: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("workspace: parse %s: %w", path, err)
	}
	return nil
}

// LoadContext walks from root down to dir, concatenating every CONTEXT.md
// found along the way (ancestor-first), so the most specific directory's
// context appears last and can refine or override earlier guidance.
func LoadContext(root, dir string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workspace: resolve root %s: %w", root, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("workspace: resolve dir %s: %w", dir, err)
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil {
		return "", fmt.Errorf("workspace: %s is not under %s: %w", absDir, absRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace: %s is not under %s", absDir, absRoot)
	}

	segments := []string{}
	if rel != "." {
		segments = strings.Split(rel, string(filepath.Separator))
	}

	var b strings.Builder
	current := absRoot
	appendIfPresent := func(dir string) error {
		path := filepath.Join(dir, ContextFileName)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("workspace: read %s: %w", path, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.Write(data)
		return nil
	}

	if err := appendIfPresent(current); err != nil {
		return "", err
	}
	for _, seg := range segments {
		current = filepath.Join(current, seg)
		if err := appendIfPresent(current); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}
