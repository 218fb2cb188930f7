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

package rpc

import "fmt"

func errNotRegistered(id string) error {
	return fmt.Errorf("rpc: not registered: %s", id)
}

func errNoLifecycle() error {
	return fmt.Errorf("rpc: lifecycle manager not configured")
}

func errNoExecutor() error {
	return fmt.Errorf("rpc: workflow executor not configured")
}

func errNoOrchestrator() error {
	return fmt.Errorf("rpc: orchestrator not configured")
}

func errParallelUnsupported() error {
	return fmt.Errorf("rpc: parallel workflow execution is not supported")
}
