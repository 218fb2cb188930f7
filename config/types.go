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

// Package config loads substrate's configuration document from a file,
// Consul KV, etcd key, or Zookeeper znode, with environment-variable
// overrides and optional hot reload.
package config

// Config is substrate's top-level configuration document.
type Config struct {
	Workspace    WorkspaceConfig        `yaml:"workspace"`
	Agents       map[string]AgentConfig `yaml:"agents"`
	Orchestrator OrchestratorConfig     `yaml:"orchestrator"`
	Recovery     RecoveryConfig         `yaml:"recovery"`
	Logging      LoggingConfig          `yaml:"logging"`
	RPC          RPCConfig              `yaml:"rpc"`
	TaskStore    TaskStoreConfig        `yaml:"task_store"`
}

// WorkspaceConfig locates the workspace root used for CONTEXT.md injection
// and state persistence (spec §5).
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// AgentConfig declares one statically-configured agent: which LLM provider
// backs it and where its credential lives.
type AgentConfig struct {
	Provider    string `yaml:"provider"` // "anthropic" or "openai"
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Description string `yaml:"description,omitempty"`
}

// OrchestratorConfig mirrors orchestrator.AutonomousConfig in document form.
type OrchestratorConfig struct {
	MaxRetries          int    `yaml:"max_retries"`
	EnableRecovery      bool   `yaml:"enable_recovery"`
	EnableReassignment  bool   `yaml:"enable_reassignment"`
	EnableLearning      bool   `yaml:"enable_learning"`
	CheckpointFrequency string `yaml:"checkpoint_frequency"`
	DefaultAgentID      string `yaml:"default_agent_id"`
}

// RecoveryConfig configures the recovery and reassignment subsystem.
type RecoveryConfig struct {
	MaxRetries          int    `yaml:"max_retries"`
	CheckpointDir       string `yaml:"checkpoint_dir"`
	MaxReassignAttempts int    `yaml:"max_reassign_attempts"`
	LearningStorePath   string `yaml:"learning_store_path"`
}

// LoggingConfig configures the logger package.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// RPCConfig configures the HTTP surface (package rpc).
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// TaskStoreConfig selects the task.Store backend. Driver "" or "memory"
// keeps tasks in-process (task.MemStore); "postgres", "mysql", or "sqlite"
// opens a database/sql-backed task.SQLStore against DSN.
type TaskStoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Default returns substrate's baked-in configuration, used when no config
// file is present and as the unmarshal target so unset fields keep sane
// defaults.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Root: "."},
		Agents:    map[string]AgentConfig{},
		Orchestrator: OrchestratorConfig{
			MaxRetries:          3,
			EnableRecovery:      true,
			EnableReassignment:  true,
			EnableLearning:      true,
			CheckpointFrequency: "every_step",
		},
		Recovery: RecoveryConfig{
			MaxRetries:          3,
			CheckpointDir:       ".substrate/checkpoints",
			MaxReassignAttempts: 2,
			LearningStorePath:   ".substrate/learning/outcomes.json",
		},
		Logging: LoggingConfig{Level: "info", Format: "simple"},
		RPC:     RPCConfig{Addr: ":8080"},
	}
}
