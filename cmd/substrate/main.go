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

// Command substrate is the CLI for the substrate agent orchestration
// platform.
//
// Usage:
//
//	substrate serve --config config.yaml
//	substrate goal --config config.yaml "summarize the open PRs"
//	substrate validate --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/checkpoint"
	"github.com/kadirpekel/substrate/config"
	"github.com/kadirpekel/substrate/engine"
	"github.com/kadirpekel/substrate/llms"
	"github.com/kadirpekel/substrate/logger"
	"github.com/kadirpekel/substrate/orchestrator"
	"github.com/kadirpekel/substrate/recovery"
	"github.com/kadirpekel/substrate/rpc"
	"github.com/kadirpekel/substrate/task"
	"github.com/kadirpekel/substrate/tools"
	"github.com/kadirpekel/substrate/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the RPC server."`
	Goal     GoalCmd     `cmd:"" help:"Run one autonomous goal and exit."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"substrate.yaml"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("substrate version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: cli.Config})
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	fmt.Printf("config OK: %d agent(s) configured\n", len(cfg.Agents))
	return nil
}

// GoalCmd runs a single autonomous goal through the orchestrator and prints
// the resulting ExecutionResult as JSON.
type GoalCmd struct {
	Goal string `arg:"" help:"Natural-language goal to execute."`
}

func (c *GoalCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: cli.Config})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogger(cfg)

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}

	eventLogger := logger.NewEventLogger(deps.bus, nil)
	go eventLogger.Run(ctx)
	defer eventLogger.Close(deps.bus)

	result, err := deps.orchestrator.ExecuteAutonomous(ctx, c.Goal)
	out, merr := json.MarshalIndent(result, "", "  ")
	if merr == nil {
		fmt.Println(string(out))
	}
	return err
}

// ServeCmd starts the HTTP/JSON RPC server.
type ServeCmd struct {
	Addr string `help:"Override the configured listen address."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: cli.Config, Watch: true})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogger(cfg)

	addr := cfg.RPC.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}

	eventLogger := logger.NewEventLogger(deps.bus, nil)
	go eventLogger.Run(ctx)
	defer eventLogger.Close(deps.bus)

	reg := prometheus.NewRegistry()
	srv := rpc.NewServer(reg)
	srv.Agents = deps.agents
	srv.Lifecycle = deps.lifecycle
	srv.Tasks = deps.tasks
	srv.Workflows = deps.workflowStorage
	srv.WorkflowExec = deps.executor
	srv.Orchestrator = deps.orchestrator

	httpSrv := &http.Server{Addr: addr, Handler: srv}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("substrate listening on %s\n", addr)
	fmt.Printf("  agents registered: %d\n", deps.agents.Count())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func initLogger(cfg *config.Config) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = 0
	}
	output := os.Stderr
	if cfg.Logging.File != "" {
		f, _, ferr := logger.OpenLogFile(cfg.Logging.File)
		if ferr == nil {
			output = f
		}
	}
	logger.Init(level, output, cfg.Logging.Format)
}

// dependencies bundles everything ServeCmd and GoalCmd build from a loaded
// Config: the agent registry, lifecycle tracker, task/workflow stores, and
// the wired orchestrator.
type dependencies struct {
	agents          *agent.Registry
	lifecycle       *agent.Lifecycle
	tasks           task.Store
	workflowStorage *workflow.FileStorage
	executor        *workflow.Executor
	orchestrator    *orchestrator.Orchestrator
	bus             *engine.Bus
}

// buildDependencies wires every substrate subsystem from cfg: agents (one
// LLM-backed engine per configured entry), the task/workflow/checkpoint
// stores, the recovery and reassignment subsystem, and the top-level
// Orchestrator.
func buildDependencies(cfg *config.Config) (*dependencies, error) {
	bus := engine.NewBus(engine.DefaultBusCapacity)

	workspaceRoot := cfg.Workspace.Root
	if workspaceRoot == "" {
		workspaceRoot = "."
	}
	sessions := agent.NewSessionStore(workspaceRoot)

	agents := agent.NewRegistry()
	for id, ac := range cfg.Agents {
		a, err := buildAgent(id, ac, bus, sessions)
		if err != nil {
			return nil, fmt.Errorf("build agent %q: %w", id, err)
		}
		agents.Register(a)
	}

	lifecycle := agent.NewLifecycle()
	for _, m := range agents.List() {
		lifecycle.Register(m.ID)
	}

	tasks, err := buildTaskStore(cfg.TaskStore)
	if err != nil {
		return nil, fmt.Errorf("build task store: %w", err)
	}

	checkpointStore := checkpoint.NewFileStore(cfg.Recovery.CheckpointDir)
	checkpointMgr := checkpoint.NewManager(checkpointStore)

	var learning recovery.LearningStore
	if cfg.Orchestrator.EnableLearning {
		learning = recovery.NewFileLearningStore(cfg.Recovery.LearningStorePath)
	}

	recoveryMgr := recovery.NewManager(checkpointMgr, cfg.Recovery.MaxRetries)
	selector := recovery.NewAgentSelector(agents, nil)
	reassign := recovery.NewReassignment(selector, cfg.Recovery.MaxReassignAttempts)

	workflowStorage := workflow.NewFileStorage(workspaceRoot + "/.substrate/workflows")
	runner := orchestrator.NewRegistryRunner(agents, "autonomous")
	executor := workflow.NewExecutor(tasks, agents, runner, workflowStorage, checkpointMgr)

	planner := &orchestrator.SingleTaskPlanner{}
	orc := orchestrator.New(agents, tasks, planner, runner, workflowStorage, orchestratorConfig(cfg))
	orc.Checkpoints = checkpointMgr
	orc.Recovery = recoveryMgr
	orc.Reassign = reassign
	orc.Selector = selector
	orc.Learning = learning

	return &dependencies{
		agents:          agents,
		lifecycle:       lifecycle,
		tasks:           tasks,
		workflowStorage: workflowStorage,
		executor:        executor,
		orchestrator:    orc,
		bus:             bus,
	}, nil
}

// buildTaskStore selects task.NewMemStore (the default) or a
// database/sql-backed task.SQLStore per cfg.Driver.
func buildTaskStore(cfg config.TaskStoreConfig) (task.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemStore(), nil
	case "postgres", "mysql", "sqlite":
		return task.OpenSQLStore(cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown task store driver %q", cfg.Driver)
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.AutonomousConfig {
	freq := orchestrator.CheckpointFrequency(cfg.Orchestrator.CheckpointFrequency)
	if freq == "" {
		freq = orchestrator.CheckpointEveryStep
	}
	return orchestrator.AutonomousConfig{
		MaxRetries:          cfg.Orchestrator.MaxRetries,
		EnableRecovery:      cfg.Orchestrator.EnableRecovery,
		EnableReassignment:  cfg.Orchestrator.EnableReassignment,
		EnableLearning:      cfg.Orchestrator.EnableLearning,
		CheckpointFrequency: freq,
		DefaultAgentID:      cfg.Orchestrator.DefaultAgentID,
	}
}

// buildAgent constructs an LLM-backed agent.Agent from one configured
// entry: a provider (anthropic or openai), a model, and an API key read
// from the named environment variable. bus fans the agent's engine events
// out to the event logger and any RPC streaming clients; sessions persists
// conversation history and per-session analytics reports (spec §6.3).
func buildAgent(id string, ac config.AgentConfig, bus *engine.Bus, sessions *agent.SessionStore) (agent.Agent, error) {
	apiKey := os.Getenv(ac.APIKeyEnv)

	var provider llms.Provider
	switch ac.Provider {
	case "anthropic":
		provider = llms.NewAnthropicProvider(apiKey, ac.Model, 4096)
	case "openai":
		provider = llms.NewOpenAIProvider(apiKey, ac.Model, "")
	default:
		return nil, fmt.Errorf("unknown provider %q", ac.Provider)
	}

	eng := engine.NewEngine(provider, nil, tools.NewRegistry(), engine.NoopHooks(), bus, engine.DefaultConfig())
	a := agent.NewLLMAgent(id, ac.Description, eng)
	a.Sessions = sessions
	return a, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("substrate"),
		kong.Description("substrate - workspace-scoped LLM agent orchestration"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
