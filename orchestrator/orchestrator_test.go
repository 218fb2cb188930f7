package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/recovery"
	"github.com/kadirpekel/substrate/task"
)

type scriptedAgent struct {
	id   string
	tags []string
	mu   sync.Mutex
	errs []error // one per call; last element repeats once exhausted
}

func (s *scriptedAgent) ID() string             { return s.id }
func (s *scriptedAgent) Description() string    { return "scripted" }
func (s *scriptedAgent) Capabilities() []string { return s.tags }

func (s *scriptedAgent) Execute(_ context.Context, input string, _ agent.Context) (agent.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return agent.Output{Text: "ok: " + input}, nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Text: "ok: " + input}, nil
}

func TestExecuteAutonomousHappyPath(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&scriptedAgent{id: "worker"})

	tasks := task.NewMemStore()
	planner := &SingleTaskPlanner{TaskTitle: "do the thing"}
	runner := NewRegistryRunner(agents, "session-1")

	cfg := DefaultAutonomousConfig()
	cfg.DefaultAgentID = "worker"
	orc := New(agents, tasks, planner, runner, nil, cfg)

	result, err := orc.ExecuteAutonomous(context.Background(), "build a feature")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.StepsCompleted)
	assert.Equal(t, 0, result.StepsFailed)
}

func TestExecuteAutonomousReassignsOnPermanentFailure(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&scriptedAgent{id: "broken", tags: []string{"do"}, errs: []error{fmt.Errorf("schema validation failed")}})
	agents.Register(&scriptedAgent{id: "backup", tags: []string{"do"}})

	tasks := task.NewMemStore()
	planner := &SingleTaskPlanner{TaskTitle: "do the thing"}
	runner := NewRegistryRunner(agents, "session-1")
	selector := recovery.NewAgentSelector(agents, nil)

	cfg := DefaultAutonomousConfig()
	cfg.DefaultAgentID = "broken"
	orc := New(agents, tasks, planner, runner, nil, cfg)
	orc.Recovery = recovery.NewManager(nil, 3)
	orc.Reassign = recovery.NewReassignment(selector, 2)
	orc.Selector = selector

	result, err := orc.ExecuteAutonomous(context.Background(), "build a feature")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ReassignmentsPerformed)
}

func TestExecuteAutonomousFailsWhenRecoveryDisabled(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&scriptedAgent{id: "broken", errs: []error{fmt.Errorf("schema validation failed")}})

	tasks := task.NewMemStore()
	planner := &SingleTaskPlanner{TaskTitle: "do the thing"}
	runner := NewRegistryRunner(agents, "session-1")

	cfg := DefaultAutonomousConfig()
	cfg.DefaultAgentID = "broken"
	cfg.EnableRecovery = false
	orc := New(agents, tasks, planner, runner, nil, cfg)

	result, err := orc.ExecuteAutonomous(context.Background(), "build a feature")
	require.Error(t, err)
	assert.False(t, result.Success)
	var autoErr *AutonomousError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, CategoryWorkflowExecution, autoErr.Category)
}

func TestExecuteAutonomousRetriesTransientFailureThenSucceeds(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&scriptedAgent{id: "flaky", errs: []error{fmt.Errorf("connection reset by peer")}})

	tasks := task.NewMemStore()
	planner := &SingleTaskPlanner{TaskTitle: "do the thing"}
	runner := NewRegistryRunner(agents, "session-1")

	cfg := DefaultAutonomousConfig()
	cfg.DefaultAgentID = "flaky"
	orc := New(agents, tasks, planner, runner, nil, cfg)
	orc.Recovery = recovery.NewManager(nil, 3)

	result, err := orc.ExecuteAutonomous(context.Background(), "build a feature")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecoveriesPerformed)
}
