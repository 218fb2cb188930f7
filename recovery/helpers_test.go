package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/task"
)

// stubAgent is a minimal agent.Agent for recovery-package tests, optionally
// declaring capability tags.
type stubAgent struct {
	id   string
	tags []string
}

func (a stubAgent) ID() string          { return a.id }
func (a stubAgent) Description() string { return "stub agent " + a.id }
func (a stubAgent) Execute(ctx context.Context, input string, actx agent.Context) (agent.Output, error) {
	return agent.Output{Text: input, Terminated: true}, nil
}
func (a stubAgent) Capabilities() []string { return a.tags }

// successAgent is a stubAgent alias kept for readability at call sites.
type successAgent = stubAgent

func newTestRegistry(agents ...agent.Agent) *agent.Registry {
	r := agent.NewRegistry()
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

func newTestTaskStore(t *testing.T, taskID, agentID string) task.Store {
	t.Helper()
	store := task.NewMemStore()
	tk, err := task.New(taskID, "test task", "", agentID, "input")
	require.NoError(t, err)
	require.NoError(t, store.Put(tk))
	return store
}

// stubResult is one queued response for a recordingRunner.
type stubResult struct {
	out string
	err error
}

// recordingRunner is a workflow.AgentRunner that returns queued results in
// order, one per call, repeating the last once exhausted.
type recordingRunner struct {
	results []stubResult
	calls   int
}

func (r *recordingRunner) RunAgent(ctx context.Context, agentID string, input string) (string, error) {
	idx := r.calls
	if idx >= len(r.results) {
		idx = len(r.results) - 1
	}
	r.calls++
	res := r.results[idx]
	return res.out, res.err
}
