package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/task"
)

type stubAgent struct{ id string }

func (s *stubAgent) ID() string          { return s.id }
func (s *stubAgent) Description() string { return "stub" }
func (s *stubAgent) Execute(context.Context, string, agent.Context) (agent.Output, error) {
	return agent.Output{}, nil
}

type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) RunAgent(_ context.Context, agentID string, input string) (string, error) {
	f.calls = append(f.calls, agentID+":"+input)
	if err, ok := f.errs[agentID]; ok {
		return "", err
	}
	return f.outputs[agentID], nil
}

type memStorage struct {
	workflows map[string]*Workflow
	contexts  map[string]*ExecutionContext
}

func newMemStorage() *memStorage {
	return &memStorage{workflows: map[string]*Workflow{}, contexts: map[string]*ExecutionContext{}}
}

func (m *memStorage) SaveWorkflow(w *Workflow) error {
	m.workflows[w.ID] = w
	return nil
}

func (m *memStorage) SaveExecutionContext(ec *ExecutionContext) error {
	m.contexts[ec.WorkflowID] = ec
	return nil
}

func newTestExecutor(agents *agent.Registry, tasks task.Store, runner AgentRunner, storage Storage) *Executor {
	return NewExecutor(tasks, agents, runner, storage, nil)
}

func TestExecuteEmptyWorkflowCompletesImmediately(t *testing.T) {
	agents := agent.NewRegistry()
	tasks := task.NewMemStore()
	exec := newTestExecutor(agents, tasks, &fakeRunner{}, newMemStorage())

	w := New("wf-1", "empty", "")
	ec, err := exec.Execute(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, Completed(), w.State)
	assert.Empty(t, ec.StepResults)
}

func TestExecuteSequentialStepsInOrder(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&stubAgent{id: "a1"})
	tasks := task.NewMemStore()
	t1, _ := task.New("t1", "first", "", "a1", "hello")
	t2, _ := task.New("t2", "second", "", "a1", "world")
	tasks.Put(t1)
	tasks.Put(t2)

	runner := &fakeRunner{outputs: map[string]string{"a1": "ok"}}
	exec := newTestExecutor(agents, tasks, runner, newMemStorage())

	w := New("wf-2", "seq", "")
	require.NoError(t, w.AddStep(Step{ID: "s2", TaskID: "t2", Order: 2}))
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1}))

	ec, err := exec.Execute(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, Completed(), w.State)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "a1:hello", runner.calls[0])
	assert.Equal(t, "a1:world", runner.calls[1])
	assert.True(t, ec.StepResults["s1"].Success)
	assert.True(t, ec.StepResults["s2"].Success)
}

func TestExecuteStopsOnFirstFailure(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&stubAgent{id: "a1"})
	tasks := task.NewMemStore()
	t1, _ := task.New("t1", "first", "", "a1", "x")
	t2, _ := task.New("t2", "second", "", "a1", "y")
	tasks.Put(t1)
	tasks.Put(t2)

	runner := &fakeRunner{errs: map[string]error{"a1": fmt.Errorf("boom")}}
	exec := newTestExecutor(agents, tasks, runner, newMemStorage())

	w := New("wf-3", "fail", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1}))
	require.NoError(t, w.AddStep(Step{ID: "s2", TaskID: "t2", Order: 2}))

	ec, err := exec.Execute(context.Background(), w)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrStepFailed, execErr.Kind)
	assert.Equal(t, "s1", execErr.StepID)
	assert.Equal(t, "error(boom)", w.State.String())
	_, ranSecond := ec.StepResults["s2"]
	assert.False(t, ranSecond)
}

func TestExecuteRefusesNonIdleWorkflow(t *testing.T) {
	agents := agent.NewRegistry()
	tasks := task.NewMemStore()
	exec := newTestExecutor(agents, tasks, &fakeRunner{}, newMemStorage())

	w := New("wf-4", "busy", "")
	w.State = Running()
	_, err := exec.Execute(context.Background(), w)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrNotIdle, execErr.Kind)
}

func TestExecuteMissingTaskSurfacesTaskNotFound(t *testing.T) {
	agents := agent.NewRegistry()
	tasks := task.NewMemStore()
	exec := newTestExecutor(agents, tasks, &fakeRunner{}, newMemStorage())

	w := New("wf-5", "missing-task", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "ghost", Order: 1}))

	_, err := exec.Execute(context.Background(), w)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrTaskNotFound, execErr.Kind)
}

func TestExecuteMissingAgentSurfacesAgentNotFound(t *testing.T) {
	agents := agent.NewRegistry()
	tasks := task.NewMemStore()
	t1, _ := task.New("t1", "first", "", "ghost-agent", "x")
	tasks.Put(t1)
	exec := newTestExecutor(agents, tasks, &fakeRunner{}, newMemStorage())

	w := New("wf-6", "missing-agent", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1}))

	_, err := exec.Execute(context.Background(), w)
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrAgentNotFound, execErr.Kind)
}

func TestExecuteHonorsDependsOnCondition(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&stubAgent{id: "a1"})
	tasks := task.NewMemStore()
	t1, _ := task.New("t1", "first", "", "a1", "x")
	t2, _ := task.New("t2", "second", "", "a1", "y")
	tasks.Put(t1)
	tasks.Put(t2)

	runner := &fakeRunner{errs: map[string]error{"a1": fmt.Errorf("boom")}}
	exec := newTestExecutor(agents, tasks, runner, newMemStorage())

	w := New("wf-7", "conditional", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1}))
	require.NoError(t, w.AddStep(Step{ID: "s2", TaskID: "t2", Order: 2, ConfigJSON: `{"dependsOn":["s1"]}`}))

	ec, err := exec.Execute(context.Background(), w)
	require.Error(t, err)
	_, ran := ec.StepResults["s2"]
	assert.False(t, ran)
}

func TestValidateRejectsDuplicateStepIDs(t *testing.T) {
	w := New("wf-8", "dup", "")
	w.Steps = append(w.Steps, Step{ID: "s1", TaskID: "t1", Order: 1}, Step{ID: "s1", TaskID: "t2", Order: 2})
	err := w.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownDependsOn(t *testing.T) {
	w := New("wf-9", "bad-dep", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1, ConfigJSON: `{"dependsOn":["ghost"]}`}))
	err := w.Validate()
	require.Error(t, err)
}

func TestExecuteResumeSkipsAlreadySucceededSteps(t *testing.T) {
	agents := agent.NewRegistry()
	agents.Register(&stubAgent{id: "a1"})
	tasks := task.NewMemStore()
	t1, _ := task.New("t1", "first", "", "a1", "x")
	t2, _ := task.New("t2", "second", "", "a1", "y")
	tasks.Put(t1)
	tasks.Put(t2)

	runner := &fakeRunner{outputs: map[string]string{"a1": "ok"}}
	exec := newTestExecutor(agents, tasks, runner, newMemStorage())

	w := New("wf-10", "resume", "")
	require.NoError(t, w.AddStep(Step{ID: "s1", TaskID: "t1", Order: 1}))
	require.NoError(t, w.AddStep(Step{ID: "s2", TaskID: "t2", Order: 2}))

	ec := NewExecutionContext(w.ID)
	ec.StepResults["s1"] = &StepResult{StepID: "s1", Success: true, Output: "cached"}

	_, err := exec.ExecuteResume(context.Background(), w, ec)
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "a1:y", runner.calls[0])
}
