package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/checkpoint"
	"github.com/kadirpekel/substrate/workflow"
)

func TestClassifyTransientVsPermanent(t *testing.T) {
	assert.Equal(t, Transient, Classify(errors.New("connection reset by peer")).Classification)
	assert.Equal(t, Transient, Classify(errors.New("429 rate limit exceeded")).Classification)
	assert.Equal(t, Permanent, Classify(errors.New("schema validation failed")).Classification)
	assert.Equal(t, Permanent, Classify(errors.New("totally unrecognized failure")).Classification)
	assert.Equal(t, Permanent, Classify(nil).Classification)
}

func TestCanSkipRefusesWhenDependedOn(t *testing.T) {
	w := workflow.New("wf-1", "test", "")
	require.NoError(t, w.AddStep(workflow.Step{ID: "a", TaskID: "t-a", Order: 0}))
	require.NoError(t, w.AddStep(workflow.Step{ID: "b", TaskID: "t-b", Order: 1, ConfigJSON: `{"dependsOn":["a"]}`}))

	assert.False(t, CanSkip(w, "a"))
	assert.True(t, CanSkip(w, "b"))
}

func TestDecideRetriesTransientFailureUpToMaxRetries(t *testing.T) {
	m := NewManager(nil, 2)
	cause := errors.New("connection reset")

	first := m.Decide("wf-1", "step-1", cause)
	assert.Equal(t, StrategyRetry, first.Kind)
	assert.Equal(t, 1, first.Attempt)

	second := m.Decide("wf-1", "step-1", cause)
	assert.Equal(t, StrategyRetry, second.Kind)
	assert.Equal(t, 2, second.Attempt)

	third := m.Decide("wf-1", "step-1", cause)
	assert.Equal(t, StrategyGiveUp, third.Kind)
}

func TestDecidePermanentFailureGoesStraightToReassign(t *testing.T) {
	m := NewManager(nil, 3)
	strategy := m.Decide("wf-1", "step-1", errors.New("schema validation failed"))
	assert.Equal(t, StrategyReassign, strategy.Kind)
}

func TestDecidePrefersCheckpointRestoreWhenAvailable(t *testing.T) {
	store := checkpoint.NewFileStore(t.TempDir())
	mgr := checkpoint.NewManager(store)
	ctx := context.Background()
	require.NoError(t, mgr.WriteCheckpoint(ctx, "wf-1", "step-0", workflow.NewExecutionContext("wf-1")))

	m := NewManager(mgr, 3)
	strategy := m.Decide("wf-1", "step-1", errors.New("timeout"))
	assert.Equal(t, StrategyRestoreCheckpoint, strategy.Kind)
}

func TestResetAttemptsClearsRecord(t *testing.T) {
	m := NewManager(nil, 1)
	cause := errors.New("timeout")
	m.Decide("wf-1", "step-1", cause)
	giveUp := m.Decide("wf-1", "step-1", cause)
	require.Equal(t, StrategyGiveUp, giveUp.Kind)

	m.ResetAttempts("wf-1", "step-1")
	fresh := m.Decide("wf-1", "step-1", cause)
	assert.Equal(t, StrategyRetry, fresh.Kind)
	assert.Equal(t, 1, fresh.Attempt)
}

func TestRecoverRetryReentersWorkflow(t *testing.T) {
	tasks := newTestTaskStore(t, "t-1", "agent-1")
	agents := newTestRegistry(successAgent{id: "agent-1"})
	wf := workflow.New("wf-1", "test", "")
	require.NoError(t, wf.AddStep(workflow.Step{ID: "step-1", TaskID: "t-1", Order: 0}))

	exec := workflow.NewExecutor(tasks, agents, &recordingRunner{results: []stubResult{{err: errors.New("timeout")}, {out: "ok"}}}, nil, nil)

	ec, execErr := exec.Execute(context.Background(), wf)
	require.Error(t, execErr)

	var wfErr *workflow.ExecutionError
	require.ErrorAs(t, execErr, &wfErr)

	m := NewManager(nil, 3)
	resumed, strategy, err := m.Recover(context.Background(), exec, wf, wfErr.StepID, execErr)
	require.NoError(t, err)
	assert.Equal(t, StrategyRetry, strategy.Kind)
	assert.True(t, resumed.StepResults["step-1"].Success)
	_ = ec
}
