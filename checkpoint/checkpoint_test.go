package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/workflow"
)

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ec := workflow.NewExecutionContext("wf-1")
	ec.StepResults["step-1"] = &workflow.StepResult{StepID: "step-1", Success: true, Output: "done"}

	c := &Checkpoint{ID: "cp-1", WorkflowID: "wf-1", LastStepID: "step-1", Context: ec}
	require.NoError(t, store.Save(context.Background(), c))

	loaded, err := store.Load(context.Background(), "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
	assert.Equal(t, "step-1", loaded.LastStepID)
	assert.True(t, loaded.Context.StepResults["step-1"].Success)
}

func TestFileStoreLatestForTracksMostRecentSave(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Checkpoint{ID: "cp-1", WorkflowID: "wf-1", LastStepID: "step-1", Context: workflow.NewExecutionContext("wf-1")}))
	require.NoError(t, store.Save(ctx, &Checkpoint{ID: "cp-2", WorkflowID: "wf-1", LastStepID: "step-2", Context: workflow.NewExecutionContext("wf-1")}))

	latest, err := store.LatestFor(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-2", latest.ID)
}

func TestFileStoreLatestForUnknownWorkflow(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.LatestFor(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestManagerWriteCheckpointAndRestore(t *testing.T) {
	store := NewFileStore(t.TempDir())
	mgr := NewManager(store)
	ctx := context.Background()

	ec := workflow.NewExecutionContext("wf-1")
	ec.StepResults["step-1"] = &workflow.StepResult{StepID: "step-1", Success: true}
	require.NoError(t, mgr.WriteCheckpoint(ctx, "wf-1", "step-1", ec))

	restored, lastStep, err := mgr.Restore(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "step-1", lastStep)
	assert.True(t, restored.StepResults["step-1"].Success)
}

func TestManagerSatisfiesWorkflowCheckpointer(t *testing.T) {
	var _ workflow.Checkpointer = (*Manager)(nil)
}
