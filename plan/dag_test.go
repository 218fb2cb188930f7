package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearManifest() *Manifest {
	m := NewManifest("REQ-001", "Test Project")
	it := &Iteration{ID: "I1", Number: 1, Name: "Iteration 1"}
	t1 := &Task{ID: "I1.T1", IterationID: "I1", Title: "Task 1"}
	t2 := &Task{ID: "I1.T2", IterationID: "I1", Title: "Task 2", Dependencies: []string{"I1.T1"}}
	t3 := &Task{ID: "I1.T3", IterationID: "I1", Title: "Task 3", Dependencies: []string{"I1.T2"}}
	it.Tasks = append(it.Tasks, t1, t2, t3)
	m.AddIteration(it)
	return m
}

func diamondManifest() *Manifest {
	m := NewManifest("REQ-001", "Test Project")
	it := &Iteration{ID: "I1", Number: 1, Name: "Iteration 1"}
	t1 := &Task{ID: "I1.T1", IterationID: "I1", Title: "Task 1"}
	t2 := &Task{ID: "I1.T2", IterationID: "I1", Title: "Task 2", Dependencies: []string{"I1.T1"}}
	t3 := &Task{ID: "I1.T3", IterationID: "I1", Title: "Task 3", Dependencies: []string{"I1.T1"}}
	t4 := &Task{ID: "I1.T4", IterationID: "I1", Title: "Task 4", Dependencies: []string{"I1.T2", "I1.T3"}}
	it.Tasks = append(it.Tasks, t1, t2, t3, t4)
	m.AddIteration(it)
	return m
}

// TestLinearPlan is the literal spec §8 scenario 1.
func TestLinearPlan(t *testing.T) {
	dag, err := BuildDAG(linearManifest())
	require.NoError(t, err)

	sorted, err := dag.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"I1.T1", "I1.T2", "I1.T3"}, sorted)

	levels := dag.CalculateExecutionLevels()
	assert.Equal(t, 0, levels["I1.T1"])
	assert.Equal(t, 1, levels["I1.T2"])
	assert.Equal(t, 2, levels["I1.T3"])
}

// TestDiamondPlan is the literal spec §8 scenario 2.
func TestDiamondPlan(t *testing.T) {
	dag, err := BuildDAG(diamondManifest())
	require.NoError(t, err)

	levels := dag.CalculateExecutionLevels()
	assert.Equal(t, 0, levels["I1.T1"])
	assert.Equal(t, 1, levels["I1.T2"])
	assert.Equal(t, 1, levels["I1.T3"])
	assert.Equal(t, 2, levels["I1.T4"])

	assert.ElementsMatch(t, []string{"I1.T2", "I1.T3"}, dag.GetTasksAtLevel(1))
}

// TestCycleDetection is the literal spec §8 scenario 3.
func TestCycleDetection(t *testing.T) {
	m := NewManifest("REQ-001", "Test Project")
	it := &Iteration{ID: "I1", Number: 1, Name: "Iteration 1"}
	t1 := &Task{ID: "I1.T1", IterationID: "I1", Title: "Task 1", Dependencies: []string{"I1.T3"}}
	t2 := &Task{ID: "I1.T2", IterationID: "I1", Title: "Task 2", Dependencies: []string{"I1.T1"}}
	t3 := &Task{ID: "I1.T3", IterationID: "I1", Title: "Task 3", Dependencies: []string{"I1.T2"}}
	it.Tasks = append(it.Tasks, t1, t2, t3)
	m.AddIteration(it)

	_, err := BuildDAG(m)
	require.Error(t, err)
	var dagErr *DagError
	require.ErrorAs(t, err, &dagErr)
	assert.Equal(t, DagCycleDetected, dagErr.Kind)
}

func TestDependencyNotFound(t *testing.T) {
	m := NewManifest("REQ-001", "Test Project")
	it := &Iteration{ID: "I1", Number: 1, Name: "Iteration 1"}
	t1 := &Task{ID: "I1.T1", IterationID: "I1", Title: "Task 1", Dependencies: []string{"I5.T1"}}
	it.Tasks = append(it.Tasks, t1)
	m.AddIteration(it)

	_, err := BuildDAG(m)
	require.Error(t, err)
	var dagErr *DagError
	require.ErrorAs(t, err, &dagErr)
	assert.Equal(t, DagDependencyNotFound, dagErr.Kind)
}

func TestEmptyManifest(t *testing.T) {
	m := NewManifest("REQ-001", "Empty Project")
	dag, err := BuildDAG(m)
	require.NoError(t, err)
	assert.Equal(t, 0, dag.NodeCount())

	sorted, err := dag.TopologicalSort()
	require.NoError(t, err)
	assert.Empty(t, sorted)
}

func TestSelfReference(t *testing.T) {
	m := NewManifest("REQ-001", "Self Ref Project")
	it := &Iteration{ID: "I1", Number: 1, Name: "Iteration 1"}
	t1 := &Task{ID: "I1.T1", IterationID: "I1", Title: "Task 1", Dependencies: []string{"I1.T1"}}
	it.Tasks = append(it.Tasks, t1)
	m.AddIteration(it)

	_, err := BuildDAG(m)
	require.Error(t, err)
	var dagErr *DagError
	require.ErrorAs(t, err, &dagErr)
	assert.Equal(t, DagCycleDetected, dagErr.Kind)
}
