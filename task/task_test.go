package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMarshalsInputAndStartsPending(t *testing.T) {
	tk, err := New("t1", "name", "desc", "agent-1", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, StatePending, tk.State)
	assert.Nil(t, tk.Result)
	assert.JSONEq(t, `{"k":"v"}`, string(tk.Input))
}

func TestInputStringUnwrapsBareString(t *testing.T) {
	tk, err := New("t1", "name", "", "agent-1", "hello")
	require.NoError(t, err)
	s, err := tk.InputString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestInputStringRendersStructuredValueAsJSON(t *testing.T) {
	tk, err := New("t1", "name", "", "agent-1", map[string]any{"a": 1})
	require.NoError(t, err)
	s, err := tk.InputString()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, s)
}

func TestCompleteSetsSuccessResult(t *testing.T) {
	tk, _ := New("t1", "name", "", "agent-1", "x")
	tk.Complete("done")
	assert.Equal(t, StateCompleted, tk.State)
	require.NotNil(t, tk.Result)
	assert.True(t, tk.Result.Success)
	assert.Equal(t, "done", tk.Result.Output)
}

func TestFailSetsErrorResult(t *testing.T) {
	tk, _ := New("t1", "name", "", "agent-1", "x")
	tk.Fail("boom")
	assert.Equal(t, StateFailed, tk.State)
	require.NotNil(t, tk.Result)
	assert.False(t, tk.Result.Success)
	assert.Equal(t, "boom", tk.Result.Error)
}

func TestMemStoreGetPutList(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get("missing")
	require.Error(t, err)
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)

	tk, _ := New("t1", "name", "", "agent-1", "x")
	require.NoError(t, s.Put(tk))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, tk, got)

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
