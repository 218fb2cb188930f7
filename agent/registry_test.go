package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	id   string
	desc string
}

func (s *stubAgent) ID() string          { return s.id }
func (s *stubAgent) Description() string { return s.desc }
func (s *stubAgent) Execute(_ context.Context, input string, _ Context) (Output, error) {
	return Output{Text: input}, nil
}

func TestRegisterReportsNewVsReplace(t *testing.T) {
	r := NewRegistry()
	isNew := r.Register(&stubAgent{id: "a1", desc: "first"})
	assert.True(t, isNew)

	isNew = r.Register(&stubAgent{id: "a1", desc: "second"})
	assert.False(t, isNew)

	got, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "second", got.Description())
}

func TestRegistryListIsInsertionOrdered(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "c"})
	r.Register(&stubAgent{id: "a"})
	r.Register(&stubAgent{id: "b"})

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAgent{id: "a1"})
	assert.True(t, r.Unregister("a1"))
	assert.False(t, r.Unregister("a1"))
	assert.Equal(t, 0, r.Count())
}

func TestIsRegistered(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsRegistered("missing"))
	r.Register(&stubAgent{id: "a1"})
	assert.True(t, r.IsRegistered("a1"))
}
