package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters:  schemaFor(struct{}{}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	}
}

func TestRegisterRejectsEmptyNameOrNilHandler(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{Name: "", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }})
	require.Error(t, err)

	err = r.Register(Tool{Name: "x"})
	require.Error(t, err)
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestInvokeUnregisteredToolErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestInvokeRunsHandler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	result, err := r.Invoke(context.Background(), "echo", map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "b"}, result)
}

func TestDefinitionsIncludesEveryRegisteredTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))
	require.NoError(t, r.Register(echoTool("b")))
	defs := r.Definitions()
	assert.Len(t, defs, 2)
}
