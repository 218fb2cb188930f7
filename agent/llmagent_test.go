package agent

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/engine"
	"github.com/kadirpekel/substrate/llms"
	"github.com/kadirpekel/substrate/tools"
)

// fakeProvider returns a scripted sequence of responses, one per call to
// GenerateChatCompletion, and records the message history it was given.
type fakeProvider struct {
	responses []*llms.ModelResponse
	calls     int
	seen      [][]llms.ChatMessage
}

func (p *fakeProvider) GenerateChatCompletion(_ context.Context, messages []llms.ChatMessage, _ []llms.ToolDefinition, _ llms.Params) (*llms.ModelResponse, error) {
	p.seen = append(p.seen, messages)
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *fakeProvider) GenerateStream(context.Context, []llms.ChatMessage, llms.Params) (iter.Seq2[llms.StreamChunk, error], error) {
	return func(func(llms.StreamChunk, error) bool) {}, nil
}

func (p *fakeProvider) ModelID() string          { return "fake-model" }
func (p *fakeProvider) SupportsNativeTools() bool { return true }

func newTestEngine(provider *fakeProvider) *engine.Engine {
	return engine.NewEngine(provider, nil, tools.NewRegistry(), engine.NoopHooks(), nil, engine.DefaultConfig())
}

func TestLLMAgentExecuteReturnsFinalMessage(t *testing.T) {
	provider := &fakeProvider{responses: []*llms.ModelResponse{{Text: "hello there"}}}
	a := NewLLMAgent("a1", "desc", newTestEngine(provider))

	out, err := a.Execute(context.Background(), "hi", Context{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Text)
	assert.True(t, out.Terminated)
	assert.Nil(t, out.ToolCall)
}

func TestLLMAgentExecutePersistsSessionHistory(t *testing.T) {
	provider := &fakeProvider{responses: []*llms.ModelResponse{{Text: "first"}, {Text: "second"}}}
	a := NewLLMAgent("a1", "desc", newTestEngine(provider))

	_, err := a.Execute(context.Background(), "one", Context{SessionID: "s1"})
	require.NoError(t, err)
	_, err = a.Execute(context.Background(), "two", Context{SessionID: "s1"})
	require.NoError(t, err)

	require.Len(t, provider.seen, 2)
	// second call's history includes the first turn's user + assistant messages
	// plus the new user message.
	assert.GreaterOrEqual(t, len(provider.seen[1]), 3)
}

func TestLLMAgentExecuteUsesAgentIDWhenSessionIDEmpty(t *testing.T) {
	provider := &fakeProvider{responses: []*llms.ModelResponse{{Text: "ok"}}}
	a := NewLLMAgent("fallback-id", "desc", newTestEngine(provider))

	_, err := a.Execute(context.Background(), "hi", Context{})
	require.NoError(t, err)

	a.mu.Lock()
	_, ok := a.sessions["fallback-id"]
	a.mu.Unlock()
	assert.True(t, ok)
}

func TestLLMAgentExecuteWritesSessionStore(t *testing.T) {
	provider := &fakeProvider{responses: []*llms.ModelResponse{{Text: "hello"}}}
	a := NewLLMAgent("a1", "desc", newTestEngine(provider))
	a.Sessions = NewSessionStore(t.TempDir())

	_, err := a.Execute(context.Background(), "hi", Context{SessionID: "s1"})
	require.NoError(t, err)

	history, err := a.Sessions.LoadHistory("s1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 2)
}

func TestLLMAgentIDAndDescription(t *testing.T) {
	a := NewLLMAgent("a1", "does things", newTestEngine(&fakeProvider{responses: []*llms.ModelResponse{{Text: "x"}}}))
	assert.Equal(t, "a1", a.ID())
	assert.Equal(t, "does things", a.Description())
}
