package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/kadirpekel/substrate/llms"
)

// PromptFallbackProvider wraps a provider that lacks native function-calling
// support, instructing it via a prompt preamble listing the tool catalog
// and parsing a tool call from a fenced JSON block in the reply. Only that
// JSON form is recognised; there is no Markdown-heuristic parse.
type PromptFallbackProvider struct {
	underlying llms.Provider
}

// NewPromptFallbackProvider builds the fallback wrapper.
func NewPromptFallbackProvider(underlying llms.Provider) *PromptFallbackProvider {
	return &PromptFallbackProvider{underlying: underlying}
}

func (p *PromptFallbackProvider) ModelID() string        { return p.underlying.ModelID() }
func (p *PromptFallbackProvider) SupportsNativeTools() bool { return false }

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type promptToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// GenerateChatCompletion renders a tool-catalog preamble as a system
// message, invokes the underlying plain-chat provider, and parses any
// fenced tool-call block out of the reply.
func (p *PromptFallbackProvider) GenerateChatCompletion(ctx context.Context, messages []llms.ChatMessage, tools []llms.ToolDefinition, params llms.Params) (*llms.ModelResponse, error) {
	augmented := messages
	if len(tools) > 0 {
		augmented = append([]llms.ChatMessage{{Role: llms.RoleSystem, Content: renderToolPreamble(tools)}}, messages...)
	}

	resp, err := p.underlying.GenerateChatCompletion(ctx, augmented, nil, params)
	if err != nil {
		return nil, err
	}

	call, rest, ok := parseFencedToolCall(resp.Text)
	if !ok {
		return resp, nil
	}

	return &llms.ModelResponse{
		Text:      rest,
		ModelID:   resp.ModelID,
		Usage:     resp.Usage,
		Metadata:  resp.Metadata,
		ToolCalls: []llms.ToolCall{{ID: fmt.Sprintf("call_%d", len(resp.Text)), Name: call.Tool, Arguments: call.Args}},
	}, nil
}

func (p *PromptFallbackProvider) GenerateStream(ctx context.Context, messages []llms.ChatMessage, params llms.Params) (iter.Seq2[llms.StreamChunk, error], error) {
	return p.underlying.GenerateStream(ctx, messages, params)
}

func renderToolPreamble(tools []llms.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You have access to the following tools. To call one, reply with a single fenced JSON block of the form:\n")
	b.WriteString("```json\n{\"tool\": \"<name>\", \"args\": {...}}\n```\n\nAvailable tools:\n")
	for _, t := range tools {
		b.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
	}
	return b.String()
}

// parseFencedToolCall extracts a {"tool":...,"args":...} object from a
// fenced block in text. It makes a single strict JSON pass over the first
// fenced block; a block that is not valid JSON, or names no tool, leaves
// the text unparsed and no Markdown-heuristic pass follows.
func parseFencedToolCall(text string) (promptToolCall, string, bool) {
	loc := fencedBlockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return promptToolCall{}, text, false
	}
	raw := text[loc[2]:loc[3]]
	var call promptToolCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil || call.Tool == "" {
		return promptToolCall{}, text, false
	}
	rest := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return call, rest, true
}
