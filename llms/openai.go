// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"context"
	"encoding/json"
	"errors"
	"iter"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider over the official OpenAI SDK,
// inlining system messages OpenAI-style (spec §4.2 dual path).
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider constructs a provider for model, pointed at the default
// OpenAI endpoint unless baseURL overrides it.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) ModelID() string          { return p.model }
func (p *OpenAIProvider) SupportsNativeTools() bool { return true }

func (p *OpenAIProvider) GenerateChatCompletion(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, params Params) (*ModelResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = int(*params.MaxTokens)
	}
	if len(params.StopSequences) > 0 {
		req.Stop = params.StopSequences
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(ErrModelResponse, "no choices returned", nil)
	}
	choice := resp.Choices[0]

	mr := &ModelResponse{
		Text:    choice.Message.Content,
		ModelID: resp.Model,
		Usage: &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Metadata: map[string]any{MetaFinishReason: string(choice.FinishReason)},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		mr.ToolCalls = append(mr.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			RawArgs:   tc.Function.Arguments,
		})
	}
	return mr, nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, messages []ChatMessage, params Params) (iter.Seq2[StreamChunk, error], error) {
	req := openai.ChatCompletionRequest{Model: p.model, Messages: toOpenAIMessages(messages), Stream: true}
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	return func(yield func(StreamChunk, error) bool) {
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, context.Canceled) || err != nil && err.Error() == "EOF" {
				return
			}
			if err != nil {
				yield(StreamChunk{}, err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !yield(StreamChunk{Text: resp.Choices[0].Delta.Content}, nil) {
				return
			}
		}
	}, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if t.Parameters != nil {
			if data, err := json.Marshal(t.Parameters); err == nil {
				_ = json.Unmarshal(data, &schemaMap)
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap,
			},
		})
	}
	return out
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return NewProviderError(ErrQuotaExceeded, "rate limited", err)
		case 401, 403:
			return NewProviderError(ErrUnsupportedProvider, "auth failure", err)
		}
	}
	return NewProviderError(ErrRequest, "openai request failed", err)
}
