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

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider over the official Anthropic SDK,
// extracting system messages to the dedicated system field Claude-style
// (spec §4.2 dual path).
type AnthropicProvider struct {
	client    *sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider constructs a provider for model.
func NewAnthropicProvider(apiKey, model string, maxTokens int64) *AnthropicProvider {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{client: &c, model: model, maxTokens: maxTokens}
}

func (p *AnthropicProvider) ModelID() string          { return p.model }
func (p *AnthropicProvider) SupportsNativeTools() bool { return true }

func (p *AnthropicProvider) GenerateChatCompletion(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, params Params) (*ModelResponse, error) {
	msgs, system := splitSystemMessages(messages)
	maxTokens := p.maxTokens
	if params.MaxTokens != nil {
		maxTokens = int64(*params.MaxTokens)
	}

	req := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		req.System = system
	}
	if params.Temperature != nil {
		req.Temperature = sdk.Float(float64(*params.Temperature))
	}
	if len(tools) > 0 {
		req.Tools = toAnthropicTools(tools)
	}

	msg, err := p.client.Messages.New(ctx, req)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	return translateAnthropicResponse(msg), nil
}

func (p *AnthropicProvider) GenerateStream(ctx context.Context, messages []ChatMessage, params Params) (iter.Seq2[StreamChunk, error], error) {
	msgs, system := splitSystemMessages(messages)
	maxTokens := p.maxTokens
	if params.MaxTokens != nil {
		maxTokens = int64(*params.MaxTokens)
	}
	req := sdk.MessageNewParams{Model: sdk.Model(p.model), MaxTokens: maxTokens, Messages: msgs}
	if len(system) > 0 {
		req.System = system
	}
	stream := p.client.Messages.NewStreaming(ctx, req)

	return func(yield func(StreamChunk, error) bool) {
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
				if textDelta, ok := delta.Delta.AsAny().(sdk.TextDelta); ok {
					if !yield(StreamChunk{Text: textDelta.Text}, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamChunk{}, err)
		}
	}, nil
}

func splitSystemMessages(messages []ChatMessage) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	var out []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out, system
}

func toAnthropicTools(tools []ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema sdk.ToolInputSchemaParam
		if t.Parameters != nil {
			if data, err := json.Marshal(t.Parameters); err == nil {
				var m map[string]any
				if json.Unmarshal(data, &m) == nil {
					schema = sdk.ToolInputSchemaParam{ExtraFields: m}
				}
			}
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out
}

func translateAnthropicResponse(msg *sdk.Message) *ModelResponse {
	resp := &ModelResponse{ModelID: string(msg.Model)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal(block.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Usage = &Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	resp.Metadata = map[string]any{MetaFinishReason: string(msg.StopReason)}
	return resp
}

func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return NewProviderError(ErrQuotaExceeded, "rate limited", err)
		case 401, 403:
			return NewProviderError(ErrUnsupportedProvider, "auth failure", err)
		}
	}
	return NewProviderError(ErrRequest, "anthropic request failed", err)
}
