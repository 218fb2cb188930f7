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

// Package llms defines the model-provider data model: chat messages, tool
// definitions and calls, structured responses, and the error taxonomy shared
// between model and tool layers.
package llms

import (
	"context"
	"fmt"
	"iter"

	"github.com/invopop/jsonschema"
)

// Role identifies the originator of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Well-known ModelResponse.Metadata keys, populated by providers that expose
// native structured-output features.
const (
	MetaFinishReason  = "finish_reason"
	MetaLogprobs      = "logprobs"
	MetaSafetyRatings = "safety_ratings"
	MetaModelVersion  = "model_version"
)

// ChatMessage is one turn in a conversation. Ordering is conversation order;
// history is append-only within an engine invocation.
type ChatMessage struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition describes a callable tool as surfaced to a model provider.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolCall is a model-requested invocation of a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string
}

// Usage reports token accounting for one model call. Invariant: when
// present, Total equals Input + Output.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ModelResponse is the result of one chat-completion call.
type ModelResponse struct {
	Text     string
	ModelID  string
	Usage    *Usage
	Metadata map[string]any
	ToolCalls []ToolCall
}

// StreamChunk is one delta of a streaming response. Chunks carry the delta
// only; consumers accumulate.
type StreamChunk struct {
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Done     bool
}

// ErrorKind is the shared error taxonomy for model and tool layers.
type ErrorKind string

const (
	ErrRequest            ErrorKind = "request"
	ErrSerialization      ErrorKind = "serialization"
	ErrModelResponse      ErrorKind = "model_response"
	ErrUnsupportedProvider ErrorKind = "unsupported_provider"
	ErrQuotaExceeded      ErrorKind = "quota_exceeded"
)

// ProviderError is a typed error carrying one of the ErrorKind values.
type ProviderError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Recoverable reports whether this error kind is worth retrying, per the
// provider-layer classification in §7 of the spec: quota and request errors
// are recoverable up to a retry budget; unsupported-provider/auth failures
// are fatal.
func (e *ProviderError) Recoverable() bool {
	switch e.Kind {
	case ErrRequest, ErrQuotaExceeded:
		return true
	default:
		return false
	}
}

// NewProviderError builds a ProviderError.
func NewProviderError(kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: err}
}

// Params are the recognized generation options (spec §6.1).
type Params struct {
	Temperature   *float32
	TopP          *float32
	MaxTokens     *uint32
	StopSequences []string
}

// Provider is the model-interface contract consumed by the orchestration
// engine (spec §6.1). Implementations exist for native function-calling
// providers (OpenAI, Anthropic) as well as any provider that only supports
// plain chat completion, in which case the engine falls back to prompt-based
// tool calling.
type Provider interface {
	// GenerateChatCompletion sends the full message history plus an optional
	// tool catalog and returns either a terminal response or tool calls.
	GenerateChatCompletion(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, params Params) (*ModelResponse, error)

	// GenerateStream streams deltas for a plain (non-tool) completion.
	GenerateStream(ctx context.Context, messages []ChatMessage, params Params) (iter.Seq2[StreamChunk, error], error)

	// ModelID reports the identifier of the underlying model.
	ModelID() string

	// SupportsNativeTools reports whether GenerateChatCompletion honors the
	// tools argument with structured function-calling, vs. ignoring it (in
	// which case the engine must use the prompt-emulated fallback).
	SupportsNativeTools() bool
}

// ConvertToolInfoToDefinition adapts a name, description and JSON schema
// into a ToolDefinition, matching the teacher's
// pkg/llms/types.go helper of the same name.
func ConvertToolInfoToDefinition(name, description string, schema *jsonschema.Schema) ToolDefinition {
	return ToolDefinition{Name: name, Description: description, Parameters: schema}
}
