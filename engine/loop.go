package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/substrate/llms"
	"github.com/kadirpekel/substrate/tools"
)

// FinishReason is the cause of an engine loop's termination (spec §4.2).
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishMaxIterations FinishReason = "max_iterations"
	FinishTimeout       FinishReason = "timeout"
	FinishError         FinishReason = "error"
	FinishCancelled     FinishReason = "cancelled"
)

// Config configures an Engine.
type Config struct {
	MaxIterations     int
	OverallTimeout    time.Duration
	ApprovalTimeout   time.Duration
	FallbackOnToolErr bool
}

// DefaultConfig mirrors common teacher defaults (bounded iteration, a
// generous overall timeout, and a short approval wait).
func DefaultConfig() Config {
	return Config{
		MaxIterations:     25,
		OverallTimeout:    5 * time.Minute,
		ApprovalTimeout:   30 * time.Second,
		FallbackOnToolErr: true,
	}
}

// Result is the outcome of one Engine.Execute call.
type Result struct {
	FinalMessage string
	FinishReason FinishReason
	ToolCalls    []ToolCallRequest
	Iterations   int
}

// Engine is the iterative model-invocation loop (spec §4.2). Primary is the
// provider used first; if it does not support native tool calling (or, when
// FallbackOnToolErr is set, if it returns a function-calling-related
// error), Fallback — a prompt-emulated provider wrapping the same
// underlying model — takes over for the remainder of the invocation.
type Engine struct {
	Primary  llms.Provider
	Fallback llms.Provider
	Tools    *tools.Registry
	Hooks    Hooks
	Bus      *Bus
	Config   Config

	approvals *approvalWaiter
}

// NewEngine constructs an Engine. If primary does not support native tools
// and no explicit fallback is given, a prompt-based fallback wrapping
// primary is installed automatically (spec §4.2 dual path).
func NewEngine(primary llms.Provider, fallback llms.Provider, toolRegistry *tools.Registry, hooks Hooks, bus *Bus, cfg Config) *Engine {
	if fallback == nil && !primary.SupportsNativeTools() {
		fallback = NewPromptFallbackProvider(primary)
	}
	return &Engine{
		Primary:   primary,
		Fallback:  fallback,
		Tools:     toolRegistry,
		Hooks:     hooks,
		Bus:       bus,
		Config:    cfg,
		approvals: newApprovalWaiter(),
	}
}

func (e *Engine) publish(ev Event) {
	if e.Bus != nil {
		e.Bus.Publish(ev)
	}
}

// Execute appends input as a user message to octx and runs the loop until
// termination, returning the final assistant message plus the tool calls
// issued.
func (e *Engine) Execute(ctx context.Context, input string, octx *OrchestrationContext) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Config.OverallTimeout)
	defer cancel()

	e.publish(Event{Kind: EventStarted})
	octx.Append(llms.ChatMessage{Role: llms.RoleUser, Content: input})

	provider := e.Primary
	usedFallback := false
	if !e.Primary.SupportsNativeTools() && e.Fallback != nil {
		provider = e.Fallback
		usedFallback = true
	}
	result := &Result{}

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			reason := FinishTimeout
			if errors.Is(err, context.Canceled) {
				reason = FinishCancelled
			}
			result.FinishReason = reason
			e.publish(Event{Kind: EventCompleted, FinishReason: reason})
			return result, nil
		}

		e.publish(Event{Kind: EventProgress, Iteration: iteration, Total: e.Config.MaxIterations})

		resp, err := provider.GenerateChatCompletion(ctx, octx.Snapshot(), e.Tools.Definitions(), llms.Params{})
		if err != nil {
			if !usedFallback && e.Config.FallbackOnToolErr && e.Fallback != nil && isFunctionCallingError(err) {
				provider = e.Fallback
				usedFallback = true
				continue
			}
			result.FinishReason = FinishError
			e.publish(Event{Kind: EventFailed, Error: err})
			return result, fmt.Errorf("engine: model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalMessage = resp.Text
			result.FinishReason = FinishStop
			result.Iterations = iteration + 1
			octx.Append(llms.ChatMessage{Role: llms.RoleAssistant, Content: resp.Text})
			e.publish(Event{Kind: EventAssistantMessage, Text: resp.Text})
			e.publish(Event{Kind: EventCompleted, FinishReason: FinishStop})
			return result, nil
		}

		octx.Append(llms.ChatMessage{Role: llms.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			req := ToolCallRequest{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
			result.ToolCalls = append(result.ToolCalls, req)
			tr := e.runToolCall(ctx, req)
			octx.Append(llms.ChatMessage{
				Role:       llms.RoleTool,
				Content:    renderToolResult(tr),
				ToolCallID: tr.InvocationID,
				Name:       req.Name,
			})
		}

		if iteration+1 >= e.Config.MaxIterations {
			result.FinalMessage = resp.Text
			result.FinishReason = FinishMaxIterations
			result.Iterations = iteration + 1
			e.publish(Event{Kind: EventCompleted, FinishReason: FinishMaxIterations})
			return result, nil
		}
	}
}

func (e *Engine) runToolCall(ctx context.Context, req ToolCallRequest) ToolResult {
	e.publish(Event{Kind: EventToolCallStarted, ToolCallID: req.ID, ToolName: req.Name, ToolArgs: req.Arguments})

	decision := e.Hooks.Before(ctx, req)
	args := req.Arguments
	var tr ToolResult
	tr.InvocationID = req.ID

	switch decision.Decision {
	case Deny:
		tr.Success = false
		tr.ErrorText = decision.DenialMessage
		if tr.ErrorText == "" {
			tr.ErrorText = "tool call denied"
		}
	case Modify:
		if decision.ModifiedArgs != nil {
			args = decision.ModifiedArgs
		}
		tr = e.invokeTool(ctx, req, args)
	case Ask:
		timeout := e.Config.ApprovalTimeout
		if e.Hooks.ApprovalTimeout != nil {
			if s := e.Hooks.ApprovalTimeout(); s > 0 {
				timeout = time.Duration(s) * time.Second
			}
		}
		e.publish(Event{Kind: EventApprovalRequested, ToolCallID: req.ID, ToolName: req.Name, ToolArgs: req.Arguments})
		ch := e.approvals.register(req.ID)
		approved := false
		select {
		case approved = <-ch:
		case <-time.After(timeout):
			e.approvals.cleanup(req.ID)
			approved = false // default deny on timeout
		}
		e.publish(Event{Kind: EventApprovalResolved, ToolCallID: req.ID, Approved: approved})
		if approved {
			tr = e.invokeTool(ctx, req, args)
		} else {
			tr.Success = false
			tr.ErrorText = "approval denied or timed out"
		}
	default: // Approve
		tr = e.invokeTool(ctx, req, args)
	}

	tr = e.Hooks.After(ctx, req, tr)
	e.publish(Event{Kind: EventToolCallCompleted, ToolCallID: req.ID, ToolName: req.Name, Success: tr.Success})
	return tr
}

// ResolveApproval delivers an external ApprovalResolved decision for a
// pending "ask" tool call.
func (e *Engine) ResolveApproval(toolCallID string, approved bool) {
	e.approvals.Resolve(toolCallID, approved)
}

func (e *Engine) invokeTool(ctx context.Context, req ToolCallRequest, args map[string]any) ToolResult {
	value, err := e.Tools.Invoke(ctx, req.Name, args)
	if err != nil {
		// A tool failure does not terminate the loop; its error text is fed
		// back as the tool result for the model to react to.
		return ToolResult{InvocationID: req.ID, Success: false, ErrorText: err.Error()}
	}
	return ToolResult{InvocationID: req.ID, Success: true, Value: value}
}

func renderToolResult(tr ToolResult) string {
	if !tr.Success {
		return fmt.Sprintf("error: %s", tr.ErrorText)
	}
	return fmt.Sprintf("%v", tr.Value)
}

func isFunctionCallingError(err error) bool {
	var perr *llms.ProviderError
	if errors.As(err, &perr) {
		return perr.Kind == llms.ErrUnsupportedProvider
	}
	return false
}
