package engine

import "context"

// HookDecision is what a before-tool hook returns for a pending tool call.
type HookDecision int

const (
	// Approve proceeds with the call as-is.
	Approve HookDecision = iota
	// Modify substitutes the arguments with ModifiedArgs and proceeds.
	Modify
	// Deny synthesizes a denial result without executing the tool.
	Deny
	// Ask emits ApprovalRequested and awaits ApprovalResolved, defaulting to
	// deny on timeout.
	Ask
)

// BeforeToolResult is returned by a BeforeToolHook.
type BeforeToolResult struct {
	Decision      HookDecision
	ModifiedArgs  map[string]any
	DenialMessage string
}

// BeforeToolHook may approve, deny, modify, or defer-to-approval a pending
// tool call.
type BeforeToolHook func(ctx context.Context, call ToolCallRequest) BeforeToolResult

// AfterToolHook may transform a tool's result or record telemetry. It is
// purely observational with respect to control flow: returning a different
// value changes what the model sees, but it cannot retroactively deny the
// call.
type AfterToolHook func(ctx context.Context, call ToolCallRequest, result ToolResult) ToolResult

// ToolCallRequest mirrors llms.ToolCall with the invocation id guaranteed
// present.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult carries the outcome of one tool invocation.
type ToolResult struct {
	InvocationID string
	Success      bool
	Value        any
	ErrorText    string
}

// Hooks bundles the before/after hook pair plus the approval-wait timeout.
type Hooks struct {
	Before         BeforeToolHook
	After          AfterToolHook
	ApprovalTimeout func() (timeoutSeconds int)
}

// NoopHooks approves every call and passes results through unchanged.
func NoopHooks() Hooks {
	return Hooks{
		Before: func(_ context.Context, _ ToolCallRequest) BeforeToolResult {
			return BeforeToolResult{Decision: Approve}
		},
		After: func(_ context.Context, _ ToolCallRequest, r ToolResult) ToolResult { return r },
	}
}
