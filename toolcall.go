package parley

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Tool is the contract for an LLM-callable instrument.
// It is provider-agnostic (no knowledge of OpenAI, Anthropic, etc.).
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a valid JSON Schema as map (compatible with LLM tool definitions).
	Parameters() map[string]any
	// Execute runs the tool with raw JSON arguments and returns the JSON result.
	// Argument validation happens inside Execute; invalid input is reported as
	// a ClientError so the model can correct itself.
	Execute(ctx context.Context, argsJSON []byte) ([]byte, error)
}

// ToolMetadata is implemented by tools created with NewTool, NewFuncTool, or
// NewDynamicTool and provides optional per-tool settings. Registry uses
// Timeout() to override the default execution timeout when set. Other methods
// expose tags, version, and dangerous flag for orchestration or discovery.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
	Version() string
	IsDangerous() bool
}

// Describer is optionally implemented by tools that can summarize what a
// specific invocation is about to do (e.g. "searching the web for: HIIT
// research"). The Dispatcher uses it for the Started status event message.
type Describer interface {
	Describe(argsJSON []byte) string
}

// ToolCall is a single execution request (as produced by the LLM).
// IDs are unique within one model turn; the same tool name may appear more
// than once in a batch with different arguments.
type ToolCall struct {
	ID       string
	ToolName string
	Args     json.RawMessage // JSON payload of arguments
}

// ToolSpec is the provider-facing description of a registered tool: what the
// model sees when deciding which tools to call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// ToolResult is the outcome of one tool invocation. Exactly one of Result or
// Error is meaningful: Error == nil means success and Result holds the JSON
// payload. Results are immutable once produced and keep a positional
// back-reference to their ToolCall via CallID.
type ToolResult struct {
	CallID   string
	ToolName string
	Result   json.RawMessage
	Error    error
	Duration time.Duration
}

// Failed reports whether the invocation ended in a failure of any kind
// (validation, handler error, panic, timeout).
func (r ToolResult) Failed() bool { return r.Error != nil }

// TimedOut reports whether the failure was the per-call timeout.
func (r ToolResult) TimedOut() bool { return errors.Is(r.Error, ErrTimeout) }

// ModelText renders the result as text safe to feed back to the model.
// Success returns the raw JSON payload; failures return a sanitized message
// (ClientError reasons pass through, system errors never leak internals).
func (r ToolResult) ModelText() string {
	if r.Error == nil {
		return string(r.Result)
	}
	return sanitizeError(r.Error)
}

// sanitizeError converts an execution error into model-visible text.
// ClientError reasons are intended for the model; everything else gets a
// generic message so stack traces and internal detail never reach the prompt.
func sanitizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "tool execution timed out"
	case errors.Is(err, ErrToolNotFound):
		return "unknown tool"
	case IsClientError(err):
		return err.Error()
	default:
		return "tool execution failed"
	}
}
