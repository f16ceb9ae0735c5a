package parley

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Dispatcher executes a batch of tool calls (everything the model requested
// in a single turn) concurrently, with bulkhead isolation: one call's
// failure or timeout never cancels or delays its siblings beyond the join.
// Lifecycle events go to the sink as each call starts and resolves.
type Dispatcher struct {
	reg  *Registry
	sink StatusSink
}

// NewDispatcher creates a Dispatcher over the given registry. A nil sink
// disables status events.
func NewDispatcher(reg *Registry, sink StatusSink) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	return &Dispatcher{reg: reg, sink: sink}
}

// Dispatch runs all calls in parallel and returns one ToolResult per call, in
// the same positional order as the input. Completion order is
// nondeterministic; the positional contract is what keeps the conversation
// transcript deterministic. The batch always runs to the join: there is no
// early exit on first failure, and duplicate tool names are dispatched
// independently.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall) []ToolResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			d.sink.Publish(StatusEvent{
				Kind:     StatusStarted,
				ToolName: call.ToolName,
				CallID:   call.ID,
				Message:  d.describe(call),
			})
			res := d.reg.Execute(ctx, call)
			results[i] = res
			d.sink.Publish(terminalEvent(res))
		})
	}
	wg.Wait()
	return results
}

// describe builds the Started message: the tool's own per-invocation
// description when available, a generic line otherwise.
func (d *Dispatcher) describe(call ToolCall) string {
	if t, ok := d.reg.GetTool(call.ToolName); ok {
		if desc, ok := t.(Describer); ok {
			return desc.Describe(call.Args)
		}
	}
	return "running " + call.ToolName
}

func terminalEvent(res ToolResult) StatusEvent {
	if res.Failed() {
		return StatusEvent{
			Kind:     StatusFailed,
			ToolName: res.ToolName,
			CallID:   res.CallID,
			Message:  sanitizeError(res.Error),
		}
	}
	return StatusEvent{
		Kind:     StatusCompleted,
		ToolName: res.ToolName,
		CallID:   res.CallID,
		Message:  fmt.Sprintf("completed in %s", res.Duration.Round(time.Millisecond)),
		Payload:  res.Result,
	}
}
