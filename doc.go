// Package parley is a question-answering agent core built around parallel
// tool orchestration: a language model decides which registered tools to
// invoke, possibly several at once, and parley executes them concurrently,
// collects results (including partial failures), and feeds them back to the
// model until it produces a final answer.
//
// # Overview
//
// The model emits tool calls as JSON. This package turns that JSON into
// concrete Go function calls: unmarshal → validate (against the same schema
// shown to the model) → execute with a timeout → collect a ToolResult. A
// Dispatcher runs a whole batch of calls in parallel with bulkhead isolation
// (one failure never cancels siblings) and reports lifecycle events to an
// optional Broadcaster so an observer (e.g. a chat UI over WebSocket) can show
// live progress.
//
// Pipeline: question → Agent.Ask → ModelBackend.Converse → tool calls →
// Dispatcher.Dispatch (→ status events) → tool results appended to the
// transcript → Converse again → final Answer.
//
// # Key concepts
//
//   - Positional correspondence: Dispatch returns one ToolResult per ToolCall,
//     in the input order, even though completion order is nondeterministic.
//   - Partial success: a failing tool becomes data for the model, not an error
//     for the caller; only model-backend failures abort a session.
//   - Self-correction: ClientError carries human-readable validation messages
//     back to the model so it can retry with corrected arguments.
//
// See Tool, ToolCall, ToolResult for the core types, Registry and Dispatcher
// for execution, and Agent for the conversation loop.
package parley
