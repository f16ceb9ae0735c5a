package parley

import "context"

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript. The transcript is
// append-only: assistant messages may carry tool calls, and each such message
// is answered by exactly one RoleTool message whose Results match the calls
// in cardinality and order.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall   // set on assistant messages that request tools
	Results   []ToolResult // set on tool messages answering the previous assistant turn
}

// ModelTurn is one model response: either a final answer (no tool calls) or a
// batch of tool calls to execute, possibly alongside partial text.
type ModelTurn struct {
	Text      string
	ToolCalls []ToolCall
}

// Final reports whether the turn is a final answer with no pending tool work.
func (t ModelTurn) Final() bool { return len(t.ToolCalls) == 0 }

// ModelBackend is the language-model boundary. Implementations convert the
// transcript and tool specs into a provider request and parse the response
// into a ModelTurn. Errors are loop-fatal after retries; wrap rate limits and
// other temporary conditions in TransientError to opt into retrying.
type ModelBackend interface {
	Converse(ctx context.Context, transcript []Message, tools []ToolSpec) (ModelTurn, error)
}
