// Package anthropic adapts the Anthropic Messages API to parley.ModelBackend.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/parley-ai/parley"
)

// DefaultModel is used when no model is configured.
const DefaultModel = sdk.Model("claude-sonnet-4-0")

// DefaultMaxTokens bounds the response size when not configured.
const DefaultMaxTokens = 4096

// Backend implements parley.ModelBackend over the Anthropic Messages API.
type Backend struct {
	client    sdk.Client
	model     sdk.Model
	maxTokens int64
	system    string
}

// Option configures a Backend.
type Option func(*Backend)

// WithModel selects the model to converse with.
func WithModel(model string) Option {
	return func(b *Backend) {
		if model != "" {
			b.model = sdk.Model(model)
		}
	}
}

// WithMaxTokens sets the per-response token budget.
func WithMaxTokens(n int64) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(prompt string) Option {
	return func(b *Backend) { b.system = prompt }
}

// WithRequestOptions passes options through to the underlying SDK client
// (base URL, HTTP client, etc.). Must come before other Options that rely on
// the client; in practice just list it first.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(b *Backend) { b.client = sdk.NewClient(opts...) }
}

// New creates a Backend authenticated with the given API key.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	b := &Backend{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Converse sends the transcript and tool specs and parses the response into a
// ModelTurn. Retryable provider failures (rate limits, overload, 5xx) are
// wrapped in parley.TransientError so the conversation loop can back off and
// retry; everything else is returned as-is and fails the session.
func (b *Backend) Converse(ctx context.Context, transcript []parley.Message, tools []parley.ToolSpec) (parley.ModelTurn, error) {
	params := sdk.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		Messages:  transformMessages(transcript),
		Tools:     transformTools(tools),
	}
	if b.system != "" {
		params.System = []sdk.TextBlockParam{{Text: b.system}}
	}
	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return parley.ModelTurn{}, classifyError(err)
	}
	return parseTurn(msg), nil
}

// transformMessages converts the provider-neutral transcript into Anthropic
// message params. Tool results travel as user-role tool_result blocks, per the
// Messages API shape.
func transformMessages(transcript []parley.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case parley.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case parley.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, call.Args, call.ToolName))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case parley.RoleTool:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Results))
			for _, res := range m.Results {
				blocks = append(blocks, sdk.NewToolResultBlock(res.CallID, res.ModelText(), res.Failed()))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}

// transformTools converts registry specs into Anthropic tool params.
func transformTools(tools []parley.ToolSpec) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		tp := sdk.ToolParam{
			Name:        spec.Name,
			Description: sdk.String(spec.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: spec.Parameters["properties"],
				Required:   requiredList(spec.Parameters),
			},
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &tp})
	}
	return out
}

func requiredList(schema map[string]any) []string {
	raw, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// parseTurn flattens the response content blocks into a ModelTurn: text blocks
// concatenate, tool_use blocks become ToolCalls in response order.
func parseTurn(msg *sdk.Message) parley.ModelTurn {
	var turn parley.ModelTurn
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			turn.Text += b.Text
		case sdk.ToolUseBlock:
			turn.ToolCalls = append(turn.ToolCalls, parley.ToolCall{
				ID:       b.ID,
				ToolName: b.Name,
				Args:     []byte(b.JSON.Input.Raw()),
			})
		}
	}
	return turn
}

// classifyError wraps retryable API failures in TransientError. 429 and the
// Anthropic-specific 529 signal throttling; 5xx are transient server trouble.
func classifyError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 500, 502, 503, 504, 529:
			return &parley.TransientError{Err: err}
		}
		return err
	}
	return fmt.Errorf("anthropic request failed: %w", err)
}

var _ parley.ModelBackend = (*Backend)(nil)
