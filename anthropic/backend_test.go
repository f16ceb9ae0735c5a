package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	b, err := New("sk-test", WithModel("claude-haiku-4-0"), WithMaxTokens(1024), WithSystemPrompt("be terse"))
	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-haiku-4-0"), b.model)
	assert.EqualValues(t, 1024, b.maxTokens)
	assert.Equal(t, "be terse", b.system)
}

func TestTransformMessages(t *testing.T) {
	transcript := []parley.Message{
		{Role: parley.RoleUser, Content: "how windy is it?"},
		{Role: parley.RoleAssistant, Content: "checking", ToolCalls: []parley.ToolCall{
			{ID: "tu_1", ToolName: "weather", Args: []byte(`{"city":"Bergen"}`)},
		}},
		{Role: parley.RoleTool, Results: []parley.ToolResult{
			{CallID: "tu_1", ToolName: "weather", Result: []byte(`{"wind":"12 m/s"}`)},
		}},
	}
	msgs := transformMessages(transcript)
	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2, "assistant text plus one tool_use block")
	// Tool results ride user-role messages in the Messages API.
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 1)
}

func TestTransformMessages_SkipsEmpty(t *testing.T) {
	msgs := transformMessages([]parley.Message{
		{Role: parley.RoleAssistant},
		{Role: parley.RoleTool},
		{Role: parley.RoleUser, Content: "hi"},
	})
	require.Len(t, msgs, 1)
}

func TestTransformTools(t *testing.T) {
	specs := []parley.ToolSpec{{
		Name:        "search",
		Description: "Search the web",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}}
	tools := transformTools(specs)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "search", tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}

func TestParseTurn(t *testing.T) {
	fixture := `{
		"id": "msg_1",
		"role": "assistant",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Let me look that up."},
			{"type": "tool_use", "id": "tu_1", "name": "search", "input": {"query": "tide tables"}},
			{"type": "tool_use", "id": "tu_2", "name": "weather", "input": {"city": "Bergen"}}
		]
	}`
	var msg sdk.Message
	require.NoError(t, json.Unmarshal([]byte(fixture), &msg))

	turn := parseTurn(&msg)
	assert.Equal(t, "Let me look that up.", turn.Text)
	require.Len(t, turn.ToolCalls, 2)
	assert.Equal(t, "tu_1", turn.ToolCalls[0].ID)
	assert.Equal(t, "search", turn.ToolCalls[0].ToolName)
	assert.JSONEq(t, `{"query": "tide tables"}`, string(turn.ToolCalls[0].Args))
	assert.Equal(t, "tu_2", turn.ToolCalls[1].ID)
	assert.False(t, turn.Final())
}

func TestParseTurn_FinalAnswer(t *testing.T) {
	fixture := `{"id": "msg_2", "role": "assistant", "stop_reason": "end_turn",
		"content": [{"type": "text", "text": "It is windy."}]}`
	var msg sdk.Message
	require.NoError(t, json.Unmarshal([]byte(fixture), &msg))
	turn := parseTurn(&msg)
	assert.Equal(t, "It is windy.", turn.Text)
	assert.True(t, turn.Final())
}

func TestClassifyError(t *testing.T) {
	for _, code := range []int{429, 500, 529} {
		err := classifyError(&sdk.Error{StatusCode: code})
		assert.True(t, parley.IsTransient(err), "status %d should be transient", code)
	}
	err := classifyError(&sdk.Error{StatusCode: 400})
	assert.False(t, parley.IsTransient(err), "client errors are not retryable")
	err = classifyError(assert.AnError)
	assert.False(t, parley.IsTransient(err))
	assert.ErrorIs(t, err, assert.AnError)
}
