package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley"
)

func TestMockModel_Script(t *testing.T) {
	model := &MockModel{Script: []ScriptStep{
		{Turn: parley.ModelTurn{ToolCalls: []parley.ToolCall{{ID: "c1", ToolName: "mock"}}}},
		{Turn: parley.ModelTurn{Text: "done"}},
	}}

	turn, err := model.Converse(context.Background(), []parley.Message{{Role: parley.RoleUser, Content: "q"}}, nil)
	require.NoError(t, err)
	assert.False(t, turn.Final())

	turn, err = model.Converse(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", turn.Text)
	assert.Equal(t, 2, model.Calls())

	_, err = model.Converse(context.Background(), nil, nil)
	require.Error(t, err, "calls past the script must fail loudly")

	first := model.Transcript(0)
	require.Len(t, first, 1)
	assert.Equal(t, "q", first[0].Content)
	assert.Nil(t, model.Transcript(99))
}

func TestHelpers_FullSession(t *testing.T) {
	tool := &MockTool{NameVal: "echo", DescVal: "Echo", ExecuteFn: func(_ context.Context, args []byte) ([]byte, error) {
		return args, nil
	}}
	reg := NewTestRegistry(tool)
	sink := &CollectorSink{}
	model := &MockModel{Script: []ScriptStep{
		{Turn: parley.ModelTurn{ToolCalls: []parley.ToolCall{{ID: "c1", ToolName: "echo", Args: []byte(`{"x":1}`)}}}},
		{Turn: parley.ModelTurn{Text: "answer"}},
	}}

	agent, err := parley.NewAgent(model, reg, parley.WithStatusSink(sink))
	require.NoError(t, err)

	ans, err := agent.Ask(context.Background(), "echo something")
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Equal(t, []string{"echo"}, ans.ToolsUsed)

	events := sink.ByCallID("c1")
	require.Len(t, events, 2)
	assert.Equal(t, parley.StatusStarted, events[0].Kind)
	assert.Equal(t, parley.StatusCompleted, events[1].Kind)
}

func TestCollectorSink_SnapshotIsolation(t *testing.T) {
	sink := &CollectorSink{}
	sink.Publish(parley.StatusEvent{Kind: parley.StatusStarted, CallID: "a"})

	snap := sink.Events()
	sink.Publish(parley.StatusEvent{Kind: parley.StatusCompleted, CallID: "a"})
	assert.Len(t, snap, 1, "snapshot must not grow with later publishes")
	assert.Len(t, sink.Events(), 2)
}
