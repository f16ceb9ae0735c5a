package parley

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return []byte(s) }

func TestRegistry_Register_Execute(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct {
		Y int `json:"y"`
	}
	tool, err := NewTool("double", "Double x", func(_ context.Context, a A) (R, error) {
		return R{Y: a.X * 2}, nil
	})
	require.NoError(t, err)
	reg := NewRegistry(WithDefaultTimeout(time.Second), WithRecoverPanics(true))
	require.NoError(t, reg.Register(tool))
	all := reg.GetAllTools()
	require.Len(t, all, 1)
	res := reg.Execute(context.Background(), ToolCall{
		ID: "1", ToolName: "double", Args: raw(`{"x": 7}`),
	})
	require.NoError(t, res.Error)
	require.NotNil(t, res.Result)
	var out R
	require.NoError(t, json.Unmarshal(res.Result, &out))
	assert.Equal(t, 14, out.Y)
	assert.Equal(t, "1", res.CallID)
	assert.Equal(t, "double", res.ToolName)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := NewRegistry()
	a := &minTool{name: "same"}
	b := &minTool{name: "same"}
	require.NoError(t, reg.Register(a))
	err := reg.Register(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTool)
	got, ok := reg.GetTool("same")
	require.True(t, ok)
	require.Same(t, Tool(a), got, "first registration wins")
}

func TestRegistry_GetTool(t *testing.T) {
	tool := &minTool{name: "double"}
	reg := NewRegistry()
	require.NoError(t, reg.Register(tool))
	got, ok := reg.GetTool("double")
	require.True(t, ok)
	require.Same(t, Tool(tool), got)
	_, ok = reg.GetTool("missing")
	require.False(t, ok)
}

func TestRegistry_Specs(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		&minTool{name: "b_tool", desc: "second", params: map[string]any{"type": "object"}},
		&minTool{name: "a_tool", desc: "first", params: map[string]any{"type": "object"}},
	)
	specs := reg.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "a_tool", specs[0].Name)
	assert.Equal(t, "first", specs[0].Description)
	assert.Equal(t, "b_tool", specs[1].Name)
}

func TestRegistry_Execute_ToolNotFound(t *testing.T) {
	reg := NewRegistry()
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "missing", Args: raw("{}")})
	require.Error(t, res.Error)
	assert.ErrorIs(t, res.Error, ErrToolNotFound)
}

func TestRegistry_Execute_ValidationFailureIsResult(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct{}
	tool, err := NewTool("strictly", "Strict", func(_ context.Context, _ A) (R, error) {
		return R{}, nil
	}, WithStrict())
	require.NoError(t, err)
	reg := NewRegistry()
	reg.MustRegister(tool)
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "strictly", Args: raw(`{"x": 1, "extra": 2}`)})
	require.Error(t, res.Error)
	assert.True(t, IsClientError(res.Error), "validation must surface as a failure result, not a panic or fatal error")
}

func TestRegistry_Execute_PanicRecovery(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct{}
	tool, err := NewTool("panics", "Panics", func(_ context.Context, _ A) (R, error) {
		panic("oops")
	})
	require.NoError(t, err)
	reg := NewRegistry(WithRecoverPanics(true))
	reg.MustRegister(tool)
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "panics", Args: raw(`{"x": 1}`)})
	require.Error(t, res.Error)
	var se *SystemError
	require.ErrorAs(t, res.Error, &se)
}

func TestRegistry_Execute_Timeout(t *testing.T) {
	tool := &minTool{name: "slow", execute: func(ctx context.Context, _ []byte) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return []byte(`{}`), nil
		}
	}}
	reg := NewRegistry(WithDefaultTimeout(20 * time.Millisecond))
	reg.MustRegister(tool)
	start := time.Now()
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "slow", Args: raw("{}")})
	require.Error(t, res.Error)
	assert.ErrorIs(t, res.Error, ErrTimeout)
	assert.True(t, res.TimedOut())
	assert.Less(t, time.Since(start), time.Second, "timeout must bound the call")
}

func TestRegistry_Execute_PerToolTimeoutOverride(t *testing.T) {
	type A struct{}
	type R struct{}
	tool, err := NewTool("patient", "Waits", func(ctx context.Context, _ A) (R, error) {
		select {
		case <-ctx.Done():
			return R{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return R{}, nil
		}
	}, WithTimeout(time.Second))
	require.NoError(t, err)
	reg := NewRegistry(WithDefaultTimeout(time.Millisecond))
	reg.MustRegister(tool)
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "patient", Args: raw(`{}`)})
	require.NoError(t, res.Error, "per-tool timeout must override the short registry default")
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&minTool{name: "nop"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	res := reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "nop", Args: raw("{}")})
	assert.ErrorIs(t, res.Error, ErrShutdown)
}

func TestRegistry_Shutdown_InFlight(t *testing.T) {
	started := make(chan struct{})
	done := make(chan struct{})
	tool := &minTool{name: "slow", execute: func(_ context.Context, _ []byte) ([]byte, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(done)
		return []byte(`{}`), nil
	}}
	reg := NewRegistry(WithDefaultTimeout(5 * time.Second))
	reg.MustRegister(tool)
	go reg.Execute(context.Background(), ToolCall{ID: "1", ToolName: "slow", Args: raw(`{}`)})
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	select {
	case <-done:
	default:
		t.Fatal("in-flight execution should have completed before Shutdown returned")
	}
}

func TestRegistry_Shutdown_Idempotent(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Shutdown(ctx))
	require.NoError(t, reg.Shutdown(ctx))
}

func TestRegistry_Execute_CancelledContext(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct {
		Y int `json:"y"`
	}
	tool, err := NewTool("double", "Double", func(_ context.Context, a A) (R, error) {
		return R{Y: a.X * 2}, nil
	})
	require.NoError(t, err)
	reg := NewRegistry(WithDefaultTimeout(time.Second))
	reg.MustRegister(tool)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := reg.Execute(ctx, ToolCall{ID: "1", ToolName: "double", Args: raw(`{"x": 1}`)})
	require.Error(t, res.Error)
	assert.True(t, errors.Is(res.Error, context.Canceled) || errors.Is(res.Error, ErrTimeout),
		"expected context.Canceled or ErrTimeout, got %v", res.Error)
}

func TestRegistry_MaxConcurrency(t *testing.T) {
	var running int32
	started := make(chan struct{}, 1)
	tool := &minTool{name: "slow", execute: func(ctx context.Context, _ []byte) ([]byte, error) {
		atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return []byte(`{}`), nil
		}
	}}
	reg := NewRegistry(WithMaxConcurrency(1), WithDefaultTimeout(time.Second))
	reg.MustRegister(tool)
	ctx := context.Background()
	go reg.Execute(ctx, ToolCall{ID: "1", ToolName: "slow", Args: raw(`{}`)})
	<-started
	assert.Equal(t, int32(1), atomic.LoadInt32(&running))
	res2 := reg.Execute(ctx, ToolCall{ID: "2", ToolName: "slow", Args: raw(`{}`)})
	require.NoError(t, res2.Error)
}

func TestRegistry_ObservabilityHooks(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct {
		Y int `json:"y"`
	}
	tool, err := NewTool("add_one", "Add one", func(_ context.Context, a A) (R, error) {
		return R{Y: a.X + 1}, nil
	})
	require.NoError(t, err)
	var beforeCalls, afterCalls int
	var lastCall ToolCall
	var lastResult ToolResult
	var lastDuration time.Duration
	reg := NewRegistry(
		WithOnBeforeExecute(func(_ context.Context, call ToolCall) {
			beforeCalls++
			lastCall = call
		}),
		WithOnAfterExecute(func(_ context.Context, _ ToolCall, result ToolResult, duration time.Duration) {
			afterCalls++
			lastResult = result
			lastDuration = duration
		}),
	)
	reg.MustRegister(tool)
	res := reg.Execute(context.Background(), ToolCall{ID: "h1", ToolName: "add_one", Args: raw(`{"x": 10}`)})
	require.NoError(t, res.Error)
	assert.Equal(t, 1, beforeCalls)
	assert.Equal(t, 1, afterCalls)
	assert.Equal(t, "h1", lastCall.ID)
	assert.Equal(t, "add_one", lastCall.ToolName)
	assert.Equal(t, "h1", lastResult.CallID)
	assert.NotNil(t, lastResult.Result)
	assert.GreaterOrEqual(t, lastDuration, time.Duration(0))
}
