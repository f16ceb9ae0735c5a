// Package testutil provides test helpers for parley (MockTool, MockModel,
// CollectorSink).
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/parley-ai/parley"
)

// MockTool is a configurable Tool implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	ExecuteFn func(ctx context.Context, args []byte) ([]byte, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Parameters returns the parameters schema (or empty map).
func (m *MockTool) Parameters() map[string]any {
	if m.ParamsVal != nil {
		return m.ParamsVal
	}
	return map[string]any{}
}

// Execute runs ExecuteFn if set, otherwise returns an empty object.
func (m *MockTool) Execute(ctx context.Context, args []byte) ([]byte, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, args)
	}
	return []byte(`{}`), nil
}

var _ parley.Tool = (*MockTool)(nil)

// MockModel is a scripted ModelBackend: each Converse call consumes the next
// entry of Script. A ScriptStep with Err != nil makes that call fail. Calls
// past the end of the script return an error, so a runaway loop is visible in
// tests. MockModel records every transcript it was shown.
type MockModel struct {
	Script []ScriptStep

	mu          sync.Mutex
	calls       int
	transcripts [][]parley.Message
}

// ScriptStep is one scripted model response.
type ScriptStep struct {
	Turn parley.ModelTurn
	Err  error
}

// Converse returns the next scripted step.
func (m *MockModel) Converse(_ context.Context, transcript []parley.Message, _ []parley.ToolSpec) (parley.ModelTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, transcript)
	if m.calls >= len(m.Script) {
		return parley.ModelTurn{}, fmt.Errorf("mock model: unscripted call %d", m.calls+1)
	}
	step := m.Script[m.calls]
	m.calls++
	return step.Turn, step.Err
}

// Calls reports how many times Converse ran.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Transcript returns the messages seen by call n (0-based).
func (m *MockModel) Transcript(n int) []parley.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.transcripts) {
		return nil
	}
	return m.transcripts[n]
}

var _ parley.ModelBackend = (*MockModel)(nil)
