package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// DefaultMaxTurns bounds the model → tools → model cycle. A model that keeps
// requesting tools without ever answering hits this limit and the session
// fails with ErrTurnLimit instead of looping forever.
const DefaultMaxTurns = 8

// DefaultModelTries is how many times one model call is attempted when the
// backend reports transient failures (rate limits, flaky network).
const DefaultModelTries = 3

// Agent drives conversations: it owns the model backend, the read-only tool
// registry, and the default status sink, and is safe for concurrent Ask calls.
// Each Ask runs an independent session with its own transcript and turn
// counter; sessions share nothing but the registry.
type Agent struct {
	backend    ModelBackend
	reg        *Registry
	sink       StatusSink
	maxTurns   int
	modelTries uint
	logger     *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithMaxTurns overrides the conversation turn limit.
func WithMaxTurns(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithStatusSink sets the default sink receiving tool lifecycle events for
// every session (override per call with AskWithSink).
func WithStatusSink(sink StatusSink) AgentOption {
	return func(a *Agent) {
		if sink != nil {
			a.sink = sink
		}
	}
}

// WithModelTries sets how many attempts one model call gets when the backend
// returns TransientError. 1 disables retries.
func WithModelTries(n uint) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.modelTries = n
		}
	}
}

// WithLogger sets a structured logger for turn-level progress.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAgent creates an Agent over a model backend and a tool registry.
func NewAgent(backend ModelBackend, reg *Registry, opts ...AgentOption) (*Agent, error) {
	if backend == nil {
		return nil, errors.New("model backend is required")
	}
	if reg == nil {
		return nil, errors.New("tool registry is required")
	}
	a := &Agent{
		backend:    backend,
		reg:        reg,
		sink:       NopSink{},
		maxTurns:   DefaultMaxTurns,
		modelTries: DefaultModelTries,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// askOptions hold per-question settings.
type askOptions struct {
	userContext map[string]any
	sink        StatusSink
}

// AskOption configures a single Ask call.
type AskOption func(*askOptions)

// WithUserContext folds caller-supplied facts (user profile, recent activity)
// into the question prompt so the model can personalize tool selection.
func WithUserContext(kv map[string]any) AskOption {
	return func(o *askOptions) {
		o.userContext = kv
	}
}

// AskWithSink overrides the agent's status sink for this session only.
func AskWithSink(sink StatusSink) AskOption {
	return func(o *askOptions) {
		o.sink = sink
	}
}

// ToolRun summarizes one tool invocation for the Answer metadata.
type ToolRun struct {
	Name     string
	OK       bool
	Duration time.Duration
}

// Answer is the successful outcome of a session.
type Answer struct {
	Text      string
	ToolsUsed []string // tool names in request order across all turns
	Turns     int
	ToolRuns  []ToolRun
	// Confidence is the fraction of attempted tool calls that succeeded;
	// 0.8 when the model answered without tools.
	Confidence float64
	// Transcript is the full message exchange, final assistant turn included.
	Transcript []Message
}

// Ask runs one question to completion: converse with the model, execute any
// requested tool batch in parallel, feed results back, repeat. It returns the
// final Answer, or an error when the model backend fails unrecoverably
// (*ModelError), the turn limit is hit (ErrTurnLimit), or ctx is cancelled.
// Tool failures never surface here; they are data the model sees.
func (a *Agent) Ask(ctx context.Context, question string, opts ...AskOption) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question must not be empty")
	}
	o := askOptions{sink: a.sink}
	for _, opt := range opts {
		opt(&o)
	}
	sessionID := uuid.NewString()
	dispatcher := NewDispatcher(a.reg, o.sink)
	specs := a.reg.Specs()
	log := a.logger.With("session", sessionID)

	transcript := []Message{{Role: RoleUser, Content: buildPrompt(question, o.userContext)}}
	var toolsUsed []string
	var runs []ToolRun

	for turn := 1; turn <= a.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		modelTurn, err := a.converse(ctx, transcript, specs)
		if err != nil {
			log.Error("model call failed", "turn", turn, "error", err)
			return nil, &ModelError{Err: err}
		}
		transcript = append(transcript, Message{
			Role:      RoleAssistant,
			Content:   modelTurn.Text,
			ToolCalls: modelTurn.ToolCalls,
		})
		if modelTurn.Final() {
			log.Info("session done", "turns", turn, "tools_used", len(toolsUsed))
			return &Answer{
				Text:       modelTurn.Text,
				ToolsUsed:  toolsUsed,
				Turns:      turn,
				ToolRuns:   runs,
				Confidence: confidence(runs),
				Transcript: transcript,
			}, nil
		}

		log.Debug("dispatching tool batch", "turn", turn, "calls", len(modelTurn.ToolCalls))
		results := dispatcher.Dispatch(ctx, modelTurn.ToolCalls)
		if err := ctx.Err(); err != nil {
			// Session cancelled mid-dispatch: discard outcomes.
			return nil, err
		}
		for _, res := range results {
			toolsUsed = append(toolsUsed, res.ToolName)
			runs = append(runs, ToolRun{Name: res.ToolName, OK: !res.Failed(), Duration: res.Duration})
		}
		transcript = append(transcript, Message{Role: RoleTool, Results: results})
	}
	return nil, fmt.Errorf("%w (%d turns)", ErrTurnLimit, a.maxTurns)
}

// converse calls the backend, retrying transient failures with exponential
// backoff up to modelTries attempts. Non-transient errors fail immediately.
func (a *Agent) converse(ctx context.Context, transcript []Message, specs []ToolSpec) (ModelTurn, error) {
	op := func() (ModelTurn, error) {
		turn, err := a.backend.Converse(ctx, slices.Clone(transcript), specs)
		if err != nil && !IsTransient(err) {
			return ModelTurn{}, backoff.Permanent(err)
		}
		return turn, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(a.modelTries),
	)
}

// buildPrompt seeds the transcript with the question plus any caller context,
// rendered as stable key/value lines.
func buildPrompt(question string, userContext map[string]any) string {
	if len(userContext) == 0 {
		return question
	}
	keys := make([]string, 0, len(userContext))
	for k := range userContext {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, userContext[k])
	}
	return b.String()
}

func confidence(runs []ToolRun) float64 {
	if len(runs) == 0 {
		return 0.8
	}
	var ok int
	for _, r := range runs {
		if r.OK {
			ok++
		}
	}
	return float64(ok) / float64(len(runs))
}
