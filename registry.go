package parley

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultToolTimeout is the per-call ceiling applied when neither the registry
// nor the tool sets one. Conservative on purpose: a stuck tool must not hold a
// dispatch batch forever.
const DefaultToolTimeout = 30 * time.Second

// Registry holds the immutable set of registered tools and executes single
// calls with timeout, semaphore, and optional panic recovery. Registration
// happens once at process startup; afterwards the registry is read-mostly and
// safe for concurrent use by any number of sessions.
type Registry struct {
	tools       map[string]Tool // wrapped with middlewares, used by Execute
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	sem         chan struct{}
	opts        registryOptions
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.Mutex
	middlewares []Middleware
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		timeout:        DefaultToolTimeout,
		maxConcurrency: 10,
		recoverPanics:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	return &Registry{
		tools:    make(map[string]Tool),
		rawTools: make(map[string]Tool),
		sem:      sem,
		opts:     o,
		done:     make(chan struct{}),
	}
}

// Register adds a tool. Stored middlewares (see Use) are applied to the tool
// before registration. Registering a name twice is an error (ErrDuplicateTool):
// tool specs are immutable once registered.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.rawTools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.rawTools[name] = t
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		t = r.middlewares[i](t)
	}
	r.tools[name] = t
	return nil
}

// MustRegister is Register that panics on error, for startup wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// GetAllTools returns all registered tools (e.g. for exporting to LLM
// providers), sorted by name for deterministic order.
func (r *Registry) GetAllTools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// GetTool returns the tool with the given name (after middlewares are
// applied), or (nil, false) if not found.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the provider-facing descriptions of all registered tools,
// sorted by name.
func (r *Registry) Specs() []ToolSpec {
	tools := r.GetAllTools()
	out := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Execute runs one tool call and returns its outcome. Execute never returns a
// Go error: validation failures, handler errors, panics, and timeouts all
// become failure ToolResults, so a malformed call can never abort the turn
// that contains it. The after-execution hook (WithOnAfterExecute) is always
// invoked via defer with the final result.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	res := ToolResult{CallID: call.ID, ToolName: call.ToolName}

	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		res.Error = ErrShutdown
		return res
	default:
	}
	t, ok := r.tools[call.ToolName]
	if !ok {
		r.mu.Unlock()
		res.Error = fmt.Errorf("%w: %q", ErrToolNotFound, call.ToolName)
		return res
	}
	r.running.Add(1)
	r.mu.Unlock()
	defer r.running.Done()

	if err := r.acquireSemaphore(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		res.Error = err
		return res
	}
	defer r.releaseSemaphore()

	timeout := r.opts.timeout
	if tm, ok := t.(ToolMetadata); ok && tm.Timeout() > 0 {
		timeout = tm.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if r.opts.onBefore != nil {
		r.opts.onBefore(ctx, call)
	}
	start := time.Now()
	// The after hook must observe the final result even on panic, so it is
	// deferred before the recover defer (which runs first and fills in Error).
	defer func() {
		if r.opts.onAfter != nil {
			r.opts.onAfter(ctx, call, res, res.Duration)
		}
	}()

	run := func() (out []byte, err error) {
		if r.opts.recoverPanics {
			defer func() {
				if p := recover(); p != nil {
					out = nil
					err = &SystemError{Err: &panicError{p: p}}
				}
			}()
		}
		return t.Execute(ctx, call.Args)
	}
	out, err := run()
	res.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("%w after %s", ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		res.Error = err
		return res
	}
	res.Result = out
	return res
}

func (r *Registry) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// Shutdown closes the registry for new calls and waits for in-flight
// executions or ctx to cancel.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// panicError wraps a recovered panic value for SystemError; used by Registry
// and the WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
