package parley

import (
	"encoding/json"
	"sync"
	"time"
)

// StatusKind is the lifecycle stage a status event reports.
type StatusKind string

const (
	StatusStarted   StatusKind = "tool_started"
	StatusCompleted StatusKind = "tool_completed"
	StatusFailed    StatusKind = "tool_failed"
)

// StatusEvent is a live progress notification for one tool invocation.
// Events are ephemeral: they exist for observers (chat UIs, logs) and are
// never part of the conversation transcript. Emission order across different
// tools in one batch is nondeterministic; within one call ID, Started always
// precedes the terminal Completed/Failed event.
type StatusEvent struct {
	Kind     StatusKind      `json:"type"`
	ToolName string          `json:"tool"`
	CallID   string          `json:"call_id"`
	Message  string          `json:"message,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

// StatusSink receives status events. Publish must not block: the dispatch
// path fires events and moves on, and an observer-side problem must never
// affect tool execution.
type StatusSink interface {
	Publish(StatusEvent)
}

// NopSink discards all events. Used when no observer is attached.
type NopSink struct{}

func (NopSink) Publish(StatusEvent) {}

// SinkFunc adapts a function to StatusSink. Panics in the function are
// swallowed so a broken observer cannot fail a dispatch.
type SinkFunc func(StatusEvent)

func (f SinkFunc) Publish(ev StatusEvent) {
	defer func() { _ = recover() }()
	f(ev)
}

// Broadcaster fans events out to any number of subscribers. Each subscriber
// gets its own buffered channel; when a subscriber falls behind, its oldest
// pending event is dropped to make room, so Publish never blocks. A
// Broadcaster with no subscribers is a cheap no-op sink.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new observer with the given channel buffer
// (minimum 1). The caller must drain Events() and call Cancel when done.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{ch: make(chan StatusEvent, buffer), b: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every active subscriber without blocking. Each
// subscriber receives events in publish order (modulo drops under overflow).
func (b *Broadcaster) Publish(ev StatusEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is behind: drop its oldest pending event, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Close cancels all subscriptions. Publish becomes a no-op; Close is idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	b.subs = make(map[*Subscription]struct{})
}

var _ StatusSink = (*Broadcaster)(nil)

// Subscription is one observer's feed of status events.
type Subscription struct {
	ch   chan StatusEvent
	b    *Broadcaster
	once sync.Once
}

// Events returns the subscriber's channel. It is closed by Cancel or by the
// Broadcaster's Close.
func (s *Subscription) Events() <-chan StatusEvent { return s.ch }

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and safe concurrently with Publish.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	s.once.Do(func() { close(s.ch) })
}
