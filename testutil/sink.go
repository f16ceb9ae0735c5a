package testutil

import (
	"sync"

	"github.com/parley-ai/parley"
)

// CollectorSink records every published status event for deterministic
// assertions. Safe for concurrent use.
type CollectorSink struct {
	mu     sync.Mutex
	events []parley.StatusEvent
}

// Publish appends the event.
func (c *CollectorSink) Publish(ev parley.StatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a snapshot of everything published so far.
func (c *CollectorSink) Events() []parley.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]parley.StatusEvent, len(c.events))
	copy(out, c.events)
	return out
}

// ByCallID returns the events for one call ID, in publish order.
func (c *CollectorSink) ByCallID(id string) []parley.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []parley.StatusEvent
	for _, ev := range c.events {
		if ev.CallID == id {
			out = append(out, ev)
		}
	}
	return out
}

var _ parley.StatusSink = (*CollectorSink)(nil)
