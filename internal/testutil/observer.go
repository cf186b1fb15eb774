package testutil

import (
	"sync"

	"github.com/hupe1980/stategraph/core"
)

// CollectingObserver buffers every event it receives so tests can inspect
// the full lifecycle of a run after the fact. Safe for concurrent use.
type CollectingObserver struct {
	mu     sync.Mutex
	events []core.Event
}

// Notify implements core.Observer.
func (o *CollectingObserver) Notify(event core.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.events = append(o.events, event)
}

// Events returns a copy of all collected events in arrival order.
func (o *CollectingObserver) Events() []core.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]core.Event, len(o.events))
	copy(out, o.events)

	return out
}

// ByType returns the collected events matching the given type.
func (o *CollectingObserver) ByType(eventType core.EventType) []core.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []core.Event
	for _, ev := range o.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}

	return out
}

var _ core.Observer = (*CollectingObserver)(nil)
