package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorizes observer events emitted at step boundaries.
type EventType string

const (
	// EventStepStart is emitted when a superstep begins (after planning).
	EventStepStart EventType = "step_start"
	// EventStepEnd is emitted after the update phase with the channel delta.
	EventStepEnd EventType = "step_end"
	// EventTaskStart is emitted when a task is handed to a worker.
	EventTaskStart EventType = "task_start"
	// EventTaskEnd is emitted when a task finishes (success or failure).
	EventTaskEnd EventType = "task_end"
	// EventCheckpoint is emitted after a checkpoint save attempt.
	EventCheckpoint EventType = "checkpoint"
	// EventError is emitted when a node or step error is observed.
	EventError EventType = "error"
)

// Event is a best-effort notification about run progress. After emission it
// should be treated as immutable.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	RunID           string    `json:"run_id"`
	Step            int       `json:"step"`
	Node            string    `json:"node,omitempty"`
	TaskID          string    `json:"task_id,omitempty"`
	CheckpointID    string    `json:"checkpoint_id,omitempty"`
	UpdatedChannels []string  `json:"updated_channels,omitempty"`
	Err             error     `json:"-"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewEvent creates an event of the given type bound to a run and step.
func NewEvent(eventType EventType, runID string, step int) Event {
	return Event{
		ID:        NewID(),
		Type:      eventType,
		RunID:     runID,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for runs, tasks, checkpoints and events.
func NewID() string { return uuid.NewString() }

// Observer receives step-boundary events. Delivery is best effort and must
// never block the scheduler; slow observers see dropped events rather than
// stalling the run.
type Observer interface {
	Notify(event Event)
}

// ChannelObserver buffers events into a channel, dropping when full so the
// scheduler is never blocked by a slow consumer.
type ChannelObserver struct {
	events chan Event
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelObserver{events: make(chan Event, buffer)}
}

// Notify implements Observer with non-blocking delivery.
func (o *ChannelObserver) Notify(event Event) {
	select {
	case o.events <- event:
	default:
	}
}

// Events exposes the receive side of the buffered event stream.
func (o *ChannelObserver) Events() <-chan Event { return o.events }

// Close closes the event stream. Call only after the run has finished.
func (o *ChannelObserver) Close() { close(o.events) }

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(event Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(event Event) { f(event) }
