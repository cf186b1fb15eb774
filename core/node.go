package core

import (
	"context"
	"sort"
)

// Node defines the capability interface for a single computation unit in the
// graph. A node receives a read-only snapshot of its subscribed channels and
// returns buffered write intents plus optional dynamic send directives. The
// engine never applies writes during execution; all mutation happens in the
// serialized update phase.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Treat the snapshot as immutable (values must not be mutated in place)
//   - Be safe under at-least-once re-execution after crash/resume, or be
//     registered as non-retriable so a resume fails fast instead of silently
//     re-running non-idempotent side effects
type Node interface {
	Invoke(ctx context.Context, snapshot Snapshot) (NodeResult, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, snapshot Snapshot) (NodeResult, error)

// Invoke implements Node.
func (f NodeFunc) Invoke(ctx context.Context, snapshot Snapshot) (NodeResult, error) {
	return f(ctx, snapshot)
}

// Send is an ephemeral directive emitted by a node during execution that
// dispatches an independent task to the target node with the given payload.
// The payload substitutes the target's normal subscribed state for that
// dispatch only; the target's trigger channels need not have changed.
// Unconsumed sends are persisted in checkpoints; consumed sends are not.
type Send struct {
	Node    string `json:"node"`
	Payload any    `json:"payload"`
}

// NodeResult is the tagged result of a node invocation: buffered write
// intents keyed by channel id plus zero or more dynamic send directives.
// Values proposed for a channel keep their emission order; how multiple
// values (and multiple writers) combine is decided by the channel's policy
// during the update phase.
type NodeResult struct {
	Writes map[string][]any `json:"writes,omitempty"`
	Sends  []Send           `json:"sends,omitempty"`
}

// Write appends proposed values for a channel, allocating the map lazily.
func (r *NodeResult) Write(channel string, values ...any) {
	if r.Writes == nil {
		r.Writes = make(map[string][]any)
	}
	r.Writes[channel] = append(r.Writes[channel], values...)
}

// AddSend appends a dynamic send directive targeting the given node.
func (r *NodeResult) AddSend(node string, payload any) {
	r.Sends = append(r.Sends, Send{Node: node, Payload: payload})
}

// Snapshot is an immutable, read-only view of channel state handed to a node
// for one invocation. For send-dispatched tasks the snapshot instead carries
// the send payload.
type Snapshot struct {
	values     map[string]any
	payload    any
	hasPayload bool
}

// NewSnapshot builds a snapshot over the given channel values. The map is
// copied so later registry mutation cannot leak into executing tasks.
func NewSnapshot(values map[string]any) Snapshot {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Snapshot{values: copied}
}

// NewSendSnapshot builds a payload-only snapshot for a send-dispatched task.
func NewSendSnapshot(payload any) Snapshot {
	return Snapshot{payload: payload, hasPayload: true}
}

// Get returns the snapshotted value of a channel and whether it was set.
func (s Snapshot) Get(channel string) (any, bool) {
	v, ok := s.values[channel]
	return v, ok
}

// Payload returns the send payload and whether this snapshot originates from
// a dynamic send dispatch.
func (s Snapshot) Payload() (any, bool) {
	return s.payload, s.hasPayload
}

// Channels returns the sorted ids of all channels captured in the snapshot.
func (s Snapshot) Channels() []string {
	ids := make([]string, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Task is one planned node invocation within a superstep. Tasks are created
// during planning, consumed during execution and discarded after the update
// phase.
type Task struct {
	ID       string
	Node     string
	Step     int
	Snapshot Snapshot
	FromSend bool
}
