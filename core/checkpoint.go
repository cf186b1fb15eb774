package core

import (
	"context"
	"time"
)

// ChannelSnapshot is the serializable frozen state of a single channel.
// Policies use the fields they need: LastValue/Ephemeral use Value, Topic
// uses Values, NamedBarrier uses Seen. IsSet distinguishes "never written"
// from a written zero value.
type ChannelSnapshot struct {
	Value   any            `json:"value,omitempty"`
	Values  []any          `json:"values,omitempty"`
	Seen    map[string]any `json:"seen,omitempty"`
	IsSet   bool           `json:"is_set"`
	Version uint64         `json:"version"`
}

// Checkpoint is a durable snapshot of all channel states and pending work at
// a step boundary. A checkpoint is sufficient to resume execution equivalent
// to an uninterrupted run: it carries the channel states, the set of channels
// changed by the checkpointed update (which seeds the next plan), unconsumed
// send directives and branch-forced node activations.
type Checkpoint struct {
	ID              string                     `json:"id"`
	RunID           string                     `json:"run_id"`
	Step            int                        `json:"step"`
	Channels        map[string]ChannelSnapshot `json:"channels"`
	UpdatedChannels []string                   `json:"updated_channels,omitempty"`
	PendingSends    []Send                     `json:"pending_sends,omitempty"`
	PendingNodes    []string                   `json:"pending_nodes,omitempty"`
	Versions        map[string]uint64          `json:"versions"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// Clone returns a deep copy of the checkpoint structure. Channel values are
// copied shallowly; snapshots treat values as immutable.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := &Checkpoint{
		ID:        c.ID,
		RunID:     c.RunID,
		Step:      c.Step,
		Channels:  make(map[string]ChannelSnapshot, len(c.Channels)),
		Versions:  make(map[string]uint64, len(c.Versions)),
		CreatedAt: c.CreatedAt,
	}
	for id, snap := range c.Channels {
		cs := ChannelSnapshot{Value: snap.Value, IsSet: snap.IsSet, Version: snap.Version}
		if snap.Values != nil {
			cs.Values = make([]any, len(snap.Values))
			copy(cs.Values, snap.Values)
		}
		if snap.Seen != nil {
			cs.Seen = make(map[string]any, len(snap.Seen))
			for k, v := range snap.Seen {
				cs.Seen[k] = v
			}
		}
		clone.Channels[id] = cs
	}
	if c.UpdatedChannels != nil {
		clone.UpdatedChannels = make([]string, len(c.UpdatedChannels))
		copy(clone.UpdatedChannels, c.UpdatedChannels)
	}
	if c.PendingSends != nil {
		clone.PendingSends = make([]Send, len(c.PendingSends))
		copy(clone.PendingSends, c.PendingSends)
	}
	if c.PendingNodes != nil {
		clone.PendingNodes = make([]string, len(c.PendingNodes))
		copy(clone.PendingNodes, c.PendingNodes)
	}
	for k, v := range c.Versions {
		clone.Versions[k] = v
	}
	return clone
}

// Checkpointer persists checkpoints for resume and time travel. The engine
// calls Save after every successful update phase. Loading a historical
// checkpoint and continuing execution forks a new, independent run; stored
// history is never mutated.
type Checkpointer interface {
	// Save persists a checkpoint, returning its id.
	Save(ctx context.Context, checkpoint *Checkpoint) (string, error)

	// Load retrieves a checkpoint by id. Returns ErrCheckpointNotFound if no
	// such checkpoint exists.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Latest retrieves the most recent checkpoint of a run.
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns all checkpoints of a run ordered by step ascending.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)
}
