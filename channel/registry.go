package channel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/stategraph/core"
)

// WriteIntent is one node's buffered proposal for a single channel, produced
// during the execute phase and applied during update. The engine hands the
// registry intents already ordered by writer registration order; the
// registry preserves that order per channel.
type WriteIntent struct {
	Node    string
	Channel string
	Values  []any
}

// Registry holds the named channels of one run in registration order. All
// mutation flows through ApplyUpdates, which the scheduler calls from a
// single goroutine during the update phase; the mutex only guards against
// concurrent snapshot reads (e.g. observers inspecting state mid-run).
type Registry struct {
	mu       sync.RWMutex
	order    []string
	channels map[string]Channel
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Add registers a channel under the given id. Ids are unique; registration
// order is the deterministic apply order.
func (r *Registry) Add(id string, ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[id]; exists {
		return fmt.Errorf("channel %s already registered", id)
	}
	r.order = append(r.order, id)
	r.channels[id] = ch
	return nil
}

// Get returns the channel registered under id.
func (r *Registry) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// IDs returns the channel ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Values returns the current value of every set channel.
func (r *Registry) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any)
	for _, id := range r.order {
		if v, ok := r.channels[id].Get(); ok {
			out[id] = v
		}
	}
	return out
}

// Snapshot builds a read-only snapshot over the given channel ids (all set
// channels when none are given). Tasks execute against such snapshots and
// never observe sibling writes from their own step.
func (r *Registry) Snapshot(ids ...string) core.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make(map[string]any)
	if len(ids) == 0 {
		ids = r.order
	}
	for _, id := range ids {
		ch, ok := r.channels[id]
		if !ok {
			continue
		}
		if v, set := ch.Get(); set {
			values[id] = v
		}
	}
	return core.NewSnapshot(values)
}

// ApplyUpdates runs one update phase: per-step resets first, then every
// channel's buffered writes via its policy. Intents must arrive ordered by
// writer registration order; channels are visited in their own registration
// order so aggregation is reproducible. Returns the ids of channels whose
// readable value changed, in registration order.
func (r *Registry) ApplyUpdates(intents []WriteIntent) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grouped := make(map[string][]any)
	for _, intent := range intents {
		if _, ok := r.channels[intent.Channel]; !ok {
			return nil, fmt.Errorf("write intent for unknown channel %s (node %s)", intent.Channel, intent.Node)
		}
		grouped[intent.Channel] = append(grouped[intent.Channel], intent.Values...)
	}

	for _, id := range r.order {
		r.channels[id].BeginStep()
	}

	var changed []string
	for _, id := range r.order {
		values, written := grouped[id]
		if !written {
			continue
		}
		didChange, err := r.channels[id].Update(values)
		if err != nil {
			var violation *core.ChannelPolicyViolation
			if errors.As(err, &violation) && violation.Channel == "" {
				violation.Channel = id
			}
			return nil, err
		}
		if didChange {
			changed = append(changed, id)
		}
	}

	return changed, nil
}

// Checkpoint freezes every channel's state keyed by id, plus the version map.
func (r *Registry) Checkpoint() (map[string]core.ChannelSnapshot, map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshots := make(map[string]core.ChannelSnapshot, len(r.order))
	versions := make(map[string]uint64, len(r.order))
	for _, id := range r.order {
		snapshots[id] = r.channels[id].Checkpoint()
		versions[id] = r.channels[id].Version()
	}
	return snapshots, versions
}

// Restore replaces all channel state from a checkpoint's snapshots. Channels
// missing from the snapshot keep their initial state; snapshots for unknown
// channels are an error.
func (r *Registry) Restore(snapshots map[string]core.ChannelSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range snapshots {
		if _, ok := r.channels[id]; !ok {
			return fmt.Errorf("snapshot contains unknown channel %s", id)
		}
	}
	for id, snap := range snapshots {
		if err := r.channels[id].Restore(snap); err != nil {
			return fmt.Errorf("restore channel %s: %w", id, err)
		}
	}
	return nil
}
