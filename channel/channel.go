// Package channel implements the policy-governed state slots shared across
// graph nodes, plus the Registry holding them. Channels are only mutated
// during the scheduler's update phase; executing nodes read immutable
// snapshots. Phase separation, not locking inside policies, is what makes
// concurrent execution race free.
package channel

import (
	"github.com/hupe1980/stategraph/core"
)

// Channel is a single named state slot governed by an update policy.
//
// Contract:
//   - Get never exposes internal mutable references (slices/maps are copied)
//   - BeginStep runs before any writes of a step are applied and resets
//     per-step state (ephemeral values, non-accumulating topics)
//   - Update applies all values proposed for one step in deterministic order
//     and reports whether the readable value changed
//   - Checkpoint/Restore round-trip the complete channel state including the
//     version counter
type Channel interface {
	Get() (any, bool)
	BeginStep()
	Update(values []any) (bool, error)
	Checkpoint() core.ChannelSnapshot
	Restore(snapshot core.ChannelSnapshot) error
	Version() uint64
}

// Factory constructs a fresh channel instance. Graph compilation stores
// factories rather than channels so every run starts from pristine state and
// multiple runs of one graph never share slots.
type Factory func() Channel
