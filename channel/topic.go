package channel

import (
	"github.com/hupe1980/stategraph/core"
)

// topic collects all values written in a step. With accumulate disabled the
// collection is cleared before each step, so consumers only see the previous
// step's writes.
type topic struct {
	accumulate bool
	values     []any
	version    uint64
}

// Topic returns a factory for a collecting channel. If accumulate is true
// values pile up across steps; otherwise the channel resets every step.
func Topic(accumulate bool) Factory {
	return func() Channel {
		return &topic{accumulate: accumulate}
	}
}

// Get returns a defensive copy of the collected values.
func (c *topic) Get() (any, bool) {
	if len(c.values) == 0 {
		return nil, false
	}
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out, true
}

func (c *topic) BeginStep() {
	if !c.accumulate {
		c.values = nil
	}
}

func (c *topic) Update(values []any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	c.values = append(c.values, values...)
	c.version++
	return true, nil
}

func (c *topic) Checkpoint() core.ChannelSnapshot {
	var vals []any
	if c.values != nil {
		vals = make([]any, len(c.values))
		copy(vals, c.values)
	}
	return core.ChannelSnapshot{Values: vals, IsSet: len(c.values) > 0, Version: c.version}
}

func (c *topic) Restore(snapshot core.ChannelSnapshot) error {
	c.values = nil
	if snapshot.Values != nil {
		c.values = make([]any, len(snapshot.Values))
		copy(c.values, snapshot.Values)
	}
	c.version = snapshot.Version
	return nil
}

func (c *topic) Version() uint64 { return c.version }
