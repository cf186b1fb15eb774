package channel

import (
	"fmt"

	"github.com/hupe1980/stategraph/core"
)

// ephemeral is cleared at the start of every step before new writes are
// applied, so a written value is visible for exactly one following step.
type ephemeral struct {
	value   any
	set     bool
	version uint64
}

// Ephemeral returns a factory for a single-step channel.
func Ephemeral() Factory {
	return func() Channel { return &ephemeral{} }
}

func (c *ephemeral) Get() (any, bool) { return c.value, c.set }

func (c *ephemeral) BeginStep() {
	c.value = nil
	c.set = false
}

func (c *ephemeral) Update(values []any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	if len(values) > 1 {
		return false, &core.ChannelPolicyViolation{
			Reason: fmt.Sprintf("%d writers in one step for an ephemeral channel", len(values)),
		}
	}
	c.value = values[0]
	c.set = true
	c.version++
	return true, nil
}

func (c *ephemeral) Checkpoint() core.ChannelSnapshot {
	return core.ChannelSnapshot{Value: c.value, IsSet: c.set, Version: c.version}
}

func (c *ephemeral) Restore(snapshot core.ChannelSnapshot) error {
	c.value = snapshot.Value
	c.set = snapshot.IsSet
	c.version = snapshot.Version
	return nil
}

func (c *ephemeral) Version() uint64 { return c.version }
