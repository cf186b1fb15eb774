package channel

import (
	"fmt"

	"github.com/hupe1980/stategraph/core"
)

// lastValue keeps the last proposed value. Two writers in one step is a
// policy violation unless explicitly permitted via AllowMultiple.
type lastValue struct {
	value         any
	set           bool
	version       uint64
	allowMultiple bool
}

// LastValueOptions configures a LastValue channel.
type LastValueOptions struct {
	// AllowMultiple permits more than one proposed value per step; the last
	// one (in deterministic apply order) wins. Without it multiple writers
	// fail the step.
	AllowMultiple bool
}

// LastValue returns a factory for a last-value channel.
func LastValue(optFns ...func(o *LastValueOptions)) Factory {
	opts := LastValueOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return func() Channel {
		return &lastValue{allowMultiple: opts.AllowMultiple}
	}
}

func (c *lastValue) Get() (any, bool) { return c.value, c.set }

func (c *lastValue) BeginStep() {}

func (c *lastValue) Update(values []any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	if len(values) > 1 && !c.allowMultiple {
		return false, &core.ChannelPolicyViolation{
			Reason: fmt.Sprintf("%d writers in one step for a last-value channel", len(values)),
		}
	}
	c.value = values[len(values)-1]
	c.set = true
	c.version++
	return true, nil
}

func (c *lastValue) Checkpoint() core.ChannelSnapshot {
	return core.ChannelSnapshot{Value: c.value, IsSet: c.set, Version: c.version}
}

func (c *lastValue) Restore(snapshot core.ChannelSnapshot) error {
	c.value = snapshot.Value
	c.set = snapshot.IsSet
	c.version = snapshot.Version
	return nil
}

func (c *lastValue) Version() uint64 { return c.version }
