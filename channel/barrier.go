package channel

import (
	"fmt"
	"sort"

	"github.com/hupe1980/stategraph/core"
)

// Contribution is the value shape accepted by a NamedBarrier channel: each
// writer contributes under its declared name.
type Contribution struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// namedBarrier holds partial contributions and only becomes readable (and
// only fires downstream triggers) once every declared name has contributed
// at least once, possibly across multiple steps. Partial state never leaks:
// Get reports unset until the barrier completes.
type namedBarrier struct {
	names   map[string]struct{}
	seen    map[string]any
	fired   bool
	version uint64
}

// NamedBarrier returns a factory for a barrier channel gated on the given
// contributor names.
func NamedBarrier(names ...string) Factory {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func() Channel {
		return &namedBarrier{names: set, seen: make(map[string]any)}
	}
}

// Get returns the complete contribution map once all names have written.
func (c *namedBarrier) Get() (any, bool) {
	if len(c.seen) < len(c.names) {
		return nil, false
	}
	out := make(map[string]any, len(c.seen))
	for k, v := range c.seen {
		out[k] = v
	}
	return out, true
}

// Contributors returns the sorted names that have contributed so far.
func (c *namedBarrier) Contributors() []string {
	out := make([]string, 0, len(c.seen))
	for n := range c.seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (c *namedBarrier) BeginStep() {}

func (c *namedBarrier) Update(values []any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	for _, v := range values {
		contrib, ok := v.(Contribution)
		if !ok {
			if p, isPtr := v.(*Contribution); isPtr {
				contrib, ok = *p, true
			}
		}
		if !ok {
			return false, &core.ChannelPolicyViolation{
				Reason: fmt.Sprintf("barrier channel expects channel.Contribution, got %T", v),
			}
		}
		if _, known := c.names[contrib.Name]; !known {
			return false, &core.ChannelPolicyViolation{
				Reason: fmt.Sprintf("unknown barrier contributor %q", contrib.Name),
			}
		}
		c.seen[contrib.Name] = contrib.Value
	}
	c.version++
	// The barrier fires exactly once, on the transition to complete.
	if !c.fired && len(c.seen) == len(c.names) {
		c.fired = true
		return true, nil
	}
	return false, nil
}

func (c *namedBarrier) Checkpoint() core.ChannelSnapshot {
	seen := make(map[string]any, len(c.seen))
	for k, v := range c.seen {
		seen[k] = v
	}
	return core.ChannelSnapshot{Seen: seen, IsSet: c.fired, Version: c.version}
}

func (c *namedBarrier) Restore(snapshot core.ChannelSnapshot) error {
	c.seen = make(map[string]any, len(snapshot.Seen))
	for k, v := range snapshot.Seen {
		if _, known := c.names[k]; !known {
			return fmt.Errorf("snapshot contains unknown barrier contributor %q", k)
		}
		c.seen[k] = v
	}
	c.fired = snapshot.IsSet
	c.version = snapshot.Version
	return nil
}

func (c *namedBarrier) Version() uint64 { return c.version }
