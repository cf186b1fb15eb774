package channel

import (
	"fmt"

	"github.com/hupe1980/stategraph/core"
)

// Op is an associative binary operator combining the prior value with one
// proposed value. Associativity is what keeps aggregation results stable
// under any task completion order, because the apply order itself is fixed
// to node registration order.
type Op func(current, proposed any) (any, error)

// binaryOperator reduces all values proposed for a step with an associative
// operator, combined with the prior value.
type binaryOperator struct {
	op      Op
	value   any
	set     bool
	version uint64
}

// BinaryOperator returns a factory for an aggregating channel seeded with
// the given initial value.
func BinaryOperator(op Op, seed any) Factory {
	return func() Channel {
		return &binaryOperator{op: op, value: seed, set: true}
	}
}

func (c *binaryOperator) Get() (any, bool) { return c.value, c.set }

func (c *binaryOperator) BeginStep() {}

func (c *binaryOperator) Update(values []any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	acc := c.value
	for _, v := range values {
		next, err := c.op(acc, v)
		if err != nil {
			return false, fmt.Errorf("aggregate operator: %w", err)
		}
		acc = next
	}
	c.value = acc
	c.set = true
	c.version++
	return true, nil
}

func (c *binaryOperator) Checkpoint() core.ChannelSnapshot {
	return core.ChannelSnapshot{Value: c.value, IsSet: c.set, Version: c.version}
}

func (c *binaryOperator) Restore(snapshot core.ChannelSnapshot) error {
	c.value = snapshot.Value
	c.set = snapshot.IsSet
	c.version = snapshot.Version
	return nil
}

func (c *binaryOperator) Version() uint64 { return c.version }
