package channel

import (
	"testing"

	"github.com/hupe1980/stategraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Add("a", LastValue()()))
	require.NoError(t, r.Add("b", Topic(true)()))
	require.NoError(t, r.Add("c", Ephemeral()()))

	return r
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("a", LastValue()()))

	err := r.Add("a", LastValue()())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_IDsInRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())
}

func TestRegistry_ApplyUpdates(t *testing.T) {
	r := newTestRegistry(t)

	changed, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "b", Values: []any{"x"}},
		{Node: "n1", Channel: "a", Values: []any{1}},
	})
	require.NoError(t, err)

	// Changed ids come back in registration order, not intent order.
	assert.Equal(t, []string{"a", "b"}, changed)

	values := r.Values()
	assert.Equal(t, 1, values["a"])
	assert.Equal(t, []any{"x"}, values["b"])
}

func TestRegistry_ApplyUpdatesUnknownChannel(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "missing", Values: []any{1}},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestRegistry_ApplyUpdatesViolationNamesChannel(t *testing.T) {
	r := newTestRegistry(t)

	// Two writers for the last-value channel "a" in one step.
	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{1}},
		{Node: "n2", Channel: "a", Values: []any{2}},
	})
	require.Error(t, err)

	var violation *core.ChannelPolicyViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "a", violation.Channel)
}

func TestRegistry_BeginStepClearsEphemeral(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "c", Values: []any{"transient"}},
	})
	require.NoError(t, err)
	assert.Contains(t, r.Values(), "c")

	// Next update phase clears the ephemeral channel even without writes.
	_, err = r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{1}},
	})
	require.NoError(t, err)
	assert.NotContains(t, r.Values(), "c")
}

func TestRegistry_SnapshotScoped(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{1}},
		{Node: "n1", Channel: "b", Values: []any{"x"}},
	})
	require.NoError(t, err)

	snap := r.Snapshot("a")
	_, ok := snap.Get("a")
	assert.True(t, ok)
	_, ok = snap.Get("b")
	assert.False(t, ok)

	full := r.Snapshot()
	assert.Equal(t, []string{"a", "b"}, full.Channels())
}

func TestRegistry_SnapshotIsolatedFromLaterUpdates(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{1}},
	})
	require.NoError(t, err)

	snap := r.Snapshot()

	_, err = r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{2}},
	})
	require.NoError(t, err)

	v, _ := snap.Get("a")
	assert.Equal(t, 1, v, "snapshot must not observe later updates")
}

func TestRegistry_CheckpointRestoreRoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ApplyUpdates([]WriteIntent{
		{Node: "n1", Channel: "a", Values: []any{42}},
		{Node: "n1", Channel: "b", Values: []any{"x", "y"}},
	})
	require.NoError(t, err)

	snapshots, versions := r.Checkpoint()
	assert.Len(t, snapshots, 3)
	assert.Equal(t, uint64(1), versions["a"])

	fresh := newTestRegistry(t)
	require.NoError(t, fresh.Restore(snapshots))

	values := fresh.Values()
	assert.Equal(t, 42, values["a"])
	assert.Equal(t, []any{"x", "y"}, values["b"])
}

func TestRegistry_RestoreUnknownChannel(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Restore(map[string]core.ChannelSnapshot{
		"ghost": {Value: 1, IsSet: true},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}
