package graph

import (
	"context"
	"testing"

	"github.com/hupe1980/stategraph/channel"
	"github.com/hupe1980/stategraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopNode() core.NodeFunc {
	return func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
		return core.NodeResult{}, nil
	}
}

func TestCompile_Minimal(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddChannel("out", channel.LastValue()).
		AddNode("worker", noopNode(),
			WithTriggers("in"),
			WithWrites("out"),
		).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"in", "out", ErrorChannel}, g.Channels())
	assert.Equal(t, []string{"in"}, g.EntryChannels())
	assert.True(t, g.IsEntryChannel("in"))
	assert.False(t, g.IsEntryChannel("out"))
	assert.Empty(t, g.Warnings())

	spec, ok := g.Node("worker")
	require.True(t, ok)
	assert.Equal(t, 0, spec.Index())
}

func TestCompile_ErrorChannelRegisteredAutomatically(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in")).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	assert.Contains(t, g.Channels(), ErrorChannel)

	reg, err := g.NewRegistry()
	require.NoError(t, err)

	_, ok := reg.Get(ErrorChannel)
	assert.True(t, ok)
}

func TestCompile_NoNodes(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestCompile_NodeWithoutTriggers(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode()).
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no trigger channels")
}

func TestCompile_UnknownChannelReferences(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("ghost")).
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel ghost")

	_, err = NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in"), WithWrites("ghost")).
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel ghost")

	_, err = NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in")).
		SetEntry("ghost").
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel ghost")
}

func TestCompile_DuplicateNode(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in")).
		AddNode("worker", noopNode(), WithTriggers("in")).
		Compile()
	assert.Error(t, err)
}

func TestCompile_ReservedNodeID(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode(Start, noopNode(), WithTriggers("in")).
		Compile()
	assert.Error(t, err)
}

func TestCompile_NegativeRetries(t *testing.T) {
	_, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in"), WithMaxRetries(-1)).
		Compile()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "negative retry count")
}

func TestCompile_Warnings(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddChannel("orphan", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in")).
		AddNode("island", noopNode(), WithTriggers("orphan")).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	codes := make([]string, 0, len(g.Warnings()))
	for _, w := range g.Warnings() {
		codes = append(codes, w.Code)
	}

	// "island" triggers on a channel nothing writes; cycles themselves are
	// never a warning.
	assert.Contains(t, codes, "unreachable_node")
	assert.Contains(t, codes, "unwritten_channel")
}

func TestCompile_CyclesAreLegal(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("counter", channel.LastValue()).
		AddNode("increment", noopNode(),
			WithTriggers("counter"),
			WithWrites("counter"),
		).
		SetEntry("counter").
		Compile()
	require.NoError(t, err)
	assert.Empty(t, g.Warnings())
}

func TestGraph_ActiveNodesRegistrationOrder(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("a", channel.LastValue()).
		AddChannel("b", channel.LastValue()).
		AddNode("second", noopNode(), WithTriggers("b"), WithWrites("a")).
		AddNode("first", noopNode(), WithTriggers("a", "b"), WithWrites("b")).
		SetEntry("a", "b").
		Compile()
	require.NoError(t, err)

	// Order follows node registration, not channel or alphabetical order.
	assert.Equal(t, []string{"second", "first"}, g.ActiveNodes([]string{"b"}))
	assert.Equal(t, []string{"first"}, g.ActiveNodes([]string{"a"}))
	assert.Empty(t, g.ActiveNodes(nil))
}

func TestGraph_ValidateWrites(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddChannel("out", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in"), WithWrites("out")).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	assert.NoError(t, g.ValidateWrites("worker", map[string][]any{"out": {1}}))

	err = g.ValidateWrites("worker", map[string][]any{"in": {1}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared channel in")

	err = g.ValidateWrites("ghost", nil)
	assert.Error(t, err)
}

func TestGraph_NewRegistryIsFreshPerRun(t *testing.T) {
	g, err := NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", noopNode(), WithTriggers("in")).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	first, err := g.NewRegistry()
	require.NoError(t, err)

	_, err = first.ApplyUpdates([]channel.WriteIntent{
		{Node: Start, Channel: "in", Values: []any{1}},
	})
	require.NoError(t, err)

	second, err := g.NewRegistry()
	require.NoError(t, err)

	_, set := mustChannel(t, second, "in").Get()
	assert.False(t, set, "registries must not share channel state")
}

func mustChannel(t *testing.T, reg *channel.Registry, id string) channel.Channel {
	t.Helper()

	ch, ok := reg.Get(id)
	require.True(t, ok)

	return ch
}
