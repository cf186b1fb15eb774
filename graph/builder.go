package graph

import (
	"fmt"

	"github.com/hupe1980/stategraph/channel"
	"github.com/hupe1980/stategraph/core"
)

// Builder authors a graph incrementally. It is an explicit object passed by
// reference, never a process-wide singleton, so multiple graphs can be
// authored concurrently. Builder methods are fluent and defer validation to
// Compile, which reports the first recorded problem.
type Builder struct {
	channels []channelSpec
	chanSeen map[string]bool
	nodes    []NodeSpec
	nodeSeen map[string]bool
	entry    []string
	errs     []error
}

// NewBuilder constructs an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		chanSeen: make(map[string]bool),
		nodeSeen: make(map[string]bool),
	}
}

// AddChannel declares a named channel with the given policy factory.
func (b *Builder) AddChannel(id string, factory channel.Factory) *Builder {
	if id == "" {
		b.errs = append(b.errs, fmt.Errorf("channel id must not be empty"))
		return b
	}
	if b.chanSeen[id] {
		b.errs = append(b.errs, fmt.Errorf("duplicate channel %s", id))
		return b
	}
	if factory == nil {
		b.errs = append(b.errs, fmt.Errorf("channel %s has nil factory", id))
		return b
	}
	b.chanSeen[id] = true
	b.channels = append(b.channels, channelSpec{id: id, factory: factory})
	return b
}

// AddNode registers a node callable under id. Registration order is the
// deterministic tie-break for planning and write application.
func (b *Builder) AddNode(id string, node core.Node, optFns ...func(o *NodeOptions)) *Builder {
	if id == "" || id == Start {
		b.errs = append(b.errs, fmt.Errorf("invalid node id %q", id))
		return b
	}
	if b.nodeSeen[id] {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %s", id))
		return b
	}
	if node == nil {
		b.errs = append(b.errs, fmt.Errorf("node %s has nil callable", id))
		return b
	}

	opts := NodeOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	b.nodeSeen[id] = true
	b.nodes = append(b.nodes, NodeSpec{ID: id, Node: node, Opts: opts, index: len(b.nodes)})
	return b
}

// AddBranch attaches a branch function to a previously registered node. The
// function runs after the node's execution and selects follow-on nodes.
func (b *Builder) AddBranch(nodeID string, fn BranchFunc) *Builder {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("branch for node %s is nil", nodeID))
		return b
	}
	for i := range b.nodes {
		if b.nodes[i].ID == nodeID {
			if b.nodes[i].Branch != nil {
				b.errs = append(b.errs, fmt.Errorf("node %s already has a branch", nodeID))
				return b
			}
			b.nodes[i].Branch = fn
			return b
		}
	}
	b.errs = append(b.errs, fmt.Errorf("branch references unknown node %s", nodeID))
	return b
}

// SetEntry declares the channels the Start pseudo-node may seed at step 0.
func (b *Builder) SetEntry(channels ...string) *Builder {
	b.entry = append(b.entry, channels...)
	return b
}

// WithTriggers is a NodeOptions helper setting the trigger channel set.
func WithTriggers(channels ...string) func(o *NodeOptions) {
	return func(o *NodeOptions) { o.Triggers = channels }
}

// WithWrites is a NodeOptions helper setting the declared write set.
func WithWrites(channels ...string) func(o *NodeOptions) {
	return func(o *NodeOptions) { o.Writes = channels }
}

// WithReads is a NodeOptions helper adding extra snapshot channels.
func WithReads(channels ...string) func(o *NodeOptions) {
	return func(o *NodeOptions) { o.Reads = channels }
}

// AsCritical marks the node as critical: its failure aborts the run.
func AsCritical() func(o *NodeOptions) {
	return func(o *NodeOptions) { o.Critical = true }
}

// AsNonRetriable marks the node as unsafe for re-execution after resume.
func AsNonRetriable() func(o *NodeOptions) {
	return func(o *NodeOptions) { o.NonRetriable = true }
}

// WithMaxRetries sets in-step retry attempts for transient node failures.
func WithMaxRetries(n int) func(o *NodeOptions) {
	return func(o *NodeOptions) { o.MaxRetries = n }
}
