// Package graph provides the compiled, immutable model of a computation
// graph: nodes with trigger and write channel sets, optional branch
// functions, and the channel specifications each run instantiates. Graphs
// are authored through an explicit Builder and frozen by Compile; cycles are
// expected (they encode feedback loops) and are bounded at run time by step
// budgets or termination channels, never at compile time.
package graph

import (
	"fmt"

	"github.com/hupe1980/stategraph/channel"
	"github.com/hupe1980/stategraph/core"
)

const (
	// Start is the distinguished pseudo-node seeding the initial channel
	// writes for step 0.
	Start = "__start__"

	// ErrorChannel is the reserved channel receiving non-critical node
	// failures. Compile registers it automatically (accumulating topic) so
	// in-graph error handling always has a destination.
	ErrorChannel = "errors"
)

// BranchFunc selects follow-on node ids after a node's execution, based on
// the snapshot the node saw and the result it produced. Selected nodes are
// activated in the next superstep regardless of trigger changes.
type BranchFunc func(snapshot core.Snapshot, result core.NodeResult) []string

// NodeOptions configures a node registration.
type NodeOptions struct {
	// Triggers are the channels whose change activates this node.
	Triggers []string

	// Writes is the fixed set of channels this node may write. Writes
	// outside the declared set fail the step.
	Writes []string

	// Reads lists extra channels included in the node's snapshot beyond its
	// triggers. When empty the snapshot covers all set channels.
	Reads []string

	// Critical marks a node whose failure aborts the run once observed.
	// Non-critical failures are recorded into the reserved error channel
	// and the run continues.
	Critical bool

	// NonRetriable declares that this node's side effects are not safe
	// under at-least-once re-execution; a resume that would re-run it
	// fails fast instead.
	NonRetriable bool

	// MaxRetries is the number of in-step re-executions attempted for a
	// failing task before its error is handled per criticality.
	MaxRetries int
}

// NodeSpec is the compiled, immutable description of one node.
type NodeSpec struct {
	ID     string
	Node   core.Node
	Opts   NodeOptions
	Branch BranchFunc

	index int // registration order, the deterministic tie-break
}

// Index returns the node's registration position.
func (s *NodeSpec) Index() int { return s.index }

type channelSpec struct {
	id      string
	factory channel.Factory
}

// Warning is a non-fatal finding reported by Compile.
type Warning struct {
	Code    string
	Message string
}

// Graph is the compiled, immutable description of nodes and channels.
// A Graph carries no run state; every run instantiates a fresh Registry
// from the channel factories.
type Graph struct {
	nodes     []NodeSpec
	nodeIndex map[string]int
	channels  []channelSpec
	entry     map[string]struct{}
	warnings  []Warning
}

// NewRegistry instantiates fresh channels for one run, in declaration order.
func (g *Graph) NewRegistry() (*channel.Registry, error) {
	reg := channel.NewRegistry()
	for _, spec := range g.channels {
		if err := reg.Add(spec.id, spec.factory()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Node returns the spec registered under id.
func (g *Graph) Node(id string) (*NodeSpec, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// Nodes returns all node specs in registration order.
func (g *Graph) Nodes() []NodeSpec {
	out := make([]NodeSpec, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Channels returns the channel ids in declaration order.
func (g *Graph) Channels() []string {
	out := make([]string, 0, len(g.channels))
	for _, spec := range g.channels {
		out = append(out, spec.id)
	}
	return out
}

// EntryChannels returns the channels the Start pseudo-node may seed.
func (g *Graph) EntryChannels() []string {
	out := make([]string, 0, len(g.entry))
	for _, spec := range g.channels {
		if _, ok := g.entry[spec.id]; ok {
			out = append(out, spec.id)
		}
	}
	return out
}

// IsEntryChannel reports whether Start may seed the given channel.
func (g *Graph) IsEntryChannel(id string) bool {
	_, ok := g.entry[id]
	return ok
}

// Warnings returns the non-fatal findings produced at compile time.
func (g *Graph) Warnings() []Warning {
	out := make([]Warning, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// ActiveNodes computes, in registration order, the nodes whose trigger set
// intersects the channels changed in the previous step.
func (g *Graph) ActiveNodes(changed []string) []string {
	changedSet := make(map[string]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}
	var active []string
	for i := range g.nodes {
		for _, trigger := range g.nodes[i].Opts.Triggers {
			if _, ok := changedSet[trigger]; ok {
				active = append(active, g.nodes[i].ID)
				break
			}
		}
	}
	return active
}

// ValidateWrites checks a node's buffered writes against its declared write
// set, rejecting undeclared channels before the update phase runs.
func (g *Graph) ValidateWrites(nodeID string, writes map[string][]any) error {
	spec, ok := g.Node(nodeID)
	if !ok {
		return fmt.Errorf("unknown node %s", nodeID)
	}
	declared := make(map[string]struct{}, len(spec.Opts.Writes))
	for _, ch := range spec.Opts.Writes {
		declared[ch] = struct{}{}
	}
	for ch := range writes {
		if _, ok := declared[ch]; !ok {
			return fmt.Errorf("node %s wrote undeclared channel %s", nodeID, ch)
		}
	}
	return nil
}
