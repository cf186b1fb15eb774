package graph

import (
	"fmt"

	"github.com/hupe1980/stategraph/channel"
)

// Compile validates the builder and freezes it into an immutable Graph.
//
// Hard errors: duplicate ids, references to unknown channels, nodes without
// triggers, entry channels that do not exist. Non-fatal findings become
// warnings on the compiled graph: nodes that no statically known writer can
// ever activate (they remain reachable through dynamic sends) and channels
// nothing writes.
//
// The reserved error channel is registered automatically as an accumulating
// topic unless the builder declared it explicitly.
func (b *Builder) Compile() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("graph has no nodes")
	}

	channels := make([]channelSpec, len(b.channels))
	copy(channels, b.channels)
	chanSeen := make(map[string]bool, len(b.chanSeen))
	for id := range b.chanSeen {
		chanSeen[id] = true
	}
	if !chanSeen[ErrorChannel] {
		channels = append(channels, channelSpec{id: ErrorChannel, factory: channel.Topic(true)})
		chanSeen[ErrorChannel] = true
	}

	nodes := make([]NodeSpec, len(b.nodes))
	copy(nodes, b.nodes)

	entry := make(map[string]struct{}, len(b.entry))
	for _, id := range b.entry {
		if !chanSeen[id] {
			return nil, fmt.Errorf("entry references unknown channel %s", id)
		}
		entry[id] = struct{}{}
	}

	written := make(map[string]bool, len(chanSeen))
	for id := range entry {
		written[id] = true
	}
	written[ErrorChannel] = true // the engine itself writes node failures here

	for i := range nodes {
		spec := &nodes[i]
		if len(spec.Opts.Triggers) == 0 {
			return nil, fmt.Errorf("node %s has no trigger channels", spec.ID)
		}
		for _, id := range spec.Opts.Triggers {
			if !chanSeen[id] {
				return nil, fmt.Errorf("node %s triggers on unknown channel %s", spec.ID, id)
			}
		}
		for _, id := range spec.Opts.Writes {
			if !chanSeen[id] {
				return nil, fmt.Errorf("node %s writes unknown channel %s", spec.ID, id)
			}
			written[id] = true
		}
		for _, id := range spec.Opts.Reads {
			if !chanSeen[id] {
				return nil, fmt.Errorf("node %s reads unknown channel %s", spec.ID, id)
			}
		}
		if spec.Opts.MaxRetries < 0 {
			return nil, fmt.Errorf("node %s has negative retry count", spec.ID)
		}
	}

	var warnings []Warning
	for i := range nodes {
		reachable := false
		for _, trigger := range nodes[i].Opts.Triggers {
			if written[trigger] {
				reachable = true
				break
			}
		}
		if !reachable {
			warnings = append(warnings, Warning{
				Code:    "unreachable_node",
				Message: fmt.Sprintf("node %s: no writer or entry seed for any trigger channel; only dynamic sends can reach it", nodes[i].ID),
			})
		}
	}
	for _, spec := range channels {
		if !written[spec.id] {
			warnings = append(warnings, Warning{
				Code:    "unwritten_channel",
				Message: fmt.Sprintf("channel %s: no node writes it and it is not an entry channel", spec.id),
			})
		}
	}

	nodeIndex := make(map[string]int, len(nodes))
	for i := range nodes {
		nodeIndex[nodes[i].ID] = i
	}

	return &Graph{
		nodes:     nodes,
		nodeIndex: nodeIndex,
		channels:  channels,
		entry:     entry,
		warnings:  warnings,
	}, nil
}
