// Package core contains the shared contracts and value types of StateGraph:
// the Node capability interface, task and send directives, read-only state
// snapshots, the checkpoint model and Checkpointer contract, observer events
// and the error taxonomy. Higher level packages (graph, engine, runner,
// channel, checkpoint) depend on core; core depends on nothing but logging.
package core
