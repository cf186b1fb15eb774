// Package engine implements the superstep scheduler for StateGraph.
//
// A run proceeds in bulk-synchronous supersteps: Plan computes the active
// node set from the channels changed in the previous step (plus pending
// dynamic sends and branch selections), Execute runs every active task
// concurrently against immutable snapshots, and Update applies all buffered
// write intents through each channel's policy from a single goroutine. A
// checkpoint is saved after every successful update.
//
// # Determinism
//
// Node execution order within a step is unspecified and parallel, but every
// ordering decision that affects state is fixed to node registration order:
// planning, write application and aggregation tie-breaks. Fixed inputs and
// node behaviors therefore yield identical final channel states and step
// counts at any worker pool size.
//
// # Termination
//
// A run ends when planning finds no active nodes and no pending sends, when
// the configured termination channel is written, when the step budget is
// exceeded (StepLimitExceeded, bounding otherwise infinite cycles), or when
// a critical node error propagates. In the error cases the last successful
// checkpoint remains valid for resume.
//
// # Resume and time travel
//
// Resume restores the channel registry and pending work from a checkpoint
// and continues planning at the following step. Resuming a historical
// checkpoint forks a new, independent run id; stored history is never
// mutated.
package engine
