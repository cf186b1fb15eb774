// Package runner implements the execute phase of the superstep loop: it runs
// the planned task set against read-only snapshots with bounded worker
// parallelism, per-task timeouts and panic isolation.
//
// Responsibilities (abridged)
//   - Bounded concurrent dispatch with deterministic result ordering
//   - Per-task timeout enforcement independent of node cooperation
//   - In-step retry for transient failures when a retry policy is declared
//   - Wrapping failures as core.NodeError carrying node id, step and criticality
//
// The runner never mutates channel state; node outputs stay buffered until
// the engine applies them in the update phase.
package runner
