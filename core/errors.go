package core

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the engine. Wrap with fmt.Errorf("...: %w", err)
// at boundaries so callers can match with errors.Is.
var (
	// ErrStepLimitExceeded signals a non-terminating cycle bounded by the
	// configured step budget. The state reached at the limit remains valid
	// and checkpointed.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrNodeTimeout is returned when a single task exceeds its configured
	// execution timeout.
	ErrNodeTimeout = errors.New("node timeout")

	// ErrStepTimeout is returned when an entire superstep exceeds its
	// configured deadline.
	ErrStepTimeout = errors.New("step timeout")

	// ErrNonRetriable is returned when a resume would re-execute a node that
	// declared itself non-retriable.
	ErrNonRetriable = errors.New("node is not retriable")

	// ErrCheckpointNotFound is returned by Checkpointer implementations when
	// no checkpoint matches the requested id or run.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// NodeError wraps a failure produced by a single node task. Whether it is
// terminal depends on the node's criticality: critical node errors abort the
// run after the current step drains, non-critical ones are recorded into the
// reserved error channel and the run continues.
type NodeError struct {
	Node     string
	Step     int
	Critical bool
	Err      error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed at step %d: %v", e.Node, e.Step, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As matching.
func (e *NodeError) Unwrap() error { return e.Err }

// NodeFailure is the serializable record written into the reserved error
// channel when a non-critical node fails, visible to downstream nodes for
// in-graph error handling.
type NodeFailure struct {
	Node    string `json:"node"`
	Step    int    `json:"step"`
	Message string `json:"message"`
}

// ChannelPolicyViolation is returned when buffered writes cannot be applied
// under a channel's update policy, e.g. two LastValue writers in one step
// without an explicit override. A policy violation fails the step.
type ChannelPolicyViolation struct {
	Channel string
	Reason  string
}

// Error implements the error interface.
func (e *ChannelPolicyViolation) Error() string {
	return fmt.Sprintf("channel %s policy violation: %s", e.Channel, e.Reason)
}

// CheckpointIOError wraps a storage failure during checkpoint save or load.
// Depending on configuration the run either aborts or continues uncheckpointed;
// in-memory state is never corrupted by a failed save.
type CheckpointIOError struct {
	Op  string // "save" or "load"
	Err error
}

// Error implements the error interface.
func (e *CheckpointIOError) Error() string {
	return fmt.Sprintf("checkpoint %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As matching.
func (e *CheckpointIOError) Unwrap() error { return e.Err }

// RunError is the terminal error surfaced to callers when a run ends in the
// ERROR state. It carries the failing node id (if any), the step number and
// the underlying cause. The last successful checkpoint remains valid for
// resume.
type RunError struct {
	RunID string
	Node  string
	Step  int
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("run %s failed at step %d (node %s): %v", e.RunID, e.Step, e.Node, e.Err)
	}
	return fmt.Sprintf("run %s failed at step %d: %v", e.RunID, e.Step, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As matching.
func (e *RunError) Unwrap() error { return e.Err }
