package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/stategraph/channel"
	"github.com/hupe1980/stategraph/core"
	"github.com/hupe1980/stategraph/graph"
	"github.com/hupe1980/stategraph/runner"
)

// run holds the mutable state of one graph execution. It is only ever
// touched by the scheduler goroutine; tasks see immutable snapshots.
type run struct {
	id       string
	registry *channel.Registry

	step         int
	changed      []string    // channels updated by the previous step
	pendingSends []core.Send // unconsumed dynamic send directives
	pendingNodes []string    // branch-forced activations for the next step

	lastCheckpointID string
	observer         core.Observer

	input  map[string]any
	seeded bool
}

func (e *Engine) newRun(input map[string]any) (*run, error) {
	reg, err := e.graph.NewRegistry()
	if err != nil {
		return nil, err
	}

	entry := e.graph.EntryChannels()
	for id := range input {
		if _, ok := reg.Get(id); !ok {
			return nil, fmt.Errorf("input references unknown channel %s", id)
		}
		if len(entry) > 0 && !e.graph.IsEntryChannel(id) {
			return nil, fmt.Errorf("input channel %s is not an entry channel", id)
		}
	}

	return &run{
		id:       core.NewID(),
		registry: reg,
		input:    input,
		observer: e.observer,
	}, nil
}

// execute drives the superstep loop to DONE or a terminal error. Phases:
// Plan computes the active task set, Execute runs it through the runner,
// Update applies buffered writes in registration order, then the state is
// checkpointed before the next plan.
func (e *Engine) execute(ctx context.Context, r *run) (*Result, error) {
	if !r.seeded {
		if err := e.seed(ctx, r); err != nil {
			return nil, err
		}
	}

	for {
		if ctx.Err() != nil {
			return nil, &core.RunError{RunID: r.id, Step: r.step, Err: ctx.Err()}
		}

		tasks := e.plan(r)
		if len(tasks) == 0 {
			e.logger.Info("run completed run_id=%s steps=%d", r.id, r.step)
			return e.result(r), nil
		}

		next := r.step + 1
		if e.config.MaxSteps > 0 && next > e.config.MaxSteps {
			e.logger.Error("run exceeded step limit run_id=%s max_steps=%d", r.id, e.config.MaxSteps)
			// The state reached at the limit is valid and checkpointed;
			// surface it alongside the error so cycles can be inspected.
			return e.result(r), &core.RunError{RunID: r.id, Step: next, Err: core.ErrStepLimitExceeded}
		}

		if err := e.step(ctx, r, next, tasks); err != nil {
			return nil, err
		}

		if e.config.TerminationChannel != "" && containsString(r.changed, e.config.TerminationChannel) {
			e.logger.Info("run terminated by channel run_id=%s channel=%s", r.id, e.config.TerminationChannel)
			return e.result(r), nil
		}
	}
}

// step executes one superstep: runner execution, result triage, update phase
// and checkpoint. A critical failure aborts without applying any writes, so
// the last good checkpoint stays authoritative.
func (e *Engine) step(ctx context.Context, r *run, next int, tasks []core.Task) error {
	started := time.Now()
	e.notifyStep(r, core.EventStepStart, next, nil, nil)

	stepCtx := ctx
	if e.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		defer cancel()
	}

	results := e.runner.Execute(stepCtx, r.id, tasks, r.observer)

	if ctx.Err() != nil {
		return &core.RunError{RunID: r.id, Step: next, Err: ctx.Err()}
	}
	if stepCtx.Err() != nil {
		return &core.RunError{RunID: r.id, Step: next, Err: fmt.Errorf("step exceeded %s: %w", e.config.StepTimeout, core.ErrStepTimeout)}
	}

	sends, branchTargets, errorWrites, critical := e.triage(r, next, results)
	if critical != nil {
		e.notifyStep(r, core.EventError, next, nil, critical)
		return &core.RunError{RunID: r.id, Node: critical.Node, Step: next, Err: critical}
	}

	intents := e.orderIntents(results)
	if len(errorWrites) > 0 {
		intents = append(intents, channel.WriteIntent{Node: graph.Start, Channel: graph.ErrorChannel, Values: errorWrites})
	}

	changed, err := r.registry.ApplyUpdates(intents)
	if err != nil {
		e.notifyStep(r, core.EventError, next, nil, err)
		return &core.RunError{RunID: r.id, Step: next, Err: err}
	}

	r.step = next
	r.changed = changed
	r.pendingSends = sends
	r.pendingNodes = branchTargets

	e.notifyStep(r, core.EventStepEnd, next, changed, nil)
	e.logger.Debug("engine superstep completed run_id=%s step=%d tasks=%d updated=%d duration=%s",
		r.id, next, len(tasks), len(changed), time.Since(started))

	return e.saveCheckpoint(ctx, r)
}

// plan computes the active task set for the next step in node registration
// order: nodes whose trigger set intersects the previously changed channels,
// nodes forced by branch selections, then send-dispatched tasks in emission
// order. Pending work is consumed exactly once.
func (e *Engine) plan(r *run) []core.Task {
	next := r.step + 1

	activated := make(map[string]struct{})
	for _, id := range e.graph.ActiveNodes(r.changed) {
		activated[id] = struct{}{}
	}
	for _, id := range r.pendingNodes {
		activated[id] = struct{}{}
	}

	var tasks []core.Task
	for _, spec := range e.graph.Nodes() {
		if _, ok := activated[spec.ID]; !ok {
			continue
		}
		tasks = append(tasks, core.Task{
			ID:       core.NewID(),
			Node:     spec.ID,
			Step:     next,
			Snapshot: e.snapshotFor(r, &spec),
		})
	}
	for _, send := range r.pendingSends {
		tasks = append(tasks, core.Task{
			ID:       core.NewID(),
			Node:     send.Node,
			Step:     next,
			Snapshot: core.NewSendSnapshot(send.Payload),
			FromSend: true,
		})
	}

	r.pendingSends = nil
	r.pendingNodes = nil

	return tasks
}

// snapshotFor builds the read view for one node: all set channels by
// default, or the declared trigger+read set when the node scopes its reads.
func (e *Engine) snapshotFor(r *run, spec *graph.NodeSpec) core.Snapshot {
	if len(spec.Opts.Reads) == 0 {
		return r.registry.Snapshot()
	}
	ids := make([]string, 0, len(spec.Opts.Triggers)+len(spec.Opts.Reads))
	ids = append(ids, spec.Opts.Triggers...)
	ids = append(ids, spec.Opts.Reads...)
	return r.registry.Snapshot(ids...)
}

// triage walks results in task order, separating sends and branch targets
// from failures. Critical node errors and timeouts abort the step; other
// node errors become records for the reserved error channel.
func (e *Engine) triage(r *run, step int, results []runner.TaskResult) (sends []core.Send, branchTargets []string, errorWrites []any, critical *core.NodeError) {
	seenTargets := make(map[string]struct{})

	for i := range results {
		res := &results[i]
		if res.Err != nil {
			var nodeErr *core.NodeError
			if !errors.As(res.Err, &nodeErr) {
				nodeErr = &core.NodeError{Node: res.Task.Node, Step: step, Critical: true, Err: res.Err}
			}
			if nodeErr.Critical || errors.Is(nodeErr, core.ErrNodeTimeout) {
				if critical == nil {
					critical = nodeErr
				}
				continue
			}
			errorWrites = append(errorWrites, core.NodeFailure{Node: nodeErr.Node, Step: nodeErr.Step, Message: nodeErr.Err.Error()})
			e.notifyStep(r, core.EventError, step, nil, nodeErr)
			e.logger.Warn("non-critical node failure recorded node=%s step=%d error=%v", nodeErr.Node, step, nodeErr.Err)
			continue
		}

		sends = append(sends, res.Result.Sends...)

		spec, ok := e.graph.Node(res.Task.Node)
		if !ok || spec.Branch == nil {
			continue
		}
		for _, target := range spec.Branch(res.Task.Snapshot, res.Result) {
			if _, dup := seenTargets[target]; dup {
				continue
			}
			seenTargets[target] = struct{}{}
			branchTargets = append(branchTargets, target)
		}
	}

	return sends, branchTargets, errorWrites, critical
}

// orderIntents flattens successful task writes into registry write intents
// ordered by writer registration order, then task order, then the writer's
// declared channel order. This fixed ordering is what makes aggregation
// reproducible across worker pool sizes.
func (e *Engine) orderIntents(results []runner.TaskResult) []channel.WriteIntent {
	var intents []channel.WriteIntent
	for _, spec := range e.graph.Nodes() {
		for i := range results {
			res := &results[i]
			if res.Err != nil || res.Task.Node != spec.ID {
				continue
			}
			for _, ch := range spec.Opts.Writes {
				if values, ok := res.Result.Writes[ch]; ok && len(values) > 0 {
					intents = append(intents, channel.WriteIntent{Node: spec.ID, Channel: ch, Values: values})
				}
			}
		}
	}
	return intents
}

// seed applies the Start pseudo-node's input writes as the step 0 update and
// checkpoints the seeded state.
func (e *Engine) seed(ctx context.Context, r *run) error {
	var intents []channel.WriteIntent
	for _, id := range r.registry.IDs() {
		if value, ok := r.input[id]; ok {
			intents = append(intents, channel.WriteIntent{Node: graph.Start, Channel: id, Values: []any{value}})
		}
	}

	changed, err := r.registry.ApplyUpdates(intents)
	if err != nil {
		return &core.RunError{RunID: r.id, Step: 0, Err: err}
	}

	r.changed = changed
	r.seeded = true
	r.input = nil

	e.logger.Debug("engine seeded run run_id=%s channels=%d", r.id, len(changed))

	return e.saveCheckpoint(ctx, r)
}

// saveCheckpoint freezes the registry plus pending work. Save failures are
// handled per the configured policy and never corrupt in-memory state.
func (e *Engine) saveCheckpoint(ctx context.Context, r *run) error {
	snapshots, versions := r.registry.Checkpoint()
	cp := &core.Checkpoint{
		ID:              core.NewID(),
		RunID:           r.id,
		Step:            r.step,
		Channels:        snapshots,
		UpdatedChannels: append([]string(nil), r.changed...),
		PendingSends:    append([]core.Send(nil), r.pendingSends...),
		PendingNodes:    append([]string(nil), r.pendingNodes...),
		Versions:        versions,
		CreatedAt:       time.Now().UTC(),
	}

	started := time.Now()
	id, err := e.checkpointer.Save(ctx, cp)

	ev := core.NewEvent(core.EventCheckpoint, r.id, r.step)
	ev.CheckpointID = id
	ev.Err = err
	e.notify(r, ev)

	if err != nil {
		var ioErr *core.CheckpointIOError
		if !errors.As(err, &ioErr) {
			err = &core.CheckpointIOError{Op: "save", Err: err}
		}
		if e.config.CheckpointFailure == CheckpointAbort {
			return &core.RunError{RunID: r.id, Step: r.step, Err: err}
		}
		e.logger.Warn("checkpoint save failed, continuing uncheckpointed run_id=%s step=%d error=%v", r.id, r.step, err)
		return nil
	}

	r.lastCheckpointID = id
	e.logger.Debug("checkpoint saved run_id=%s step=%d checkpoint_id=%s duration=%s", r.id, r.step, id, time.Since(started))
	return nil
}

func (e *Engine) result(r *run) *Result {
	return &Result{
		RunID:            r.id,
		Steps:            r.step,
		Values:           r.registry.Values(),
		LastCheckpointID: r.lastCheckpointID,
	}
}

func (e *Engine) notifyStep(r *run, eventType core.EventType, step int, updated []string, err error) {
	ev := core.NewEvent(eventType, r.id, step)
	ev.UpdatedChannels = updated
	ev.Err = err
	e.notify(r, ev)
}

func (e *Engine) notify(r *run, ev core.Event) {
	if r.observer != nil {
		r.observer.Notify(ev)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
