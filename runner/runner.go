package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/stategraph/core"
	"github.com/hupe1980/stategraph/graph"
	"github.com/hupe1980/stategraph/logging"
)

// TaskResult carries the outcome of one executed task. Results are returned
// indexed by task order, never by completion order, so downstream write
// application stays deterministic.
type TaskResult struct {
	Task     core.Task
	Result   core.NodeResult
	Err      error
	Duration time.Duration
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrency bounds the worker pool. Zero means one worker per task.
	MaxConcurrency int
	// NodeTimeout limits each task's execution. Zero disables the limit.
	NodeTimeout time.Duration
	// Logger receives per-task diagnostics.
	Logger logging.Logger
}

// Runner executes the active task set of one superstep with bounded worker
// parallelism. Node callables never see shared mutable state: each task gets
// a read-only snapshot and its writes stay buffered until the engine's
// update phase. Failures are isolated per task; criticality and step
// abortion are decided by the engine from the returned results.
type Runner struct {
	graph          *graph.Graph
	maxConcurrency int
	nodeTimeout    time.Duration
	logger         logging.Logger
}

// New constructs a Runner for the given compiled graph with optional overrides.
func New(g *graph.Graph, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		graph:          g,
		maxConcurrency: opts.MaxConcurrency,
		nodeTimeout:    opts.NodeTimeout,
		logger:         opts.Logger,
	}
}

// Execute runs all tasks concurrently and blocks until every dispatched task
// has finished. Cancellation stops new tasks from starting; tasks never
// dispatched report the context error. In-flight tasks either complete or
// cancel through their own context.
func (r *Runner) Execute(ctx context.Context, runID string, tasks []core.Task, obs core.Observer) []TaskResult {
	results := make([]TaskResult, len(tasks))

	limit := r.maxConcurrency
	if limit <= 0 {
		limit = len(tasks)
	}
	sem := make(chan struct{}, max(limit, 1))
	done := make(chan int, len(tasks))

	dispatched := 0
	for i := range tasks {
		if ctx.Err() != nil {
			results[i] = TaskResult{Task: tasks[i], Err: ctx.Err()}
			continue
		}
		sem <- struct{}{}
		dispatched++
		go func(idx int) {
			defer func() { <-sem }()
			results[idx] = r.runTask(ctx, runID, tasks[idx], obs)
			done <- idx
		}(i)
	}

	for i := 0; i < dispatched; i++ {
		<-done
	}

	return results
}

func (r *Runner) runTask(ctx context.Context, runID string, task core.Task, obs core.Observer) TaskResult {
	start := time.Now()

	spec, ok := r.graph.Node(task.Node)
	if !ok {
		return TaskResult{Task: task, Err: fmt.Errorf("unknown node %s", task.Node)}
	}

	r.notify(obs, core.EventTaskStart, runID, task, nil)
	r.logger.Debug("runner task started node=%s step=%d task_id=%s", task.Node, task.Step, task.ID)

	var (
		result core.NodeResult
		err    error
	)
	for attempt := 0; attempt <= spec.Opts.MaxRetries; attempt++ {
		result, err = r.invokeOnce(ctx, spec, task)
		if err == nil || ctx.Err() != nil {
			break
		}
		r.logger.Warn("runner task retrying node=%s step=%d attempt=%d error=%v", task.Node, task.Step, attempt+1, err)
	}

	if err == nil {
		err = r.graph.ValidateWrites(task.Node, result.Writes)
	}

	duration := time.Since(start)
	if err != nil {
		err = &core.NodeError{Node: task.Node, Step: task.Step, Critical: spec.Opts.Critical, Err: err}
		r.logger.Error("runner task failed node=%s step=%d error=%v", task.Node, task.Step, err)
	} else {
		r.logger.Debug("runner task finished node=%s step=%d duration=%s", task.Node, task.Step, duration)
	}
	r.notify(obs, core.EventTaskEnd, runID, task, err)

	return TaskResult{Task: task, Result: result, Err: err, Duration: duration}
}

// invokeOnce executes the node callable with the per-task timeout enforced
// externally, so even nodes that ignore their context cannot stall the step.
// A timed-out node keeps running detached until its own context cancellation
// takes effect; its result is discarded.
func (r *Runner) invokeOnce(ctx context.Context, spec *graph.NodeSpec, task core.Task) (core.NodeResult, error) {
	taskCtx := ctx
	if r.nodeTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, r.nodeTimeout)
		defer cancel()
	}

	type outcome struct {
		result core.NodeResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- outcome{err: fmt.Errorf("node panicked: %v", rec)}
			}
		}()
		res, err := spec.Node.Invoke(taskCtx, task.Snapshot)
		resultCh <- outcome{result: res, err: err}
	}()

	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return core.NodeResult{}, ctx.Err()
		}
		return core.NodeResult{}, fmt.Errorf("node %s exceeded %s: %w", task.Node, r.nodeTimeout, core.ErrNodeTimeout)
	}
}

func (r *Runner) notify(obs core.Observer, eventType core.EventType, runID string, task core.Task, err error) {
	if obs == nil {
		return
	}
	ev := core.NewEvent(eventType, runID, task.Step)
	ev.Node = task.Node
	ev.TaskID = task.ID
	ev.Err = err
	obs.Notify(ev)
}
