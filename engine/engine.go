package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/stategraph/checkpoint"
	"github.com/hupe1980/stategraph/core"
	"github.com/hupe1980/stategraph/graph"
	"github.com/hupe1980/stategraph/logging"
	"github.com/hupe1980/stategraph/runner"
)

// CheckpointFailurePolicy decides how the scheduler reacts when a checkpoint
// save fails.
type CheckpointFailurePolicy int

const (
	// CheckpointAbort ends the run with a CheckpointIOError. The in-memory
	// state of the failed step is discarded; the last good checkpoint
	// remains valid.
	CheckpointAbort CheckpointFailurePolicy = iota

	// CheckpointContinue surfaces the CheckpointIOError through the observer
	// and log and continues the run uncheckpointed.
	CheckpointContinue
)

// Config defines tuning parameters for the scheduler's operational behavior.
//
// Additional concerns such as custom checkpoint backends, observers, and
// logging are configured via functional options rather than expanding this
// struct.
type Config struct {
	// MaxSteps bounds the number of supersteps, turning otherwise infinite
	// cycles into a StepLimitExceeded error. Zero means unbounded.
	MaxSteps int

	// MaxConcurrency limits the worker pool used for the execute phase.
	// Zero means one worker per task.
	MaxConcurrency int

	// NodeTimeout limits each task's execution. Zero disables the limit.
	NodeTimeout time.Duration

	// StepTimeout limits a whole superstep's execute phase. Zero disables
	// the limit. Exceeding it is fatal.
	StepTimeout time.Duration

	// EventBufferSize sets the channel buffer size used by Stream.
	EventBufferSize int

	// TerminationChannel optionally names a channel whose write cleanly ends
	// the run after that step's update phase.
	TerminationChannel string

	// CheckpointFailure selects the reaction to checkpoint save errors.
	CheckpointFailure CheckpointFailurePolicy
}

// DefaultConfig provides safe default configuration values: a conservative
// step budget so accidental cycles terminate, bounded concurrency, and
// abort-on-checkpoint-failure so resumability is never silently lost.
var DefaultConfig = Config{
	MaxSteps:        25,
	MaxConcurrency:  10,
	EventBufferSize: 100,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for the scheduler.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Checkpointer persists step-boundary snapshots.
	// Defaults to an in-memory implementation if not provided.
	Checkpointer core.Checkpointer

	// Observer receives best-effort step/task events. Optional.
	Observer core.Observer

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Engine drives the superstep loop for one compiled graph: Plan computes the
// active node set from the channels changed in the previous step, Execute
// runs it concurrently against immutable snapshots, Update applies buffered
// writes through each channel's policy in node registration order, then a
// checkpoint is saved. Runs are deterministic for fixed inputs and node
// behaviors regardless of worker pool size, because ordering decisions are
// fixed to registration order rather than completion order.
type Engine struct {
	graph        *graph.Graph
	config       Config
	checkpointer core.Checkpointer
	observer     core.Observer
	logger       logging.Logger
	runner       *runner.Runner

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New creates an Engine for the given compiled graph with optional overrides.
func New(g *graph.Graph, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:       DefaultConfig,
		Checkpointer: checkpoint.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(g, func(o *runner.Options) {
		o.MaxConcurrency = opts.Config.MaxConcurrency
		o.NodeTimeout = opts.Config.NodeTimeout
		o.Logger = opts.Logger
	})

	return &Engine{
		graph:        g,
		config:       opts.Config,
		checkpointer: opts.Checkpointer,
		observer:     opts.Observer,
		logger:       opts.Logger,
		runner:       r,
		activeRuns:   make(map[string]context.CancelFunc),
	}
}

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithCheckpointer overrides the checkpoint backend.
func WithCheckpointer(cp core.Checkpointer) func(o *Options) {
	return func(o *Options) { o.Checkpointer = cp }
}

// WithObserver attaches a step/task event observer.
func WithObserver(obs core.Observer) func(o *Options) {
	return func(o *Options) { o.Observer = obs }
}

// WithLogger overrides the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Result is the final outcome of a completed run.
type Result struct {
	// RunID identifies the run that produced this result.
	RunID string
	// Steps is the number of executed supersteps (the seeding update is step 0).
	Steps int
	// Values holds the final value of every set channel.
	Values map[string]any
	// LastCheckpointID references the final checkpoint, empty if
	// checkpointing was disabled or failed under CheckpointContinue.
	LastCheckpointID string
}

// Run executes the graph to completion with the given input seeding the
// entry channels at step 0. It blocks until the run reaches DONE or a
// terminal error.
func (e *Engine) Run(ctx context.Context, input map[string]any) (*Result, error) {
	r, err := e.newRun(input)
	if err != nil {
		return nil, err
	}
	return e.track(ctx, r)
}

// Stream executes the graph asynchronously, returning the run id, a stream
// of step/task events and a terminal error channel. The event channel is
// closed when the run completes; the error channel (buffered size 1)
// receives the terminal error, if any.
func (e *Engine) Stream(ctx context.Context, input map[string]any) (string, <-chan core.Event, <-chan error, error) {
	r, err := e.newRun(input)
	if err != nil {
		return "", nil, nil, err
	}

	obs := core.NewChannelObserver(e.config.EventBufferSize)
	r.observer = multiObserver{obs, e.observer}

	eventsCh := make(chan core.Event, e.config.EventBufferSize)
	errorsCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.activeRuns[r.id] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.activeRuns, r.id)
			e.mu.Unlock()
			cancel()
			obs.Close()
		}()
		if _, err := e.execute(runCtx, r); err != nil {
			errorsCh <- err
		}
	}()

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()
		for ev := range obs.Events() {
			// Best effort: a slow consumer sees dropped events, never a
			// stalled scheduler.
			select {
			case eventsCh <- ev:
			default:
			}
		}
	}()

	return r.id, eventsCh, errorsCh, nil
}

// Resume loads a checkpoint by id and continues execution from the step
// after it. Resuming a historical checkpoint forks a new, independent run;
// the original run's checkpoint history is never mutated.
func (e *Engine) Resume(ctx context.Context, checkpointID string) (*Result, error) {
	cp, err := e.checkpointer.Load(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return e.resumeFrom(ctx, cp)
}

// ResumeLatest continues the given run from its most recent checkpoint,
// forking a new run id.
func (e *Engine) ResumeLatest(ctx context.Context, runID string) (*Result, error) {
	cp, err := e.checkpointer.Latest(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return e.resumeFrom(ctx, cp)
}

// Cancel stops a running Stream invocation by its run id.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	cancel, exists := e.activeRuns[runID]
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()
	return nil
}

// Graph returns the compiled graph this engine executes.
func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) resumeFrom(ctx context.Context, cp *core.Checkpoint) (*Result, error) {
	if err := e.checkRetriable(cp); err != nil {
		return nil, err
	}

	reg, err := e.graph.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := reg.Restore(cp.Channels); err != nil {
		return nil, fmt.Errorf("failed to restore channels: %w", err)
	}

	r := &run{
		id:           core.NewID(), // fork: never continue under the original run id
		registry:     reg,
		step:         cp.Step,
		changed:      append([]string(nil), cp.UpdatedChannels...),
		pendingSends: append([]core.Send(nil), cp.PendingSends...),
		pendingNodes: append([]string(nil), cp.PendingNodes...),
		observer:     e.observer,
		seeded:       true, // the checkpoint already carries the seeded state
	}

	e.logger.Info("resuming run from checkpoint checkpoint_id=%s step=%d new_run_id=%s", cp.ID, cp.Step, r.id)

	return e.track(ctx, r)
}

// checkRetriable fails fast if continuing from the checkpoint would
// re-execute a node that declared itself non-retriable.
func (e *Engine) checkRetriable(cp *core.Checkpoint) error {
	activated := e.graph.ActiveNodes(cp.UpdatedChannels)
	activated = append(activated, cp.PendingNodes...)
	for _, send := range cp.PendingSends {
		activated = append(activated, send.Node)
	}
	for _, id := range activated {
		if spec, ok := e.graph.Node(id); ok && spec.Opts.NonRetriable {
			return fmt.Errorf("resume would re-execute node %s: %w", id, core.ErrNonRetriable)
		}
	}
	return nil
}

func (e *Engine) track(ctx context.Context, r *run) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.activeRuns[r.id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.activeRuns, r.id)
		e.mu.Unlock()
	}()

	return e.execute(runCtx, r)
}

// multiObserver fans one event out to several observers, skipping nils.
type multiObserver []core.Observer

func (m multiObserver) Notify(event core.Event) {
	for _, obs := range m {
		if obs != nil {
			obs.Notify(event)
		}
	}
}
