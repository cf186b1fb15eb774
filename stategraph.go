// Package stategraph provides a high-level façade over the graph builder and
// the superstep engine for building deterministic, checkpointed stateful
// workflows. Most applications interact with this package by:
//  1. Composing a graph via graph.NewBuilder (channels, nodes, branches)
//  2. Creating a StateGraph via New() with the compiled graph
//  3. Running it synchronously (Run), as an event stream (Stream) or from a
//     stored checkpoint (Resume)
//
// The façade delegates scheduling to engine.Engine while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a durable checkpointer and a
// structured logger.
package stategraph

import (
	"context"

	"github.com/hupe1980/stategraph/checkpoint"
	"github.com/hupe1980/stategraph/core"
	"github.com/hupe1980/stategraph/engine"
	"github.com/hupe1980/stategraph/graph"
	"github.com/hupe1980/stategraph/logging"
)

// Options configures the StateGraph instance.
type Options struct {
	// Engine configuration (step budget, concurrency, timeouts)
	EngineConfig engine.Config

	// Checkpointer persists a checkpoint after every superstep. Defaults
	// to an in-memory store.
	Checkpointer core.Checkpointer

	// Observer receives lifecycle events from every run.
	Observer core.Observer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// StateGraph is the high-level façade aggregating a compiled graph and its
// engine.
type StateGraph struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new StateGraph for the given compiled graph with optional
// overrides. Any unset service is initialized with an in-memory
// implementation.
func New(g *graph.Graph, optFns ...func(o *Options)) *StateGraph {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Checkpointer: checkpoint.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(g, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Checkpointer = opts.Checkpointer
		o.Observer = opts.Observer
		o.Logger = opts.Logger
	})

	return &StateGraph{opts: opts, engine: e}
}

// Engine exposes the underlying engine for advanced control.
func (s *StateGraph) Engine() *engine.Engine { return s.engine }

// Run executes the graph to completion and returns the final channel values.
func (s *StateGraph) Run(ctx context.Context, input map[string]any) (*engine.Result, error) {
	return s.engine.Run(ctx, input)
}

// Stream starts an asynchronous run returning the run id plus event and
// error channels. The events channel is closed when the run ends; a
// terminal failure is delivered on the error channel.
func (s *StateGraph) Stream(ctx context.Context, input map[string]any) (string, <-chan core.Event, <-chan error, error) {
	return s.engine.Stream(ctx, input)
}

// RunCollect is a synchronous helper that drains the stream channels,
// accumulates events and returns the run id.
func (s *StateGraph) RunCollect(ctx context.Context, input map[string]any) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := s.engine.Stream(ctx, input)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event

	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return runID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				// Events channel closed - check for terminal error
				select {
				case err := <-errorsCh:
					return runID, events, err
				default:
					return runID, events, nil
				}
			}

			events = append(events, event)

		case err := <-errorsCh:
			if err != nil {
				return runID, events, err
			}
		}
	}
}

// Resume continues execution from the identified checkpoint under a new
// run id. Stored history is never mutated.
func (s *StateGraph) Resume(ctx context.Context, checkpointID string) (*engine.Result, error) {
	return s.engine.Resume(ctx, checkpointID)
}

// ResumeLatest continues execution from the most recent checkpoint of the
// given run.
func (s *StateGraph) ResumeLatest(ctx context.Context, runID string) (*engine.Result, error) {
	return s.engine.ResumeLatest(ctx, runID)
}

// Cancel aborts a running invocation by run id.
func (s *StateGraph) Cancel(runID string) error { return s.engine.Cancel(runID) }
