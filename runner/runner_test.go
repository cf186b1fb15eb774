package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/stategraph/channel"
	"github.com/hupe1980/stategraph/core"
	"github.com/hupe1980/stategraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, nodes map[string]core.Node, optFns map[string][]func(o *graph.NodeOptions), order []string) *graph.Graph {
	t.Helper()

	b := graph.NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddChannel("out", channel.Topic(true))

	for _, id := range order {
		opts := append([]func(o *graph.NodeOptions){
			graph.WithTriggers("in"),
			graph.WithWrites("out"),
		}, optFns[id]...)
		b.AddNode(id, nodes[id], opts...)
	}

	g, err := b.SetEntry("in").Compile()
	require.NoError(t, err)

	return g
}

func makeTasks(nodes ...string) []core.Task {
	tasks := make([]core.Task, 0, len(nodes))
	for _, n := range nodes {
		tasks = append(tasks, core.Task{
			ID:       core.NewID(),
			Node:     n,
			Step:     1,
			Snapshot: core.NewSnapshot(map[string]any{"in": "x"}),
		})
	}
	return tasks
}

func writerNode(value any) core.NodeFunc {
	return func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
		var res core.NodeResult
		res.Write("out", value)
		return res, nil
	}
}

func TestRunner_Execute_ResultsInTaskOrder(t *testing.T) {
	// The first node is slower than the second; results must still come back
	// in task order.
	nodes := map[string]core.Node{
		"slow": core.NodeFunc(func(ctx context.Context, _ core.Snapshot) (core.NodeResult, error) {
			time.Sleep(20 * time.Millisecond)
			var res core.NodeResult
			res.Write("out", "slow")
			return res, nil
		}),
		"fast": writerNode("fast"),
	}

	g := buildGraph(t, nodes, nil, []string{"slow", "fast"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("slow", "fast"), nil)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].Task.Node)
	assert.Equal(t, "fast", results[1].Task.Node)
	assert.Equal(t, []any{"slow"}, results[0].Result.Writes["out"])
	assert.Equal(t, []any{"fast"}, results[1].Result.Writes["out"])
}

func TestRunner_Execute_BoundedConcurrency(t *testing.T) {
	var current, peak int64
	var mu sync.Mutex

	node := core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()

		return core.NodeResult{}, nil
	})

	g, err := graph.NewBuilder().
		AddChannel("in", channel.LastValue()).
		AddNode("worker", node, graph.WithTriggers("in")).
		SetEntry("in").
		Compile()
	require.NoError(t, err)

	r := New(g, func(o *Options) {
		o.MaxConcurrency = 2
	})

	tasks := makeTasks("worker", "worker", "worker", "worker", "worker", "worker")
	r.Execute(context.Background(), "run-1", tasks, nil)

	assert.LessOrEqual(t, peak, int64(2))
}

func TestRunner_Execute_FailureIsolation(t *testing.T) {
	sentinel := errors.New("boom")

	nodes := map[string]core.Node{
		"ok":  writerNode("done"),
		"bad": core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
			return core.NodeResult{}, sentinel
		}),
	}

	g := buildGraph(t, nodes, nil, []string{"ok", "bad"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("ok", "bad"), nil)

	assert.NoError(t, results[0].Err)

	var nodeErr *core.NodeError
	require.ErrorAs(t, results[1].Err, &nodeErr)
	assert.Equal(t, "bad", nodeErr.Node)
	assert.False(t, nodeErr.Critical)
	assert.ErrorIs(t, results[1].Err, sentinel)
}

func TestRunner_Execute_CriticalFlagPropagated(t *testing.T) {
	nodes := map[string]core.Node{
		"bad": core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
			return core.NodeResult{}, errors.New("boom")
		}),
	}
	optFns := map[string][]func(o *graph.NodeOptions){
		"bad": {graph.AsCritical()},
	}

	g := buildGraph(t, nodes, optFns, []string{"bad"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("bad"), nil)

	var nodeErr *core.NodeError
	require.ErrorAs(t, results[0].Err, &nodeErr)
	assert.True(t, nodeErr.Critical)
}

func TestRunner_Execute_Retries(t *testing.T) {
	var attempts atomic.Int64

	nodes := map[string]core.Node{
		"flaky": core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
			if attempts.Add(1) < 3 {
				return core.NodeResult{}, errors.New("transient")
			}
			var res core.NodeResult
			res.Write("out", "finally")
			return res, nil
		}),
	}
	optFns := map[string][]func(o *graph.NodeOptions){
		"flaky": {graph.WithMaxRetries(3)},
	}

	g := buildGraph(t, nodes, optFns, []string{"flaky"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("flaky"), nil)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestRunner_Execute_UndeclaredWriteRejected(t *testing.T) {
	nodes := map[string]core.Node{
		"sneaky": core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
			var res core.NodeResult
			res.Write("in", "not allowed")
			return res, nil
		}),
	}

	g := buildGraph(t, nodes, nil, []string{"sneaky"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("sneaky"), nil)

	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "undeclared channel")
}

func TestRunner_Execute_NodeTimeout(t *testing.T) {
	nodes := map[string]core.Node{
		"stuck": core.NodeFunc(func(ctx context.Context, _ core.Snapshot) (core.NodeResult, error) {
			<-ctx.Done()
			return core.NodeResult{}, ctx.Err()
		}),
	}

	g := buildGraph(t, nodes, nil, []string{"stuck"})
	r := New(g, func(o *Options) {
		o.NodeTimeout = 20 * time.Millisecond
	})

	results := r.Execute(context.Background(), "run-1", makeTasks("stuck"), nil)

	assert.ErrorIs(t, results[0].Err, core.ErrNodeTimeout)
}

func TestRunner_Execute_PanicRecovered(t *testing.T) {
	nodes := map[string]core.Node{
		"panicky": core.NodeFunc(func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
			panic("kaboom")
		}),
	}

	g := buildGraph(t, nodes, nil, []string{"panicky"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("panicky"), nil)

	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "kaboom")
}

func TestRunner_Execute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nodes := map[string]core.Node{"worker": writerNode("x")}
	g := buildGraph(t, nodes, nil, []string{"worker"})
	r := New(g)

	results := r.Execute(ctx, "run-1", makeTasks("worker", "worker"), nil)

	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestRunner_Execute_TaskEvents(t *testing.T) {
	nodes := map[string]core.Node{"worker": writerNode("x")}
	g := buildGraph(t, nodes, nil, []string{"worker"})
	r := New(g)

	var mu sync.Mutex
	var types []core.EventType

	obs := core.ObserverFunc(func(ev core.Event) {
		mu.Lock()
		types = append(types, ev.Type)
		mu.Unlock()
	})

	r.Execute(context.Background(), "run-1", makeTasks("worker"), obs)

	assert.Equal(t, []core.EventType{core.EventTaskStart, core.EventTaskEnd}, types)
}

func TestRunner_Execute_UnknownNode(t *testing.T) {
	nodes := map[string]core.Node{"worker": writerNode("x")}
	g := buildGraph(t, nodes, nil, []string{"worker"})
	r := New(g)

	results := r.Execute(context.Background(), "run-1", makeTasks("ghost"), nil)

	require.Error(t, results[0].Err)
	assert.Equal(t, fmt.Sprintf("unknown node %s", "ghost"), results[0].Err.Error())
}
