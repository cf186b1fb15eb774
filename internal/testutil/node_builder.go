package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/stategraph/core"
)

// StaticNode returns a node that always proposes the same writes.
func StaticNode(writes map[string][]any) core.NodeFunc {
	return func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
		var res core.NodeResult
		for ch, vals := range writes {
			res.Write(ch, vals...)
		}
		return res, nil
	}
}

// FailingNode returns a node that always fails with the given error.
func FailingNode(err error) core.NodeFunc {
	return func(_ context.Context, _ core.Snapshot) (core.NodeResult, error) {
		return core.NodeResult{}, err
	}
}

// SlowNode wraps a node with an artificial delay, honoring cancellation.
func SlowNode(delay time.Duration, inner core.Node) core.NodeFunc {
	return func(ctx context.Context, snapshot core.Snapshot) (core.NodeResult, error) {
		select {
		case <-ctx.Done():
			return core.NodeResult{}, ctx.Err()
		case <-time.After(delay):
		}
		return inner.Invoke(ctx, snapshot)
	}
}

// FlakyNode fails the first n invocations, then delegates to inner. Useful
// for exercising retry policies.
func FlakyNode(n int, err error, inner core.Node) core.NodeFunc {
	var mu sync.Mutex
	remaining := n

	return func(ctx context.Context, snapshot core.Snapshot) (core.NodeResult, error) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()

		if fail {
			return core.NodeResult{}, err
		}
		return inner.Invoke(ctx, snapshot)
	}
}

// Recorder captures node invocations so tests can assert scheduling order
// and counts. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

// Wrap returns a node that records the given name before delegating.
func (r *Recorder) Wrap(name string, inner core.Node) core.NodeFunc {
	return func(ctx context.Context, snapshot core.Snapshot) (core.NodeResult, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()

		return inner.Invoke(ctx, snapshot)
	}
}

// Calls returns a copy of the recorded invocation names in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.calls))
	copy(out, r.calls)

	return out
}

// Count returns how many invocations were recorded for the given name.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}

	return n
}
