package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeResult_WriteAndAddSend(t *testing.T) {
	var res NodeResult

	res.Write("out", 1)
	res.Write("out", 2, 3)
	res.Write("other", "x")
	res.AddSend("worker", "payload")

	assert.Equal(t, []any{1, 2, 3}, res.Writes["out"])
	assert.Equal(t, []any{"x"}, res.Writes["other"])
	assert.Equal(t, []Send{{Node: "worker", Payload: "payload"}}, res.Sends)
}

func TestNodeFunc_ImplementsNode(t *testing.T) {
	fn := NodeFunc(func(_ context.Context, _ Snapshot) (NodeResult, error) {
		var res NodeResult
		res.Write("out", "ok")
		return res, nil
	})

	var n Node = fn
	res, err := n.Invoke(context.Background(), Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, res.Writes["out"])
}

func TestSnapshot_CopiesSourceMap(t *testing.T) {
	source := map[string]any{"a": 1}
	snap := NewSnapshot(source)

	source["a"] = 99
	source["b"] = 2

	v, ok := snap.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = snap.Get("b")
	assert.False(t, ok)

	assert.Equal(t, []string{"a"}, snap.Channels())
}

func TestSnapshot_Payload(t *testing.T) {
	plain := NewSnapshot(map[string]any{"a": 1})
	_, ok := plain.Payload()
	assert.False(t, ok)

	sent := NewSendSnapshot("work item")
	payload, ok := sent.Payload()
	assert.True(t, ok)
	assert.Equal(t, "work item", payload)
	assert.Empty(t, sent.Channels())
}

func TestNodeError_Unwrap(t *testing.T) {
	sentinel := errors.New("boom")
	err := &NodeError{Node: "worker", Step: 2, Critical: true, Err: sentinel}

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "worker")
	assert.Contains(t, err.Error(), "step 2")
}

func TestRunError_Unwrap(t *testing.T) {
	err := &RunError{RunID: "run-1", Step: 3, Err: ErrStepLimitExceeded}
	assert.ErrorIs(t, err, ErrStepLimitExceeded)

	withNode := &RunError{RunID: "run-1", Node: "worker", Step: 3, Err: ErrNodeTimeout}
	assert.Contains(t, withNode.Error(), "node worker")
}

func TestCheckpointIOError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &CheckpointIOError{Op: "save", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "save")
}

func TestCheckpoint_CloneIsDeep(t *testing.T) {
	cp := &Checkpoint{
		ID:    "cp-1",
		RunID: "run-1",
		Step:  2,
		Channels: map[string]ChannelSnapshot{
			"topic":   {Values: []any{"a", "b"}, IsSet: true, Version: 2},
			"barrier": {Seen: map[string]any{"alpha": 1}, Version: 1},
		},
		UpdatedChannels: []string{"topic"},
		PendingSends:    []Send{{Node: "worker", Payload: 1}},
		PendingNodes:    []string{"audit"},
		Versions:        map[string]uint64{"topic": 2, "barrier": 1},
		CreatedAt:       time.Now().UTC(),
	}

	clone := cp.Clone()
	require.Equal(t, cp, clone)

	clone.Channels["topic"].Values[0] = "tampered"
	clone.Channels["barrier"].Seen["alpha"] = 99
	clone.UpdatedChannels[0] = "tampered"
	clone.PendingSends[0].Node = "tampered"
	clone.PendingNodes[0] = "tampered"
	clone.Versions["topic"] = 99

	assert.Equal(t, []any{"a", "b"}, cp.Channels["topic"].Values)
	assert.Equal(t, 1, cp.Channels["barrier"].Seen["alpha"])
	assert.Equal(t, []string{"topic"}, cp.UpdatedChannels)
	assert.Equal(t, "worker", cp.PendingSends[0].Node)
	assert.Equal(t, []string{"audit"}, cp.PendingNodes)
	assert.Equal(t, uint64(2), cp.Versions["topic"])
}

func TestCheckpoint_CloneNil(t *testing.T) {
	var cp *Checkpoint
	assert.Nil(t, cp.Clone())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventStepStart, "run-1", 3)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventStepStart, ev.Type)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, 3, ev.Step)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	obs := NewChannelObserver(2)

	for i := 0; i < 5; i++ {
		obs.Notify(NewEvent(EventStepStart, "run-1", i))
	}
	obs.Close()

	var received []Event
	for ev := range obs.Events() {
		received = append(received, ev)
	}

	// Overflow is dropped, never blocked on.
	require.Len(t, received, 2)
	assert.Equal(t, 0, received[0].Step)
	assert.Equal(t, 1, received[1].Step)
}

func TestObserverFunc(t *testing.T) {
	var got Event
	obs := ObserverFunc(func(ev Event) { got = ev })

	obs.Notify(NewEvent(EventError, "run-1", 1))
	assert.Equal(t, EventError, got.Type)
}
