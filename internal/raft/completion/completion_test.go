package completion

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raftio/internal/raft"
)

// captureLog redirects the standard logger into a buffer for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestFlushCompletion_Success(t *testing.T) {
	id := raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 5}
	fc, rx := NewFlushCompletion(id)

	assert.Equal(t, id, fc.LogIOID())

	fc.Complete(nil)

	res, open := <-rx.C()
	require.True(t, open)
	assert.NoError(t, res.Err)
	// The delivered identity always equals the bound identity
	assert.Equal(t, id, res.LogIOID)

	// Exactly one message, then the channel is closed
	_, open = <-rx.C()
	assert.False(t, open)
}

func TestFlushCompletion_Failure(t *testing.T) {
	buf := captureLog(t)

	id := raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 6}
	fc, rx := NewFlushCompletion(id)

	ioErr := &raft.IOError{Op: "flush", Err: errors.New("disk full")}
	fc.Complete(ioErr)

	res, open := <-rx.C()
	require.True(t, open)
	require.Error(t, res.Err)
	assert.Equal(t, ioErr, res.Err)
	assert.ErrorContains(t, res.Err, "disk full")
	assert.Equal(t, id, res.LogIOID)

	// An error log entry referencing the failing request was emitted
	assert.Contains(t, buf.String(), "index=6")
	assert.Contains(t, buf.String(), "disk full")
}

func TestFlushCompletion_AbandonedReceiver(t *testing.T) {
	buf := captureLog(t)

	id := raft.LogIOID{Vote: raft.Vote{Term: 2, LeaderID: "s1"}, Index: 3}
	fc, rx := NewFlushCompletion(id)

	rx.Abandon()

	// Must not panic; observable only as a logged event
	assert.NotPanics(t, func() {
		fc.Complete(nil)
	})
	assert.Contains(t, buf.String(), "receiver is gone")
}

func TestFlushCompletion_DoubleInvocationIsNoOp(t *testing.T) {
	buf := captureLog(t)

	id := raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 9}
	fc, rx := NewFlushCompletion(id)

	fc.Complete(nil)
	fc.Complete(errors.New("should be ignored"))

	res, open := <-rx.C()
	require.True(t, open)
	assert.NoError(t, res.Err)

	_, open = <-rx.C()
	assert.False(t, open)
	assert.Contains(t, buf.String(), "invoked more than once")
}

func TestApplyCompletion_Success(t *testing.T) {
	lastLogID := raft.LogID{Term: 1, Index: 10}
	ac, rx := NewApplyCompletion(lastLogID)

	assert.Equal(t, lastLogID, ac.LastLogID())

	responses := []raft.Response{
		raft.Response("r1"),
		raft.Response("r2"),
		raft.Response("r3"),
	}
	ac.Complete(responses, nil)

	res, open := <-rx.C()
	require.True(t, open)
	assert.NoError(t, res.Err)
	assert.Equal(t, lastLogID, res.LastLogID)
	// One response per applied entry, in submission order
	require.Len(t, res.Responses, 3)
	assert.Equal(t, raft.Response("r1"), res.Responses[0])
	assert.Equal(t, raft.Response("r2"), res.Responses[1])
	assert.Equal(t, raft.Response("r3"), res.Responses[2])

	_, open = <-rx.C()
	assert.False(t, open)
}

func TestApplyCompletion_Failure(t *testing.T) {
	buf := captureLog(t)

	lastLogID := raft.LogID{Term: 2, Index: 20}
	ac, rx := NewApplyCompletion(lastLogID)

	storageErr := &raft.StorageError{
		Component: "state_machine",
		LogID:     lastLogID,
		Err:       errors.New("apply aborted"),
	}
	ac.Complete(nil, storageErr)

	res, open := <-rx.C()
	require.True(t, open)
	assert.Equal(t, storageErr, res.Err)
	assert.Empty(t, res.Responses)
	assert.Equal(t, lastLogID, res.LastLogID)

	// The log line identifies the last LogID the batch was attempting to reach
	assert.Contains(t, buf.String(), "index=20")
}

func TestApplyCompletion_AbandonedReceiver(t *testing.T) {
	buf := captureLog(t)

	ac, rx := NewApplyCompletion(raft.LogID{Term: 1, Index: 4})
	rx.Abandon()

	assert.NotPanics(t, func() {
		ac.Complete([]raft.Response{raft.Response("r")}, nil)
	})
	assert.Contains(t, buf.String(), "receiver is gone")
}

func TestApplyCompletion_DoubleInvocationIsNoOp(t *testing.T) {
	buf := captureLog(t)

	ac, rx := NewApplyCompletion(raft.LogID{Term: 1, Index: 7})

	ac.Complete([]raft.Response{raft.Response("first")}, nil)
	ac.Complete([]raft.Response{raft.Response("second")}, nil)

	res, open := <-rx.C()
	require.True(t, open)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, raft.Response("first"), res.Responses[0])

	_, open = <-rx.C()
	assert.False(t, open)
	assert.Contains(t, buf.String(), "invoked more than once")
}
