package state_machine

import (
	"errors"
	"sync"

	"raftio/internal/raft"
	"raftio/internal/raft/completion"
)

// ErrEngineClosed is returned through apply completions for batches queued after Close.
var ErrEngineClosed = errors.New("apply engine is closed")

// DefaultApplyQueueDepth bounds how many apply batches may be queued before ApplyAsync applies
// backpressure to the caller.
const DefaultApplyQueueDepth = 64

// applyRequest is one queued batch for the apply worker.
type applyRequest struct {
	entries []raft.LogEntry
	done    *completion.ApplyCompletion
}

// ApplyEngine drives a StateMachine asynchronously. The consensus core hands over a batch of
// committed entries together with an ApplyCompletion handle; the engine applies the batch on its
// worker goroutine and invokes the handle exactly once with either the ordered per-entry
// responses or a storage error. Batches are applied strictly in submission order - the log order
// requirement of Section 5.3 from the [Raft paper](https://raft.github.io/raft.pdf).
type ApplyEngine struct {
	sm StateMachine

	// mu guards closed and the enqueue path so Close cannot race a send on the request channel.
	mu       sync.RWMutex
	closed   bool
	requests chan applyRequest
	wg       sync.WaitGroup
}

// NewApplyEngine creates an ApplyEngine around the given state machine and starts its apply
// worker. queueDepth <= 0 falls back to DefaultApplyQueueDepth.
func NewApplyEngine(sm StateMachine, queueDepth int) *ApplyEngine {
	if queueDepth <= 0 {
		queueDepth = DefaultApplyQueueDepth
	}

	e := &ApplyEngine{
		sm:       sm,
		requests: make(chan applyRequest, queueDepth),
	}
	e.wg.Add(1)
	go e.applyLoop()
	return e
}

// ApplyAsync queues a batch for application. done is invoked exactly once: with the per-entry
// responses on success, or with a StorageError if the state machine fails or the engine is
// already closed. A full queue blocks the caller until the worker catches up.
func (e *ApplyEngine) ApplyAsync(entries []raft.LogEntry, done *completion.ApplyCompletion) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		done.Complete(nil, &raft.StorageError{
			Component: "state_machine",
			LogID:     done.LastLogID(),
			Err:       ErrEngineClosed,
		})
		return
	}
	e.requests <- applyRequest{entries: entries, done: done}
	e.mu.RUnlock()
}

// applyLoop is the apply worker. It should be called as a goroutine; it exits when the request
// channel is closed and drained.
func (e *ApplyEngine) applyLoop() {
	defer e.wg.Done()

	for req := range e.requests {
		responses, err := e.sm.Apply(req.entries)
		if err != nil {
			req.done.Complete(nil, &raft.StorageError{
				Component: "state_machine",
				LogID:     req.done.LastLogID(),
				Err:       err,
			})
			continue
		}
		req.done.Complete(responses, nil)
	}
}

// Close stops accepting batches, waits for the worker to drain and resolve every queued request,
// then returns.
func (e *ApplyEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.requests)
	e.mu.Unlock()

	e.wg.Wait()
}
