package completion

import (
	"log"
	"sync/atomic"

	"raftio/internal/raft"
)

// FlushResult is the terminal outcome of one log flush request, delivered over the request's
// notification cell. On success Err is nil and LogIOID identifies what is now durable - the
// consensus core receives the identity, not a boolean, so it can advance its per-epoch frontier
// precisely. On failure Err carries the structured IO error.
type FlushResult struct {
	LogIOID raft.LogIOID
	Err     error
}

// FlushCompletion is a one-shot callback handle for the completion of a log flush. The consensus
// core constructs it bound to a fresh notification cell and hands it to the log-store engine
// alongside the entries to persist. The engine must invoke Complete exactly once, when (and only
// when) the physical write or its failure is final.
type FlushCompletion struct {
	logIOID raft.LogIOID
	tx      *Sender[FlushResult]
	done    atomic.Bool
}

// NewFlushCompletion creates a FlushCompletion bound to the given LogIOID, together with the
// receiver the consensus core awaits the result on.
func NewFlushCompletion(logIOID raft.LogIOID) (*FlushCompletion, *Receiver[FlushResult]) {
	tx, rx := NewOneshot[FlushResult]()
	return &FlushCompletion{logIOID: logIOID, tx: tx}, rx
}

// LogIOID returns the identity of the flush request this handle is bound to.
func (c *FlushCompletion) LogIOID() raft.LogIOID {
	return c.logIOID
}

// Complete reports the flush outcome. A nil err means the entries covered by the bound LogIOID
// are durable on the storage medium; a non-nil err is forwarded to the consensus core so it can
// react at a higher level. This layer never retries.
//
// Delivery failure (the receiver already gave up, e.g. due to shutdown) is logged and otherwise
// ignored - not a fatal condition. Invoking the handle a second time is a programming error on
// the engine side and degrades to a logged no-op.
func (c *FlushCompletion) Complete(err error) {
	if !c.done.CompareAndSwap(false, true) {
		log.Printf("[FLUSH] Completion for %s invoked more than once, ignoring", c.logIOID)
		return
	}

	res := FlushResult{LogIOID: c.logIOID}
	if err != nil {
		log.Printf("[FLUSH] Flush failed for %s: %v", c.logIOID, err)
		res.Err = err
	}

	if !c.tx.Send(res) {
		log.Printf("[FLUSH] Failed to deliver flush completion for %s: receiver is gone", c.logIOID)
	}
}

// ApplyResult is the terminal outcome of one apply batch, delivered over the request's
// notification cell. On success Responses holds exactly one response per applied entry, in
// submission order, and LastLogID identifies the highest entry the batch reached.
type ApplyResult struct {
	LastLogID raft.LogID
	Responses []raft.Response
	Err       error
}

// ApplyCompletion is a one-shot callback handle for the completion of applying a batch of
// committed entries to the state machine. The state-machine engine must invoke Complete exactly
// once with either the ordered per-entry responses or a storage error.
type ApplyCompletion struct {
	lastLogID raft.LogID
	tx        *Sender[ApplyResult]
	done      atomic.Bool
}

// NewApplyCompletion creates an ApplyCompletion bound to the id of the last entry in the batch,
// together with the receiver the consensus core awaits the result on.
func NewApplyCompletion(lastLogID raft.LogID) (*ApplyCompletion, *Receiver[ApplyResult]) {
	tx, rx := NewOneshot[ApplyResult]()
	return &ApplyCompletion{lastLogID: lastLogID, tx: tx}, rx
}

// LastLogID returns the id of the last entry in the batch this handle is bound to.
func (c *ApplyCompletion) LastLogID() raft.LogID {
	return c.lastLogID
}

// Complete reports the apply outcome. On success responses must hold one value per entry in the
// submitted batch, in submission order. Delivery-failure handling is identical to
// FlushCompletion.Complete: logged, never retried, never escalated.
func (c *ApplyCompletion) Complete(responses []raft.Response, err error) {
	if !c.done.CompareAndSwap(false, true) {
		log.Printf("[APPLY] Completion for (%s) invoked more than once, ignoring", c.lastLogID)
		return
	}

	var res ApplyResult
	if err != nil {
		log.Printf("[APPLY] Apply failed while applying up to (%s): %v", c.lastLogID, err)
		res = ApplyResult{LastLogID: c.lastLogID, Err: err}
	} else {
		log.Printf("[APPLY] Applied up to (%s)", c.lastLogID)
		res = ApplyResult{LastLogID: c.lastLogID, Responses: responses}
	}

	if !c.tx.Send(res) {
		log.Printf("[APPLY] Failed to deliver apply completion for (%s): receiver is gone", c.lastLogID)
	}
}
