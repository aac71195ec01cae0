package iostate

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"

	"raftio/internal/pubsub"
	"raftio/internal/raft"
	"raftio/internal/raft/completion"
)

const (
	// FlushFrontierAdvanced is sent when a flush completion advanced the durable frontier.
	// The payload for this event is a FlushAdvancedPayload.
	FlushFrontierAdvanced pubsub.EventType = iota
	// ApplyFrontierAdvanced is sent when an apply completion advanced the applied frontier.
	// The payload for this event is an ApplyAdvancedPayload.
	ApplyFrontierAdvanced
	// FlushFailed is sent when a flush request resolved with an IO error.
	FlushFailed
	// ApplyFailed is sent when an apply request resolved with a storage error.
	ApplyFailed
	// TrackerShutDown is sent once when the tracker stops; the payload reports how many
	// outstanding requests were resolved as aborted.
	TrackerShutDown
)

// FlushAdvancedPayload travels with FlushFrontierAdvanced events.
type FlushAdvancedPayload struct {
	// LogIOID identifies what is now durable.
	LogIOID raft.LogIOID
}

// ApplyAdvancedPayload travels with ApplyFrontierAdvanced events so listeners waiting on
// individual commands can be replied to.
type ApplyAdvancedPayload struct {
	LastLogID raft.LogID
	// Responses holds one response per applied entry, in submission order.
	Responses []raft.Response
}

// FlushFailedPayload travels with FlushFailed events.
type FlushFailedPayload struct {
	LogIOID raft.LogIOID
	Err     error
}

// ApplyFailedPayload travels with ApplyFailed events.
type ApplyFailedPayload struct {
	LastLogID raft.LogID
	Err       error
}

// ShutDownPayload travels with TrackerShutDown events.
type ShutDownPayload struct {
	AbortedRequests int
}

// MetricsCollector is an optional interface for collecting IO performance metrics
type MetricsCollector interface {
	RecordFlushCompleted(latency time.Duration)
	RecordApplyCompleted(latency time.Duration)
	RecordFlushFailed()
	RecordApplyFailed()
	RecordStaleCompletion()
	RecordAbortedRequest()
}

// pendingFlush records what the tracker knew about a flush request at submission time.
type pendingFlush struct {
	submittedAt time.Time
	// submittedEpoch is the Vote the consensus core believed itself to hold when the request
	// was dispatched. It is compared against the current epoch when the completion arrives.
	submittedEpoch raft.Vote
	rx             *completion.Receiver[completion.FlushResult]
}

// pendingApply records what the tracker knew about an apply batch at submission time.
type pendingApply struct {
	submittedAt    time.Time
	submittedEpoch raft.Vote
	// batchSize is the number of entries dispatched; the engine owes one response per entry.
	batchSize int
	rx        *completion.Receiver[completion.ApplyResult]
}

// Tracker matches storage engine completions back to the requests that caused them, filters out
// completions belonging to superseded epochs, and advances the durable and applied frontiers.
// Every submitted request is resolved exactly once: by its completion arriving, or by shutdown
// aborting it. There are no retries inside this layer; retry policy belongs to the consensus
// core re-submitting a fresh request with a fresh id.
type Tracker struct {
	// Protects epoch, the in-flight maps and stopped
	mu sync.Mutex

	// epoch is the Vote the consensus core currently holds. Completions submitted under an
	// older Vote may still free resources but never advance current-epoch state.
	epoch raft.Vote

	// flushInflight maps raft.LogIOID -> *pendingFlush, ordered by id so shutdown drains
	// outstanding requests in submission order.
	flushInflight *treemap.Map
	// applyInflight maps raft.LogID -> *pendingApply.
	applyInflight *treemap.Map

	flushFrontier *Frontier[raft.LogIOID]
	applyFrontier *Frontier[raft.LogID]

	// flushDoneCh and applyDoneCh funnel per-request completion results into the run() loop.
	flushDoneCh chan completion.FlushResult
	applyDoneCh chan completion.ApplyResult

	stopCh  chan struct{}
	stopped bool
	loopWg  sync.WaitGroup
	fwdWg   sync.WaitGroup

	pubSub  *pubsub.PubSubClient
	metrics MetricsCollector
}

// compareLogIOIDs adapts raft.LogIOID ordering to the gods comparator signature.
func compareLogIOIDs(a, b interface{}) int {
	return a.(raft.LogIOID).Compare(b.(raft.LogIOID))
}

// compareLogIDs adapts raft.LogID ordering to the gods comparator signature.
func compareLogIDs(a, b interface{}) int {
	return a.(raft.LogID).Compare(b.(raft.LogID))
}

// NewTracker creates a Tracker holding the given initial epoch and starts its notification loop.
// pubSub receives frontier/failure events; metrics may be nil.
func NewTracker(epoch raft.Vote, pubSub *pubsub.PubSubClient, metrics MetricsCollector) *Tracker {
	t := &Tracker{
		epoch:         epoch,
		flushInflight: treemap.NewWith(compareLogIOIDs),
		applyInflight: treemap.NewWith(compareLogIDs),
		flushFrontier: NewFrontier[raft.LogIOID](),
		applyFrontier: NewFrontier[raft.LogID](),
		flushDoneCh:   make(chan completion.FlushResult, 64),
		applyDoneCh:   make(chan completion.ApplyResult, 64),
		stopCh:        make(chan struct{}),
		pubSub:        pubSub,
		metrics:       metrics,
	}

	t.loopWg.Add(1)
	go t.run()
	return t
}

// SubmitFlush registers a persistence request covering entries up to index and returns the
// completion handle to pass to the log-store engine. The request is stamped with the current
// epoch; if the epoch advances before the completion arrives, the result is treated as
// informational only.
func (t *Tracker) SubmitFlush(index uint64) (*completion.FlushCompletion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, fmt.Errorf("tracker is shut down")
	}

	id := raft.LogIOID{Vote: t.epoch, Index: index}
	if _, exists := t.flushInflight.Get(id); exists {
		return nil, fmt.Errorf("flush request %s is already in flight", id)
	}

	fc, rx := completion.NewFlushCompletion(id)
	t.flushInflight.Put(id, &pendingFlush{
		submittedAt:    time.Now(),
		submittedEpoch: t.epoch,
		rx:             rx,
	})

	t.fwdWg.Add(1)
	go t.forwardFlush(rx)

	return fc, nil
}

// SubmitApply registers an apply batch ending at lastLogID and returns the completion handle to
// pass to the state-machine engine. batchSize is the number of entries dispatched; the engine
// owes exactly that many responses, in submission order.
func (t *Tracker) SubmitApply(lastLogID raft.LogID, batchSize int) (*completion.ApplyCompletion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, fmt.Errorf("tracker is shut down")
	}
	if _, exists := t.applyInflight.Get(lastLogID); exists {
		return nil, fmt.Errorf("apply request up to (%s) is already in flight", lastLogID)
	}

	ac, rx := completion.NewApplyCompletion(lastLogID)
	t.applyInflight.Put(lastLogID, &pendingApply{
		submittedAt:    time.Now(),
		submittedEpoch: t.epoch,
		batchSize:      batchSize,
		rx:             rx,
	})

	t.fwdWg.Add(1)
	go t.forwardApply(rx)

	return ac, nil
}

// ChangeEpoch installs a newer epoch. Outstanding requests are not cancelled: their completions
// will still resolve the in-flight slots whenever the engines finish, but the staleness filter
// stops them from advancing any frontier. Regressing to an older epoch is an error.
func (t *Tracker) ChangeEpoch(newEpoch raft.Vote) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmp := newEpoch.Compare(t.epoch)
	if cmp < 0 {
		return fmt.Errorf("cannot regress epoch from (%s) to (%s)", t.epoch, newEpoch)
	}
	if cmp == 0 {
		return nil
	}

	log.Printf("[IO-TRACKER] Epoch changed from (%s) to (%s); %d flush and %d apply requests remain in flight",
		t.epoch, newEpoch, t.flushInflight.Size(), t.applyInflight.Size())
	t.epoch = newEpoch
	return nil
}

// Epoch returns the epoch the tracker currently holds.
func (t *Tracker) Epoch() raft.Vote {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// FlushFrontier returns the highest id known durable and whether any flush has completed yet.
func (t *Tracker) FlushFrontier() (raft.LogIOID, bool) {
	return t.flushFrontier.Get()
}

// ApplyFrontier returns the highest id known applied and whether any batch has completed yet.
func (t *Tracker) ApplyFrontier() (raft.LogID, bool) {
	return t.applyFrontier.Get()
}

// InflightFlushes returns the number of flush requests awaiting completion.
func (t *Tracker) InflightFlushes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushInflight.Size()
}

// InflightApplies returns the number of apply batches awaiting completion.
func (t *Tracker) InflightApplies() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applyInflight.Size()
}

// Shutdown stops the tracker. Every outstanding request is resolved exactly once as aborted:
// its receiver is abandoned, so an engine's eventual completion call becomes a logged no-op on
// the delivery path. Shutdown is idempotent and blocks until all tracker goroutines have exited.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.loopWg.Wait()
		return
	}
	t.stopped = true
	close(t.stopCh)

	aborted := 0
	it := t.flushInflight.Iterator()
	for it.Next() {
		it.Value().(*pendingFlush).rx.Abandon()
		aborted++
	}
	t.flushInflight.Clear()

	ait := t.applyInflight.Iterator()
	for ait.Next() {
		ait.Value().(*pendingApply).rx.Abandon()
		aborted++
	}
	t.applyInflight.Clear()
	t.mu.Unlock()

	if t.metrics != nil {
		for i := 0; i < aborted; i++ {
			t.metrics.RecordAbortedRequest()
		}
	}

	t.fwdWg.Wait()
	t.loopWg.Wait()

	pubsub.Publish(t.pubSub, pubsub.NewEvent(TrackerShutDown, ShutDownPayload{AbortedRequests: aborted}))
	log.Printf("[IO-TRACKER] Shut down, aborted %d outstanding requests", aborted)
}

// forwardFlush moves one flush result from its per-request cell into the notification loop.
// It should be called as a goroutine.
func (t *Tracker) forwardFlush(rx *completion.Receiver[completion.FlushResult]) {
	defer t.fwdWg.Done()

	select {
	case res, ok := <-rx.C():
		if !ok {
			return
		}
		select {
		case t.flushDoneCh <- res:
		case <-t.stopCh:
		}
	case <-t.stopCh:
	}
}

// forwardApply moves one apply result from its per-request cell into the notification loop.
// It should be called as a goroutine.
func (t *Tracker) forwardApply(rx *completion.Receiver[completion.ApplyResult]) {
	defer t.fwdWg.Done()

	select {
	case res, ok := <-rx.C():
		if !ok {
			return
		}
		select {
		case t.applyDoneCh <- res:
		case <-t.stopCh:
		}
	case <-t.stopCh:
	}
}

// run is the notification loop: it consumes completion results one at a time and resolves them
// against the in-flight registry. It should be called as a goroutine.
func (t *Tracker) run() {
	defer t.loopWg.Done()

	for {
		select {
		case res := <-t.flushDoneCh:
			t.handleFlushResult(res)
		case res := <-t.applyDoneCh:
			t.handleApplyResult(res)
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) handleFlushResult(res completion.FlushResult) {
	t.mu.Lock()
	v, found := t.flushInflight.Get(res.LogIOID)
	if found {
		t.flushInflight.Remove(res.LogIOID)
	}
	currentEpoch := t.epoch
	t.mu.Unlock()

	if !found {
		log.Printf("[IO-TRACKER] Received flush completion for unknown request %s, ignoring", res.LogIOID)
		return
	}
	req := v.(*pendingFlush)
	latency := time.Since(req.submittedAt)

	if res.Err != nil {
		log.Printf("[IO-TRACKER] Flush request %s failed: %v", res.LogIOID, res.Err)
		if t.metrics != nil {
			t.metrics.RecordFlushFailed()
		}
		pubsub.Publish(t.pubSub, pubsub.NewEvent(FlushFailed, FlushFailedPayload{LogIOID: res.LogIOID, Err: res.Err}))
		return
	}

	// A completion from a superseded epoch has already freed its in-flight slot above; it must
	// never advance current-epoch state.
	if req.submittedEpoch.Compare(currentEpoch) < 0 {
		log.Printf("[IO-TRACKER] Dropping stale flush completion %s: current epoch is (%s)",
			res.LogIOID, currentEpoch)
		if t.metrics != nil {
			t.metrics.RecordStaleCompletion()
		}
		return
	}

	if t.metrics != nil {
		t.metrics.RecordFlushCompleted(latency)
	}
	if t.flushFrontier.TryAdvance(res.LogIOID) {
		pubsub.Publish(t.pubSub, pubsub.NewEvent(FlushFrontierAdvanced, FlushAdvancedPayload{LogIOID: res.LogIOID}))
	}
}

func (t *Tracker) handleApplyResult(res completion.ApplyResult) {
	t.mu.Lock()
	v, found := t.applyInflight.Get(res.LastLogID)
	if found {
		t.applyInflight.Remove(res.LastLogID)
	}
	currentEpoch := t.epoch
	t.mu.Unlock()

	if !found {
		log.Printf("[IO-TRACKER] Received apply completion for unknown batch (%s), ignoring", res.LastLogID)
		return
	}
	req := v.(*pendingApply)
	latency := time.Since(req.submittedAt)

	if res.Err != nil {
		log.Printf("[IO-TRACKER] Apply batch up to (%s) failed: %v", res.LastLogID, res.Err)
		if t.metrics != nil {
			t.metrics.RecordApplyFailed()
		}
		pubsub.Publish(t.pubSub, pubsub.NewEvent(ApplyFailed, ApplyFailedPayload{LastLogID: res.LastLogID, Err: res.Err}))
		return
	}

	if len(res.Responses) != req.batchSize {
		// Engine contract violation: one response per submitted entry. Resolve the request but
		// shout about it.
		log.Printf("[IO-TRACKER] Apply completion for (%s) carries %d responses for a batch of %d entries",
			res.LastLogID, len(res.Responses), req.batchSize)
	}

	if req.submittedEpoch.Compare(currentEpoch) < 0 {
		log.Printf("[IO-TRACKER] Dropping stale apply completion (%s): current epoch is (%s)",
			res.LastLogID, currentEpoch)
		if t.metrics != nil {
			t.metrics.RecordStaleCompletion()
		}
		return
	}

	if t.metrics != nil {
		t.metrics.RecordApplyCompleted(latency)
	}
	if t.applyFrontier.TryAdvance(res.LastLogID) {
		pubsub.Publish(t.pubSub, pubsub.NewEvent(ApplyFrontierAdvanced, ApplyAdvancedPayload{
			LastLogID: res.LastLogID,
			Responses: res.Responses,
		}))
	}
}
