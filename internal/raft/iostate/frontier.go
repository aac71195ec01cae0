// Package iostate tracks the consensus core's side of the asynchronous IO protocol: which flush
// and apply requests are in flight, which epoch each was submitted under, and how far the
// durable/applied frontiers have advanced within the current epoch.
package iostate

import "sync"

// ordered is the constraint for values that define a total order over themselves.
type ordered[T any] interface {
	Compare(T) int
}

// Frontier is an epoch-tagged monotonic watermark: the highest id known durable/applied so far.
// Storage engines may complete requests out of real-time order relative to submission order, yet
// Raft safety requires the consensus core to only ever observe a non-decreasing frontier, so the
// only way to update a Frontier is the compare-and-merge in TryAdvance.
//
// Because ids order by epoch first and index second, plain max-merge gives exactly the required
// semantics: a merge from an older epoch is rejected, a merge within the current epoch advances
// only if the index increases, and a merge from a newer epoch is adopted wholesale.
type Frontier[T ordered[T]] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// NewFrontier creates an empty Frontier. The first TryAdvance always succeeds.
func NewFrontier[T ordered[T]]() *Frontier[T] {
	return &Frontier[T]{}
}

// Get returns the current frontier value and whether any value has been merged yet.
func (f *Frontier[T]) Get() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.set
}

// TryAdvance merges v into the frontier. It returns true if the frontier advanced and false if
// v is not strictly greater than the current value, in which case the frontier is unchanged.
func (f *Frontier[T]) TryAdvance(v T) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.set && v.Compare(f.value) <= 0 {
		return false
	}
	f.value = v
	f.set = true
	return true
}
