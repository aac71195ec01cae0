// Package completion implements the one-shot notification handles the storage engines use to
// report flush and apply outcomes back to the consensus core.
//
// Each outstanding request owns exactly one single-producer/single-consumer notification cell.
// No cell is shared across requests, so no locking is needed beyond the cell's own guards:
// isolation is per-request. The engine-side producer never blocks on delivery; the consumer-side
// receiver suspends on the cell's channel while awaiting a result.
package completion

import (
	"sync/atomic"
)

// cell is the shared state behind a Sender/Receiver pair: a rendezvous slot that holds at most
// one pending value, writable once and readable once.
type cell[T any] struct {
	// ch is buffered with capacity 1 so the single send never blocks the producer.
	ch chan T
	// sent guards against a second send.
	sent atomic.Bool
	// abandoned is set when the receiver gives up (shutdown, leadership change). A send after
	// that point reports delivery failure instead of parking a value nobody will read.
	abandoned atomic.Bool
}

// Sender is the write side of a one-shot notification cell. It is consumed by the first call to
// Send; later calls are rejected.
type Sender[T any] struct {
	cell *cell[T]
}

// Receiver is the read side of a one-shot notification cell.
type Receiver[T any] struct {
	cell *cell[T]
}

// NewOneshot creates a connected Sender/Receiver pair. At most one value will ever travel from
// the Sender to the Receiver; after that value is sent the underlying channel is closed.
func NewOneshot[T any]() (*Sender[T], *Receiver[T]) {
	c := &cell[T]{ch: make(chan T, 1)}
	return &Sender[T]{cell: c}, &Receiver[T]{cell: c}
}

// Send delivers v to the receiver and closes the cell. It returns false if a value was already
// sent or the receiver has abandoned the cell. Send never blocks.
func (s *Sender[T]) Send(v T) bool {
	if !s.cell.sent.CompareAndSwap(false, true) {
		return false
	}
	if s.cell.abandoned.Load() {
		return false
	}
	// The buffer slot is guaranteed free: we are the only sender and this is the only send.
	s.cell.ch <- v
	close(s.cell.ch)
	return true
}

// C returns the channel the single value is delivered on. The channel is closed after the value
// is sent, so a receive of the zero value with ok == false means the cell was consumed or the
// sender never delivered.
func (r *Receiver[T]) C() <-chan T {
	return r.cell.ch
}

// Abandon marks the receiver as gone. A subsequent Send will fail fast and report delivery
// failure to the producer side. Abandoning an already-delivered cell is a no-op.
func (r *Receiver[T]) Abandon() {
	r.cell.abandoned.Store(true)
}
