package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"raftio/internal/raft"
	"raftio/internal/raft/completion"
)

var (
	// Bucket names
	logBucket      = []byte("logs")
	metadataBucket = []byte("metadata")

	// Metadata keys
	voteTermKey   = []byte("voteTerm")
	voteLeaderKey = []byte("voteLeader")
)

// ErrStoreClosed is returned through flush completions for writes queued after Close.
var ErrStoreClosed = errors.New("log store is closed")

// DefaultFlushQueueDepth bounds how many flush requests may be queued before AppendEntriesAsync
// applies backpressure to the caller.
const DefaultFlushQueueDepth = 128

// flushRequest is one queued unit of work for the flush worker.
type flushRequest struct {
	entries []*raft.LogEntry
	done    *completion.FlushCompletion
}

// BboltLogStore is a BBolt-backed log-store engine. Writes go through a single flush worker
// goroutine that batches whatever is queued into one transaction; bbolt fsyncs on commit, so a
// completed request is durable on the storage medium. Each queued request's completion handle is
// invoked exactly once with the outcome of the transaction that carried it.
type BboltLogStore struct {
	conn *bbolt.DB

	// mu guards closed and the enqueue path so Close cannot race a send on the request channel.
	mu       sync.RWMutex
	closed   bool
	requests chan flushRequest
	wg       sync.WaitGroup
}

// NewBboltLogStore creates a new BBolt-backed log store and starts its flush worker.
// queueDepth <= 0 falls back to DefaultFlushQueueDepth.
func NewBboltLogStore(path string, queueDepth int) (*BboltLogStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	// Initialize buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logBucket); err != nil {
			return fmt.Errorf("failed to create log bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(metadataBucket); err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if queueDepth <= 0 {
		queueDepth = DefaultFlushQueueDepth
	}

	s := &BboltLogStore{
		conn:     db,
		requests: make(chan flushRequest, queueDepth),
	}
	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// AppendEntriesAsync queues entries for durable persistence. done is invoked exactly once: with
// nil after the batch transaction commits, or with an IOError if the write fails or the store is
// already closed. A full queue blocks the caller until the flush worker catches up.
func (s *BboltLogStore) AppendEntriesAsync(entries []*raft.LogEntry, done *completion.FlushCompletion) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		done.Complete(&raft.IOError{Op: "flush", Err: ErrStoreClosed})
		return
	}
	s.requests <- flushRequest{entries: entries, done: done}
	s.mu.RUnlock()
}

// flushLoop is the flush worker: it takes one queued request, opportunistically drains the rest
// of the queue into the same batch, commits a single transaction and resolves every completion
// in the batch with the shared outcome. It should be called as a goroutine; it exits when the
// request channel is closed and drained.
func (s *BboltLogStore) flushLoop() {
	defer s.wg.Done()

	for req := range s.requests {
		batch := []flushRequest{req}
	drain:
		for {
			select {
			case more, ok := <-s.requests:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}

		err := s.conn.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(logBucket)
			for _, r := range batch {
				for _, entry := range r.entries {
					// Use the entry's index as the key
					key := uint64ToBytes(entry.Index)
					if err := bucket.Put(key, marshalEntry(entry)); err != nil {
						return err
					}
				}
			}
			return nil
		})

		for _, r := range batch {
			if err != nil {
				r.done.Complete(&raft.IOError{Op: "flush", Err: err})
			} else {
				r.done.Complete(nil)
			}
		}
	}
}

// GetEntry retrieves a log entry at the specified index
func (s *BboltLogStore) GetEntry(index uint64) (*raft.LogEntry, error) {
	var entry *raft.LogEntry
	err := s.conn.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(logBucket)
		data := bucket.Get(uint64ToBytes(index))
		if data == nil {
			return fmt.Errorf("log entry at index %d not found", index)
		}

		var err error
		entry, err = unmarshalEntry(data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal log entry at index %d: %w", index, err)
		}
		return nil
	})
	return entry, err
}

// GetEntries retrieves log entries from startIndex (inclusive) to endIndex (inclusive)
func (s *BboltLogStore) GetEntries(startIndex, endIndex uint64) ([]*raft.LogEntry, error) {
	var entries []*raft.LogEntry
	err := s.conn.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(logBucket)

		for i := startIndex; i <= endIndex; i++ {
			data := bucket.Get(uint64ToBytes(i))
			if data == nil {
				continue // Skip missing entries
			}
			entry, err := unmarshalEntry(data)
			if err != nil {
				return fmt.Errorf("failed to unmarshal log entry at index %d: %w", i, err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// GetEntriesFrom retrieves all log entries starting from the given index
func (s *BboltLogStore) GetEntriesFrom(startIndex uint64) ([]*raft.LogEntry, error) {
	var entries []*raft.LogEntry
	err := s.conn.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(logBucket).Cursor()

		startKey := uint64ToBytes(startIndex)
		for k, v := cursor.Seek(startKey); k != nil; k, v = cursor.Next() {
			entry, err := unmarshalEntry(v)
			if err != nil {
				return fmt.Errorf("failed to unmarshal log entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// DeleteEntriesFrom deletes all log entries starting from the given index (inclusive)
func (s *BboltLogStore) DeleteEntriesFrom(index uint64) error {
	return s.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(logBucket)
		cursor := bucket.Cursor()

		startKey := uint64ToBytes(index)
		for k, _ := cursor.Seek(startKey); k != nil; k, _ = cursor.Next() {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetLastIndex returns the index of the last log entry (0 if log is empty)
func (s *BboltLogStore) GetLastIndex() (uint64, error) {
	var lastIndex uint64
	err := s.conn.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(logBucket).Cursor()

		k, _ := cursor.Last()
		if k == nil {
			lastIndex = 0
			return nil
		}
		lastIndex = bytesToUint64(k)
		return nil
	})
	return lastIndex, err
}

// GetLastTerm returns the term of the last log entry (0 if log is empty)
func (s *BboltLogStore) GetLastTerm() (uint64, error) {
	var lastTerm uint64
	err := s.conn.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(logBucket).Cursor()

		_, v := cursor.Last()
		if v == nil {
			lastTerm = 0
			return nil
		}
		entry, err := unmarshalEntry(v)
		if err != nil {
			return fmt.Errorf("failed to unmarshal last log entry: %w", err)
		}
		lastTerm = entry.Term
		return nil
	})
	return lastTerm, err
}

// GetVote retrieves the persisted leadership stamp, or nil if none was ever recorded
func (s *BboltLogStore) GetVote() (*raft.Vote, error) {
	var vote *raft.Vote
	err := s.conn.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		termData := bucket.Get(voteTermKey)
		if termData == nil {
			return nil
		}

		vote = &raft.Vote{
			Term:     bytesToUint64(termData),
			LeaderID: raft.ServerID(bucket.Get(voteLeaderKey)),
		}
		return nil
	})
	return vote, err
}

// SetVote persists the leadership stamp. Both halves are written in one transaction so a crash
// cannot leave the term and leader id from different votes.
func (s *BboltLogStore) SetVote(vote raft.Vote) error {
	return s.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(metadataBucket)
		if err := bucket.Put(voteTermKey, uint64ToBytes(vote.Term)); err != nil {
			return err
		}
		return bucket.Put(voteLeaderKey, []byte(vote.LeaderID))
	})
}

// Close stops accepting writes, waits for the flush worker to drain and resolve every queued
// request, then closes the storage connection.
func (s *BboltLogStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.requests)
	s.mu.Unlock()

	s.wg.Wait()
	return s.conn.Close()
}

// Helper functions for uint64 <-> []byte conversion
func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
