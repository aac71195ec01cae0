package storage

import (
	"raftio/internal/raft"
	"raftio/internal/raft/completion"
)

/*
The log-store engine performs IO that may be slow, batched, or reordered internally, so the write
path is asynchronous: the consensus core hands over the entries together with a FlushCompletion
handle and carries on. The engine must invoke the handle exactly once, when (and only when) the
physical write or its failure is final. Completions may finish in any real-time order relative to
submission order; the LogIOID bound to each handle carries enough information for the consensus
core to reconstruct a correct order and reject regressions.

Reads and log maintenance stay synchronous: they are served from the already-durable portion of
the log and the consensus core calls them inline.
*/
type LogStorage interface {
	// Log Entry Operations

	// AppendEntriesAsync queues entries for durable persistence. done is invoked exactly once
	// with the IO outcome after the write (or its failure) is final. The engine never retries
	// and never drops a handle.
	AppendEntriesAsync(entries []*raft.LogEntry, done *completion.FlushCompletion)

	// GetEntry retrieves a log entry at the specified index
	GetEntry(index uint64) (*raft.LogEntry, error)

	// GetEntries retrieves log entries from startIndex (inclusive) to endIndex (inclusive)
	GetEntries(startIndex, endIndex uint64) ([]*raft.LogEntry, error)

	// GetEntriesFrom retrieves all log entries starting from the given index
	GetEntriesFrom(startIndex uint64) ([]*raft.LogEntry, error)

	// DeleteEntriesFrom deletes all log entries starting from the given index (inclusive)
	// This is used to resolve log conflicts as per Section 5.3
	DeleteEntriesFrom(index uint64) error

	// GetLastIndex returns the index of the last log entry (0 if log is empty)
	GetLastIndex() (uint64, error)

	// GetLastTerm returns the term of the last log entry (0 if log is empty)
	GetLastTerm() (uint64, error)

	// Persistent State Operations (Section 5.2: "Updated on stable storage before responding to RPCs")

	// GetVote retrieves the persisted leadership stamp, or nil if none was ever recorded
	GetVote() (*raft.Vote, error)

	// SetVote persists the leadership stamp
	SetVote(vote raft.Vote) error

	// Utility Operations

	// Close drains queued writes, resolves their completions and closes the storage connection
	Close() error
}
