package mocks

import (
	"fmt"
	"sync"

	"raftio/internal/raft"
	"raftio/internal/raft/completion"
)

// MockLogStorage is a mock implementation of storage.LogStorage for testing. Flush requests
// complete synchronously inside AppendEntriesAsync unless HoldFlushes is set, in which case the
// handles are parked until ReleaseFlushes is called - that lets tests exercise out-of-order and
// delayed completion delivery.
type MockLogStorage struct {
	mu      sync.RWMutex
	entries map[uint64]*raft.LogEntry
	vote    *raft.Vote

	held []*completion.FlushCompletion

	// HoldFlushes parks completion handles instead of resolving them immediately.
	HoldFlushes bool

	// Error injection for testing
	AppendError            error
	GetEntryError          error
	GetEntriesError        error
	GetEntriesFromError    error
	DeleteEntriesFromError error
	GetLastIndexError      error
	GetLastTermError       error
	GetVoteError           error
	SetVoteError           error
}

// NewMockLogStorage creates a new mock log storage
func NewMockLogStorage() *MockLogStorage {
	return &MockLogStorage{
		entries: make(map[uint64]*raft.LogEntry),
	}
}

func (m *MockLogStorage) AppendEntriesAsync(entries []*raft.LogEntry, done *completion.FlushCompletion) {
	m.mu.Lock()
	if m.AppendError != nil {
		err := m.AppendError
		m.mu.Unlock()
		done.Complete(&raft.IOError{Op: "flush", Err: err})
		return
	}

	for _, entry := range entries {
		m.entries[entry.Index] = entry
	}

	if m.HoldFlushes {
		m.held = append(m.held, done)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	done.Complete(nil)
}

// ReleaseFlushes resolves all parked completion handles in the given order of indices into the
// held list. With no arguments every held handle is resolved in FIFO order.
func (m *MockLogStorage) ReleaseFlushes(order ...int) {
	m.mu.Lock()
	held := m.held
	m.held = nil
	m.mu.Unlock()

	if len(order) == 0 {
		for _, done := range held {
			done.Complete(nil)
		}
		return
	}
	for _, i := range order {
		held[i].Complete(nil)
	}
}

// HeldFlushes returns the number of parked completion handles.
func (m *MockLogStorage) HeldFlushes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.held)
}

func (m *MockLogStorage) GetEntry(index uint64) (*raft.LogEntry, error) {
	if m.GetEntryError != nil {
		return nil, m.GetEntryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[index]
	if !ok {
		return nil, fmt.Errorf("entry not found at index %d", index)
	}
	return entry, nil
}

func (m *MockLogStorage) GetEntries(startIndex, endIndex uint64) ([]*raft.LogEntry, error) {
	if m.GetEntriesError != nil {
		return nil, m.GetEntriesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*raft.LogEntry
	for i := startIndex; i <= endIndex; i++ {
		if entry, ok := m.entries[i]; ok {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (m *MockLogStorage) GetEntriesFrom(startIndex uint64) ([]*raft.LogEntry, error) {
	if m.GetEntriesFromError != nil {
		return nil, m.GetEntriesFromError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*raft.LogEntry
	maxIndex := m.getLastIndexUnsafe()
	for i := startIndex; i <= maxIndex; i++ {
		if entry, ok := m.entries[i]; ok {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (m *MockLogStorage) DeleteEntriesFrom(index uint64) error {
	if m.DeleteEntriesFromError != nil {
		return m.DeleteEntriesFromError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	maxIndex := m.getLastIndexUnsafe()
	for i := index; i <= maxIndex; i++ {
		delete(m.entries, i)
	}
	return nil
}

func (m *MockLogStorage) GetLastIndex() (uint64, error) {
	if m.GetLastIndexError != nil {
		return 0, m.GetLastIndexError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLastIndexUnsafe(), nil
}

func (m *MockLogStorage) getLastIndexUnsafe() uint64 {
	var maxIndex uint64 = 0
	for index := range m.entries {
		if index > maxIndex {
			maxIndex = index
		}
	}
	return maxIndex
}

func (m *MockLogStorage) GetLastTerm() (uint64, error) {
	if m.GetLastTermError != nil {
		return 0, m.GetLastTermError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	lastIndex := m.getLastIndexUnsafe()
	if lastIndex == 0 {
		return 0, nil
	}
	if entry, ok := m.entries[lastIndex]; ok {
		return entry.Term, nil
	}
	return 0, nil
}

func (m *MockLogStorage) GetVote() (*raft.Vote, error) {
	if m.GetVoteError != nil {
		return nil, m.GetVoteError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vote, nil
}

func (m *MockLogStorage) SetVote(vote raft.Vote) error {
	if m.SetVoteError != nil {
		return m.SetVoteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vote = &vote
	return nil
}

func (m *MockLogStorage) Close() error {
	return nil
}
