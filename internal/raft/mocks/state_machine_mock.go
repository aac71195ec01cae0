package mocks

import (
	"fmt"
	"sync"

	"raftio/internal/raft"
)

// MockStateMachine is a mock implementation of state_machine.StateMachine for testing
type MockStateMachine struct {
	mu             sync.RWMutex
	AppliedLogs    []raft.LogEntry
	ApplyCallCount int

	// ApplyError is returned from Apply when set
	ApplyError error
}

// NewMockStateMachine creates a new mock state machine
func NewMockStateMachine() *MockStateMachine {
	return &MockStateMachine{
		AppliedLogs: make([]raft.LogEntry, 0),
	}
}

// Apply records the batch and answers each entry with "applied-<index>".
func (m *MockStateMachine) Apply(logs []raft.LogEntry) ([]raft.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ApplyError != nil {
		return nil, m.ApplyError
	}

	m.AppliedLogs = append(m.AppliedLogs, logs...)
	m.ApplyCallCount++

	responses := make([]raft.Response, 0, len(logs))
	for _, entry := range logs {
		responses = append(responses, raft.Response(fmt.Sprintf("applied-%d", entry.Index)))
	}
	return responses, nil
}

// GetAppliedLogs returns a copy of all applied logs
func (m *MockStateMachine) GetAppliedLogs() []raft.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]raft.LogEntry, len(m.AppliedLogs))
	copy(result, m.AppliedLogs)
	return result
}

// Reset clears the mock state
func (m *MockStateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedLogs = make([]raft.LogEntry, 0)
	m.ApplyCallCount = 0
}
