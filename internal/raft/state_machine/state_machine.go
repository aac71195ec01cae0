package state_machine

import "raftio/internal/raft"

// StateMachine is an interface representing the StateMachine of the Server defined in Section 2
// from the [Raft paper](https://raft.github.io/raft.pdf). It is inspired from the FSM interface
// defined in [Hashicorp's Raft impl](https://github.com/hashicorp/raft/blob/main/fsm.go).
//
// Apply executes a batch of committed log entries in order and returns exactly one response per
// entry, in the same order. Implementations must be deterministic: the same batch yields the
// same responses on every node.
type StateMachine interface {
	Apply(logs []raft.LogEntry) ([]raft.Response, error)
}
