package raft

// LogEntryType distinguishes the kinds of entries that can appear in the replicated log.
type LogEntryType uint8

// As Golang does not support Enums this is a common pattern for implementing one
const (
	// LogCommand is a client command to be executed by the state machine.
	LogCommand LogEntryType = iota
	// LogNoOp is an empty entry a new leader appends to commit entries from previous terms,
	// as per Section 5.4.2 from the [Raft paper](https://raft.github.io/raft.pdf).
	LogNoOp
	// LogConfiguration carries a cluster membership change. The state machine does not execute
	// it but it still occupies a log position.
	LogConfiguration
)

// String returns the string representation of the LogEntryType.
func (t LogEntryType) String() string {
	switch t {
	case LogCommand:
		return "Command"
	case LogNoOp:
		return "NoOp"
	case LogConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// LogEntry stores a state machine command along with the term number when the entry was received
// by the leader, as per Section 5.3 from the [Raft paper](https://raft.github.io/raft.pdf). The
// term numbers in log entries are used to detect inconsistencies between logs.
type LogEntry struct {
	Index   uint64
	Term    uint64
	Type    LogEntryType
	Command []byte
}

// ID returns the LogID identifying this entry.
func (e *LogEntry) ID() LogID {
	return LogID{Term: e.Term, Index: e.Index}
}

// Response is the value the state machine produces for one applied log entry. The contents are
// opaque to the IO layer; it only guarantees responses are delivered in submission order.
type Response []byte
