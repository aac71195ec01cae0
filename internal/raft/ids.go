package raft

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ServerID is the id of the server in the cluster
type ServerID string

// NewServerID generates a fresh unique ServerID.
func NewServerID() ServerID {
	return ServerID(uuid.New().String())
}

// Vote is the leadership stamp an IO request is issued under: the term the leader was elected in
// plus the identity of the server the vote was granted to, as per Section 5.1 from the
// [Raft paper](https://raft.github.io/raft.pdf). A node's authority to make durable progress is
// scoped to one Vote at a time. Votes are totally ordered so a stale leadership stamp can always
// be detected by comparison.
type Vote struct {
	// Term is a logical clock, initialized to 0 on first boot and increasing monotonically.
	Term uint64
	// LeaderID is the server the vote of this term was granted to.
	LeaderID ServerID
}

// Compare returns -1, 0 or 1 if v is less than, equal to or greater than other.
// Term dominates: a Vote from a higher term is always greater regardless of leader identity.
// For equal terms the leader id breaks the tie, which keeps the order total.
func (v Vote) Compare(other Vote) int {
	if v.Term != other.Term {
		if v.Term < other.Term {
			return -1
		}
		return 1
	}
	return strings.Compare(string(v.LeaderID), string(other.LeaderID))
}

// Less reports whether v is ordered before other.
func (v Vote) Less(other Vote) bool {
	return v.Compare(other) < 0
}

// String returns the string representation of the Vote.
func (v Vote) String() string {
	return fmt.Sprintf("term=%d leader=%s", v.Term, v.LeaderID)
}

// LogID identifies a single log entry by the term it was created in and its position in the log,
// as per Section 5.3 from the [Raft paper](https://raft.github.io/raft.pdf): two entries with the
// same index and term store the same command.
type LogID struct {
	Term  uint64
	Index uint64
}

// Compare returns -1, 0 or 1 if l is less than, equal to or greater than other.
// Ordering is by term first, then by index.
func (l LogID) Compare(other LogID) int {
	if l.Term != other.Term {
		if l.Term < other.Term {
			return -1
		}
		return 1
	}
	if l.Index != other.Index {
		if l.Index < other.Index {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether l is ordered before other.
func (l LogID) Less(other LogID) bool {
	return l.Compare(other) < 0
}

// String returns the string representation of the LogID.
func (l LogID) String() string {
	return fmt.Sprintf("term=%d index=%d", l.Term, l.Index)
}

// LogIOID stamps an in-flight log persistence request with the Vote the node held when the
// request was submitted and the highest log index the request covers. It is a pure value type:
// construction never fails and there is no behavior beyond ordering.
//
// The consensus core uses the total order over LogIOIDs to decide whether a just-delivered flush
// completion can advance the durable frontier or must be discarded as belonging to a superseded
// leadership stamp. A LogIOID from an older Vote is always less than one from a newer Vote,
// regardless of index.
type LogIOID struct {
	Vote  Vote
	Index uint64
}

// Compare returns -1, 0 or 1 if id is less than, equal to or greater than other.
// Ordering is by Vote first, then by index.
func (id LogIOID) Compare(other LogIOID) int {
	if c := id.Vote.Compare(other.Vote); c != 0 {
		return c
	}
	if id.Index != other.Index {
		if id.Index < other.Index {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether id is ordered before other.
func (id LogIOID) Less(other LogIOID) bool {
	return id.Compare(other) < 0
}

// String returns the string representation of the LogIOID.
func (id LogIOID) String() string {
	return fmt.Sprintf("vote=(%s) index=%d", id.Vote, id.Index)
}
