package iostate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raftio/internal/raft"
)

func TestFrontier_FirstAdvanceAlwaysSucceeds(t *testing.T) {
	f := NewFrontier[raft.LogIOID]()

	_, set := f.Get()
	assert.False(t, set)

	id := raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 5}
	assert.True(t, f.TryAdvance(id))

	got, set := f.Get()
	require.True(t, set)
	assert.Equal(t, id, got)
}

func TestFrontier_AdvancesWithinEpoch(t *testing.T) {
	f := NewFrontier[raft.LogIOID]()
	epoch := raft.Vote{Term: 1, LeaderID: "s1"}

	require.True(t, f.TryAdvance(raft.LogIOID{Vote: epoch, Index: 5}))
	assert.True(t, f.TryAdvance(raft.LogIOID{Vote: epoch, Index: 6}))

	got, _ := f.Get()
	assert.Equal(t, uint64(6), got.Index)
}

func TestFrontier_RejectsSameEpochRegression(t *testing.T) {
	f := NewFrontier[raft.LogIOID]()
	epoch := raft.Vote{Term: 1, LeaderID: "s1"}

	require.True(t, f.TryAdvance(raft.LogIOID{Vote: epoch, Index: 6}))

	// A lower index within the same epoch never moves the watermark backwards
	assert.False(t, f.TryAdvance(raft.LogIOID{Vote: epoch, Index: 5}))
	assert.False(t, f.TryAdvance(raft.LogIOID{Vote: epoch, Index: 6}))

	got, _ := f.Get()
	assert.Equal(t, uint64(6), got.Index)
}

func TestFrontier_RejectsOlderEpoch(t *testing.T) {
	f := NewFrontier[raft.LogIOID]()

	require.True(t, f.TryAdvance(raft.LogIOID{Vote: raft.Vote{Term: 2, LeaderID: "s2"}, Index: 3}))

	// Term 1 is superseded, no matter how large its index
	assert.False(t, f.TryAdvance(raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 1000}))

	got, _ := f.Get()
	assert.Equal(t, uint64(2), got.Vote.Term)
	assert.Equal(t, uint64(3), got.Index)
}

func TestFrontier_AdoptsNewerEpochWithLowerIndex(t *testing.T) {
	f := NewFrontier[raft.LogIOID]()

	require.True(t, f.TryAdvance(raft.LogIOID{Vote: raft.Vote{Term: 1, LeaderID: "s1"}, Index: 100}))

	// A newer epoch is adopted wholesale even though its index is smaller
	newer := raft.LogIOID{Vote: raft.Vote{Term: 2, LeaderID: "s2"}, Index: 1}
	assert.True(t, f.TryAdvance(newer))

	got, _ := f.Get()
	assert.Equal(t, newer, got)
}

func TestFrontier_LogIDWatermark(t *testing.T) {
	f := NewFrontier[raft.LogID]()

	require.True(t, f.TryAdvance(raft.LogID{Term: 1, Index: 10}))
	assert.False(t, f.TryAdvance(raft.LogID{Term: 1, Index: 9}))
	assert.True(t, f.TryAdvance(raft.LogID{Term: 2, Index: 2}))

	got, _ := f.Get()
	assert.Equal(t, raft.LogID{Term: 2, Index: 2}, got)
}
