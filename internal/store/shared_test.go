package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrigocitadin/tpc-audit/internal/message"
)

func TestShared_SelectAndCount(t *testing.T) {
	l := newTestLog(t)
	kinds := []message.Kind{
		message.ParticipantVoteCommit,
		message.CoordinatorCommit,
		message.ParticipantVoteAbort,
		message.CoordinatorAbort,
		message.ParticipantVoteCommit,
	}
	for i, k := range kinds {
		_, err := l.Append(k, message.TxID("client_0", uint32(i)), "participant_0", uint32(i))
		require.NoError(t, err)
	}

	h := l.Handle()
	votes := h.Select(message.ParticipantVoteCommit)
	require.Len(t, votes, 2)
	require.Contains(t, votes, uint32(1))
	require.Contains(t, votes, uint32(5))

	decisions := h.Select(message.CoordinatorCommit, message.CoordinatorAbort)
	require.Len(t, decisions, 2)

	counts := h.CountByKind()
	assert.Equal(t, 2, counts[message.ParticipantVoteCommit])
	assert.Equal(t, 1, counts[message.ParticipantVoteAbort])
	assert.Zero(t, counts[message.ClientRequest])
}

func TestShared_SnapshotIsACopy(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append(message.ClientRequest, "t", "s", 1)
	require.NoError(t, err)

	snap := l.Handle().Snapshot()
	delete(snap, 1)

	_, ok := l.Handle().Get(1)
	require.True(t, ok)

	_, err = l.Append(message.ClientRequest, "t", "s", 2)
	require.NoError(t, err)
	require.Len(t, snap, 0)
	require.Equal(t, 2, l.Handle().Len())
}

func TestShared_HandlesObserveSameLog(t *testing.T) {
	l := newTestLog(t)
	a, b := l.Handle(), l.Handle()
	require.Same(t, a, b)

	_, err := l.Append(message.CoordinatorExit, "", "coordinator", 0)
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}

func TestLogNames(t *testing.T) {
	assert.Equal(t, "participant_2.log", ParticipantLogName(2))
	assert.Equal(t, "client_0.log", ClientLogName(0))
	assert.Equal(t, "client_0", ClientLabel(0))
}
