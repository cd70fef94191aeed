package message

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_StartsAtOne(t *testing.T) {
	var c Counter
	m := c.New(ClientRequest, "client_0_tx_1", "client_0", 1)
	require.Equal(t, uint32(1), m.ID)
	require.Equal(t, uint32(2), c.Next())
}

func TestCounter_ConcurrentIDsAreDistinct(t *testing.T) {
	const (
		workers   = 16
		perWorker = 500
	)

	var (
		c   Counter
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[uint32]struct{}, workers*perWorker)
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, c.New(CoordinatorPropose, "tx", "coordinator", uint32(i)).ID)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				ids[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	require.Len(t, ids, workers*perWorker, "every created message must get its own id")
	for id := uint32(1); id <= workers*perWorker; id++ {
		_, ok := ids[id]
		require.True(t, ok, "id %d missing", id)
	}
}

func TestCounters_AreIndependent(t *testing.T) {
	var a, b Counter
	a.Next()
	a.Next()
	assert.Equal(t, uint32(1), b.Next())
	assert.Equal(t, uint32(3), a.Next())
}

func TestMarshalLine_ParseRoundTrip(t *testing.T) {
	m := Reconstruct(ParticipantVoteCommit, 42, "client_1_tx_7", "participant_2", 7)

	line, err := m.MarshalLine()
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(line, []byte("\n")))
	require.Equal(t, 1, bytes.Count(line, []byte("\n")), "record must be a single line")
	require.Contains(t, string(line), `"mtype":"ParticipantVoteCommit"`)

	got, err := Parse(line)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMarshalLine_EscapesNewlines(t *testing.T) {
	m := Reconstruct(ClientRequest, 1, "tx\nwith newline", "client\r\n0", 1)

	line, err := m.MarshalLine()
	require.NoError(t, err)
	require.Equal(t, 1, bytes.Count(line, []byte("\n")))

	got, err := Parse(line)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMarshalLine_RejectsInvalidKind(t *testing.T) {
	_, err := Reconstruct(Kind(0), 1, "tx", "s", 1).MarshalLine()
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]struct {
		line string
		want error
	}{
		"missing kind":   {`{"uid":1,"txid":"t","senderid":"s","opid":1}`, ErrMissingField},
		"missing id":     {`{"mtype":"ClientRequest","txid":"t","senderid":"s","opid":1}`, ErrMissingField},
		"missing txid":   {`{"mtype":"ClientRequest","uid":1,"senderid":"s","opid":1}`, ErrMissingField},
		"missing sender": {`{"mtype":"ClientRequest","uid":1,"txid":"t","opid":1}`, ErrMissingField},
		"missing opid":   {`{"mtype":"ClientRequest","uid":1,"txid":"t","senderid":"s"}`, ErrMissingField},
		"null field":     {`{"mtype":"ClientRequest","uid":null,"txid":"t","senderid":"s","opid":1}`, ErrMissingField},
		"unknown kind":   {`{"mtype":"Gossip","uid":1,"txid":"t","senderid":"s","opid":1}`, ErrUnknownKind},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.line))
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Parse([]byte("not json\n"))
	require.Error(t, err)

	_, err = Parse([]byte(""))
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	require.Len(t, Kinds(), 9)
	require.Equal(t, "Kind(200)", Kind(200).String())
}

func TestTxID(t *testing.T) {
	assert.Equal(t, "client_3_tx_12", TxID("client_3", 12))
	assert.NotEqual(t, TxID("client_1", 11), TxID("client_11", 1))
}
