package distributed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/platform"
)

const (
	proposeTopic = 200
	ackTopic     = 201
	commitTopic  = 202
)

func int32Codec() Codec[int32] {
	return Codec[int32]{
		Encode: func(v int32) []byte {
			b := make([]byte, 4)
			b[0] = byte(v)
			b[1] = byte(v >> 8)
			b[2] = byte(v >> 16)
			b[3] = byte(v >> 24)
			return b
		},
		Decode: func(b []byte) (int32, bool) {
			if len(b) < 4 {
				return 0, false
			}
			return int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24, true
		},
	}
}

func setupThreeNodeCluster(t *testing.T) (*broker.Broker, []*StateMachine[int32]) {
	t.Helper()
	b := config.DefaultBudget()
	tasks := platform.NewDefault(nil)
	br := broker.New(b, tasks, tasks)

	nodes := make([]*StateMachine[int32], 3)
	for i := uint16(0); i < 3; i++ {
		h, err := tasks.Create("node", 0, func() {})
		require.NoError(t, err)
		require.NoError(t, br.RegisterTask(i, h))
		require.NoError(t, br.Subscribe(proposeTopic, i))
		require.NoError(t, br.Subscribe(ackTopic, i))
		require.NoError(t, br.Subscribe(commitTopic, i))
		nodes[i] = New[int32](br, i, proposeTopic, ackTopic, commitTopic, 3, 4, int32Codec(), 0)
	}
	return br, nodes
}

func acceptAll(current, proposed int32) bool { return true }

func pumpAll(t *testing.T, br *broker.Broker, nodes []*StateMachine[int32]) {
	t.Helper()
	for round := 0; round < 5; round++ {
		delivered := false
		for i := range nodes {
			for {
				msg, err := br.TryReceive(uint16(i))
				if err != nil {
					break
				}
				nodes[i].ProcessMessage(msg, acceptAll)
				delivered = true
			}
		}
		if !delivered {
			break
		}
	}
}

func TestStateMachine_MajorityCommit(t *testing.T) {
	br, nodes := setupThreeNodeCluster(t)

	seq, err := nodes[0].Propose(42)
	require.NoError(t, err)
	assert.NotZero(t, seq)

	pumpAll(t, br, nodes)

	for i, n := range nodes {
		assert.Equal(t, int32(42), n.Current(), "node %d", i)
	}
}

func TestStateMachine_InstanceIDIsUniquePerNode(t *testing.T) {
	_, nodes := setupThreeNodeCluster(t)
	assert.NotEqual(t, nodes[0].InstanceID, nodes[1].InstanceID)
}

func TestStateMachine_ProposeRejectsWhenPendingFull(t *testing.T) {
	b := config.DefaultBudget()
	tasks := platform.NewDefault(nil)
	br := broker.New(b, tasks, tasks)
	h, err := tasks.Create("node", 0, func() {})
	require.NoError(t, err)
	require.NoError(t, br.RegisterTask(0, h))
	require.NoError(t, br.Subscribe(proposeTopic, 0))

	sm := New[int32](br, 0, proposeTopic, ackTopic, commitTopic, 3, 1, int32Codec(), 0)
	_, err = sm.Propose(1)
	require.NoError(t, err)
	_, err = sm.Propose(2)
	assert.Error(t, err)
}
