package gen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tenant-gateway/pkg/config"
)

func TestNodeIssuesIncreasingIDs(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)

	a := n.GenerateID()
	b := n.GenerateID()
	require.Greater(t, b.Int64(), a.Int64())
	require.Equal(t, int64(3), b.Node())
	require.NotEqual(t, n.NextID(), n.NextID())
}

func TestNodeRejectsOutOfRangeID(t *testing.T) {
	_, err := NewNode(1 << 12)
	require.Error(t, err)

	_, err = ProvideNode(&config.Config{NodeID: -1})
	require.Error(t, err)
}
