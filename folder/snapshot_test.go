package folder

import (
	"testing"

	"github.com/creativeprojects/imapview/lib"
	"github.com/creativeprojects/imapview/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWithUIDs(uids ...int64) *Snapshot {
	nodes := make([]repo.Node, 0, len(uids))
	for _, uid := range uids {
		nodes = append(nodes, repo.Node{ID: repo.NodeID(uid)})
	}
	return newSnapshot(100, "token", nodes)
}

func TestMsnRanks(t *testing.T) {
	snapshot := snapshotWithUIDs(20, 3, 9, 7)

	msn, err := snapshot.Msn(3)
	require.NoError(t, err)
	assert.Equal(t, 1, msn)

	msn, err = snapshot.Msn(7)
	require.NoError(t, err)
	assert.Equal(t, 2, msn)

	msn, err = snapshot.Msn(20)
	require.NoError(t, err)
	assert.Equal(t, 4, msn)

	_, err = snapshot.Msn(5)
	assert.ErrorIs(t, err, lib.ErrMessageNotFound)
}

func TestUIDsSorted(t *testing.T) {
	snapshot := snapshotWithUIDs(20, 3, 9, 7)
	assert.Equal(t, []int64{3, 7, 9, 20}, snapshot.UIDs())
}

func TestUIDNext(t *testing.T) {
	assert.Equal(t, int64(21), snapshotWithUIDs(20, 3).UIDNext())
	// an empty folder starts at 1
	assert.Equal(t, int64(1), snapshotWithUIDs().UIDNext())
}

func TestSnapshotNode(t *testing.T) {
	snapshot := snapshotWithUIDs(3, 7)
	node, ok := snapshot.Node(7)
	assert.True(t, ok)
	assert.Equal(t, repo.NodeID(7), node.ID)

	_, ok = snapshot.Node(5)
	assert.False(t, ok)
}
