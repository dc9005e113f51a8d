package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/store"
)

func TestStateVector_AdvanceOnlyGrows(t *testing.T) {
	sv := store.NewStateVector()
	require.Equal(t, uint32(0), sv.Get(1))

	sv.Advance(1, 0, 5)
	require.Equal(t, uint32(5), sv.Get(1))

	sv.Advance(1, 0, 2) // a stale, smaller advance must not regress the vector
	require.Equal(t, uint32(5), sv.Get(1))

	sv.Advance(1, 5, 3)
	require.Equal(t, uint32(8), sv.Get(1))
}

func TestStateVector_SnapshotIsACopy(t *testing.T) {
	sv := store.NewStateVector()
	sv.Advance(1, 0, 1)

	snap := sv.Snapshot()
	snap[1] = 99
	require.Equal(t, uint32(1), sv.Get(1))
}

func TestDeleteStore_MarkThenIsDeleted(t *testing.T) {
	ds := store.NewDeleteStore()
	ds.Mark(id.New(1, 10), 5, false)

	require.True(t, ds.IsDeleted(id.New(1, 10)))
	require.True(t, ds.IsDeleted(id.New(1, 14)))
	require.False(t, ds.IsDeleted(id.New(1, 15)))
	require.False(t, ds.IsDeleted(id.New(1, 9)))
}

func TestDeleteStore_MergesAbuttingRunsOfEqualGC(t *testing.T) {
	ds := store.NewDeleteStore()
	ds.Mark(id.New(1, 0), 5, false)
	ds.Mark(id.New(1, 5), 5, false)

	runs := ds.RunsForClient(1)
	require.Len(t, runs, 1)
	require.Equal(t, uint32(0), runs[0].Clock)
	require.Equal(t, uint32(10), runs[0].Len)
}

func TestDeleteStore_DoesNotMergeAcrossDifferentGCFlags(t *testing.T) {
	ds := store.NewDeleteStore()
	ds.Mark(id.New(1, 0), 5, false)
	ds.Mark(id.New(1, 5), 5, true)

	require.Len(t, ds.RunsForClient(1), 2)
}

func TestDeleteStore_MarkSplitsExistingRun(t *testing.T) {
	ds := store.NewDeleteStore()
	ds.Mark(id.New(1, 0), 10, false)
	ds.Mark(id.New(1, 3), 2, true) // punch a gc=true hole into the middle

	require.True(t, ds.IsDeleted(id.New(1, 0)))
	require.True(t, ds.IsDeleted(id.New(1, 3)))
	require.True(t, ds.IsDeleted(id.New(1, 9)))

	run3, ok := ds.RunCovering(id.New(1, 3))
	require.True(t, ok)
	require.True(t, run3.GC)

	run0, ok := ds.RunCovering(id.New(1, 0))
	require.True(t, ok)
	require.False(t, run0.GC)
}

func TestDeleteStore_MergeUpgradesLocalToGC(t *testing.T) {
	ds := store.NewDeleteStore()
	ds.Mark(id.New(1, 0), 5, false)

	ds.Merge(1, []store.DeleteRun{{Clock: 0, Len: 5, GC: true}})

	run, ok := ds.RunCovering(id.New(1, 0))
	require.True(t, ok)
	require.True(t, run.GC)
}

func TestDeleteStore_ClientsListsOnlyMarkedClients(t *testing.T) {
	ds := store.NewDeleteStore()
	require.Empty(t, ds.Clients())

	ds.Mark(id.New(7, 0), 1, false)
	require.Equal(t, []uint32{7}, ds.Clients())
}
