package id_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/id"
)

func TestID_RootSortsBeforeNormal(t *testing.T) {
	root := id.Root("doc", 1)
	normal := id.New(0, 0)

	require.True(t, root.Less(normal))
	require.False(t, normal.Less(root))
}

func TestID_NormalOrdersByClientThenClock(t *testing.T) {
	require.True(t, id.New(1, 5).Less(id.New(2, 0)))
	require.True(t, id.New(1, 5).Less(id.New(1, 6)))
	require.False(t, id.New(1, 5).Less(id.New(1, 5)))
}

func TestID_RootOrdersByNameThenType(t *testing.T) {
	require.True(t, id.Root("a", 1).Less(id.Root("b", 1)))
	require.True(t, id.Root("a", 1).Less(id.Root("a", 2)))
}

func TestID_EqualDisjointAcrossRootAndNormal(t *testing.T) {
	root := id.Root("doc", 1)
	normal := id.New(1, 0)
	require.False(t, root.Equal(normal))
}

func TestID_WithClockCopiesNotMutates(t *testing.T) {
	a := id.New(1, 0)
	b := a.WithClock(9)
	require.Equal(t, uint32(0), a.Clock)
	require.Equal(t, uint32(9), b.Clock)
}
