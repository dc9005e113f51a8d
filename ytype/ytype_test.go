package ytype_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/replica"
)

func TestText_InsertDeleteAndString(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	require.NoError(t, text.Insert(0, "hello world", nil))
	require.Equal(t, "hello world", text.String())

	require.NoError(t, text.Delete(5, 6)) // remove " world"
	require.Equal(t, "hello", text.String())
}

func TestText_RejectsNegativeIndex(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)
	require.Error(t, text.Insert(-1, "x", nil))
}

func TestText_ToDeltaThenApplyDeltaRoundTrips(t *testing.T) {
	a := replica.New(1, zap.NewNop())
	ta, err := a.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, ta.Insert(0, "hello", map[string]interface{}{"bold": true}))

	delta := ta.ToDelta()

	b := replica.New(2, zap.NewNop())
	tb, err := b.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, tb.ApplyDelta(delta))

	require.Equal(t, ta.String(), tb.String())
}

func TestArray_InsertGetDeleteLength(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	arr, err := r.DefineArray("items")
	require.NoError(t, err)

	require.NoError(t, arr.Push([]interface{}{"a", "b", "c"}))
	require.Equal(t, 3, arr.Length())

	v, ok := arr.Get(1)
	require.True(t, ok)
	require.Equal(t, "b", v)

	require.NoError(t, arr.Delete(0, 1))
	require.Equal(t, 2, arr.Length())
	v0, ok := arr.Get(0)
	require.True(t, ok)
	require.Equal(t, "b", v0)
}

func TestMap_SetGetHasDelete(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	m, err := r.DefineMap("attrs")
	require.NoError(t, err)

	require.NoError(t, m.Set("name", "ada"))
	require.True(t, m.Has("name"))

	v, ok := m.Get("name")
	require.True(t, ok)
	require.Equal(t, "ada", v)

	m.Delete("name")
	require.False(t, m.Has("name"))
}

func TestMap_SetOverwritesPreviousValue(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	m, err := r.DefineMap("attrs")
	require.NoError(t, err)

	require.NoError(t, m.Set("k", 1))
	require.NoError(t, m.Set("k", 2))

	v, ok := m.Get("k")
	require.True(t, ok)
	require.EqualValues(t, 2, v)
	require.Len(t, m.Keys(), 1)
}

func TestReplica_DefineIsIdempotentPerName(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	a, err := r.DefineText("doc")
	require.NoError(t, err)
	b, err := r.DefineText("doc")
	require.NoError(t, err)
	require.Same(t, a.Type, b.Type)
}

func TestReplica_DefineConflictingTagErrors(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	_, err := r.DefineText("doc")
	require.NoError(t, err)
	_, err = r.DefineArray("doc")
	require.Error(t, err)
}
