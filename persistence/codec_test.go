package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/store"
)

// These exercise the snapshot/update wire encoding directly, without a
// live Redis connection — RedisStore itself is a thin wrapper around
// go-redis calls that needs a real server to test meaningfully.

func TestEncodeDecodeStructs_RoundTrip(t *testing.T) {
	reg := codec.NewRegistry()
	item.RegisterDecoders(reg)

	structs := []codec.Struct{
		&item.Item{ID_: id.New(1, 0), Content: item.NewStringContent("hi")},
		&item.Item{ID_: id.New(1, 2), Content: item.NewStringContent("there")},
	}

	w := codec.NewWriter()
	encodeStructs(w, structs)

	r := codec.NewReader(w.Bytes())
	got, err := decodeStructs(r, reg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	first, ok := got[0].(*item.Item)
	require.True(t, ok)
	require.True(t, first.ID().Equal(id.New(1, 0)))
	second, ok := got[1].(*item.Item)
	require.True(t, ok)
	require.True(t, second.ID().Equal(id.New(1, 2)))
}

func TestEncodeDecodeDeleteSet_RoundTrip(t *testing.T) {
	ds := map[uint32][]store.DeleteRun{
		1: {{Clock: 0, Len: 5, GC: false}},
		2: {{Clock: 10, Len: 3, GC: true}, {Clock: 20, Len: 1, GC: false}},
	}

	w := codec.NewWriter()
	encodeDeleteSet(w, ds)

	r := codec.NewReader(w.Bytes())
	got, err := decodeDeleteSet(r)
	require.NoError(t, err)
	require.Equal(t, ds, got)
}

func TestEncodeDecodeStructs_Empty(t *testing.T) {
	reg := codec.NewRegistry()
	item.RegisterDecoders(reg)

	w := codec.NewWriter()
	encodeStructs(w, nil)

	r := codec.NewReader(w.Bytes())
	got, err := decodeStructs(r, reg)
	require.NoError(t, err)
	require.Empty(t, got)
}
