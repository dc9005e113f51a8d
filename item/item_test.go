package item_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
)

func TestItem_EncodeDecodeRoundTrip_WithOriginAndRightOrigin(t *testing.T) {
	origin := id.New(1, 0)
	rightOrigin := id.New(1, 5)
	it := &item.Item{
		ID_:         id.New(1, 1),
		Origin:      &origin,
		RightOrigin: &rightOrigin,
		Content:     item.NewStringContent("hi"),
	}

	w := codec.NewWriter()
	it.Encode(w)

	reg := codec.NewRegistry()
	item.RegisterDecoders(reg)

	r := codec.NewReader(w.Bytes())
	got, err := item.DecodeBody(codec.TagItemString, r)
	require.NoError(t, err)
	require.True(t, got.ID().Equal(it.ID_))
	require.NotNil(t, got.Origin)
	require.True(t, got.Origin.Equal(origin))
	require.NotNil(t, got.RightOrigin)
	require.True(t, got.RightOrigin.Equal(rightOrigin))
	require.Equal(t, "hi", got.Content.(*item.StringContent).String())
}

func TestItem_EncodeDecodeRoundTrip_TopLevelWithParent(t *testing.T) {
	parent := id.Root("doc", codec.TagYText)
	key := "field"
	it := &item.Item{
		ID_:       id.New(2, 0),
		ParentID:  &parent,
		ParentKey: &key,
		Content:   item.NewStringContent("x"),
	}

	w := codec.NewWriter()
	it.Encode(w)

	r := codec.NewReader(w.Bytes())
	got, err := item.DecodeBody(codec.TagItemString, r)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	require.True(t, got.ParentID.Equal(parent))
	require.NotNil(t, got.ParentKey)
	require.Equal(t, "field", *got.ParentKey)
}

func TestItem_SplitAt_PreservesContentAndClocks(t *testing.T) {
	it := &item.Item{
		ID_:     id.New(1, 10),
		Content: item.NewStringContent("hello"),
	}

	leftEntry, rightEntry := it.SplitAt(2)
	left := leftEntry.(*item.Item)
	right := rightEntry.(*item.Item)

	require.Equal(t, uint32(10), left.ID().Clock)
	require.Equal(t, uint32(12), right.ID().Clock)
	require.Equal(t, "he", left.Content.(*item.StringContent).String())
	require.Equal(t, "llo", right.Content.(*item.StringContent).String())

	require.NotNil(t, right.Origin)
	require.True(t, right.Origin.Equal(left.ID()))
	require.NotNil(t, left.RightOrigin)
	require.True(t, left.RightOrigin.Equal(right.ID()))
}

func TestItem_Copy_IsDeepAndIndependent(t *testing.T) {
	it := &item.Item{ID_: id.New(1, 0), Content: item.NewStringContent("abc")}
	cp := it.Copy()

	cp.Content.(*item.StringContent).Units[0] = 'z'
	require.Equal(t, "abc", it.Content.(*item.StringContent).String())
	require.NotEqual(t, "abc", cp.Content.(*item.StringContent).String())
}

func TestItem_Tag_MatchesContentVariant(t *testing.T) {
	it := &item.Item{ID_: id.New(1, 0), Content: item.NewStringContent("x")}
	require.Equal(t, uint8(codec.TagItemString), it.Tag())

	sub := &item.Item{ID_: id.New(1, 0), Content: &item.SubtypeContent{TypeTag: codec.TagYArray}}
	require.Equal(t, uint8(codec.TagYArray), sub.Tag())
}
