package relpos_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/relpos"
	"github.com/Polqt/yrepl/replica"
)

func TestFromIndex_ToIndex_SurvivesConcurrentInsertBefore(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, text.Insert(0, "hello world", nil))

	// Anchor a cursor right before "world" (index 6).
	rp := relpos.FromIndex(text.Type, 6)

	// An edit earlier in the document shifts the absolute index...
	require.NoError(t, text.Insert(0, "say: ", nil))
	require.Equal(t, "say: hello world", text.String())

	// ...but the relative position still resolves to just before "world".
	idx, ok := relpos.ToIndex(r, text.Type, rp)
	require.True(t, ok)
	require.Equal(t, "world", string([]rune(text.String())[idx:]))
}

func TestFromIndex_AtEnd_ResolvesToEndOf(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, text.Insert(0, "abc", nil))

	rp := relpos.FromIndex(text.Type, 3)
	require.Nil(t, rp.Item)
	require.NotNil(t, rp.EndOf)

	idx, ok := relpos.ToIndex(r, text.Type, rp)
	require.True(t, ok)
	require.Equal(t, 3, idx)

	require.NoError(t, text.Insert(3, "def", nil))
	idx2, ok := relpos.ToIndex(r, text.Type, rp)
	require.True(t, ok)
	require.Equal(t, 6, idx2)
}

func TestToIndex_UnknownItemReturnsFalse(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	other := replica.New(2, zap.NewNop())
	otherText, err := other.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, otherText.Insert(0, "x", nil))
	rp := relpos.FromIndex(otherText.Type, 0)

	_, ok := relpos.ToIndex(r, text.Type, rp)
	require.False(t, ok)
}
