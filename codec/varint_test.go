package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
)

func TestVarint_RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<34 - 1} {
		w := codec.NewWriter()
		w.WriteUvarint(v)
		r := codec.NewReader(w.Bytes())
		got, err := r.ReadUvarint()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestVarint_OverflowErrors(t *testing.T) {
	// five continuation bytes, all with the high bit set: exceeds 35 bits.
	r := codec.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	_, err := r.ReadUvarint()
	require.Error(t, err)
}

func TestVarint_TruncatedErrors(t *testing.T) {
	r := codec.NewReader([]byte{0x80})
	_, err := r.ReadUvarint()
	require.Error(t, err)
}

func TestString_RoundTrip(t *testing.T) {
	w := codec.NewWriter()
	w.WriteString("hello, crdt")
	r := codec.NewReader(w.Bytes())
	got, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello, crdt", got)
}

func TestID_RoundTrip_Normal(t *testing.T) {
	w := codec.NewWriter()
	w.WriteID(id.New(7, 42))
	r := codec.NewReader(w.Bytes())
	got, err := r.ReadID()
	require.NoError(t, err)
	require.True(t, got.Equal(id.New(7, 42)))
}

func TestID_RoundTrip_Root(t *testing.T) {
	w := codec.NewWriter()
	w.WriteID(id.Root("doc", 3))
	r := codec.NewReader(w.Bytes())
	got, err := r.ReadID()
	require.NoError(t, err)
	require.True(t, got.Equal(id.Root("doc", 3)))
}
