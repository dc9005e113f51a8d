package undo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/undo"
	"github.com/Polqt/yrepl/ytype"
)

func TestUndo_ReversesLocalInsert(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	mgr := undo.New(r, []*ytype.Type{text.Type}, undo.Options{CaptureTimeout: time.Millisecond})
	defer mgr.Close()

	require.NoError(t, text.Insert(0, "hello", nil))
	require.Equal(t, "hello", text.String())

	require.True(t, mgr.Undo())
	require.Equal(t, "", text.String())
}

func TestUndo_RedoRestoresContent(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	mgr := undo.New(r, []*ytype.Type{text.Type}, undo.Options{CaptureTimeout: time.Millisecond})
	defer mgr.Close()

	require.NoError(t, text.Insert(0, "hello", nil))
	require.True(t, mgr.Undo())
	require.Equal(t, "", text.String())

	require.True(t, mgr.Redo())
	require.Equal(t, "hello", text.String())
}

func TestUndo_CoalescesWithinCaptureWindow(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	mgr := undo.New(r, []*ytype.Type{text.Type}, undo.Options{CaptureTimeout: time.Hour})
	defer mgr.Close()

	require.NoError(t, text.Insert(0, "a", nil))
	require.NoError(t, text.Insert(1, "b", nil))
	require.NoError(t, text.Insert(2, "c", nil))
	require.Equal(t, "abc", text.String())

	// All three inserts happened within the same coalescing window, so one
	// undo reverses all of them at once (spec.md §9 open question 1).
	require.True(t, mgr.Undo())
	require.Equal(t, "", text.String())
	require.False(t, mgr.Undo())
}

func TestUndo_EmptyStackReturnsFalse(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	text, err := r.DefineText("doc")
	require.NoError(t, err)

	mgr := undo.New(r, []*ytype.Type{text.Type}, undo.Options{})
	defer mgr.Close()

	require.False(t, mgr.Undo())
	require.False(t, mgr.Redo())
}

func TestUndo_OutOfScopeTypeNotCaptured(t *testing.T) {
	r := replica.New(1, zap.NewNop())
	tracked, err := r.DefineText("tracked")
	require.NoError(t, err)
	untracked, err := r.DefineText("untracked")
	require.NoError(t, err)

	mgr := undo.New(r, []*ytype.Type{tracked.Type}, undo.Options{})
	defer mgr.Close()

	require.NoError(t, untracked.Insert(0, "ignored", nil))
	require.False(t, mgr.Undo())
	require.Equal(t, "ignored", untracked.String())
}
