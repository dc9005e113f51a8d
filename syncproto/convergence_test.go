package syncproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/syncproto"
)

// sync exchanges a full two-way sync step 1/2 handshake between a and b,
// the way a connecting peer and an already-populated host would (spec.md
// §4.9, §8 scenario S1 "two replicas converge after a full sync").
func sync(t *testing.T, a, b *replica.Replica) {
	t.Helper()
	q := syncproto.NewDepQueue()

	missingForB := syncproto.ComputeMissing(a, b.StateVector().Snapshot())
	require.NoError(t, syncproto.ApplyStructs(b, missingForB, q))
	for client, runs := range a.DeleteRunsSnapshot() {
		b.DeleteStore().Merge(client, runs)
	}

	missingForA := syncproto.ComputeMissing(b, a.StateVector().Snapshot())
	require.NoError(t, syncproto.ApplyStructs(a, missingForA, q))
	for client, runs := range b.DeleteRunsSnapshot() {
		a.DeleteStore().Merge(client, runs)
	}
}

func TestConvergence_ConcurrentTextInserts(t *testing.T) {
	log := zap.NewNop()
	a := replica.New(1, log)
	b := replica.New(2, log)

	textA, err := a.DefineText("doc")
	require.NoError(t, err)
	textB, err := b.DefineText("doc")
	require.NoError(t, err)

	require.NoError(t, textA.Insert(0, "hello", nil))
	require.NoError(t, textB.Insert(0, "world", nil))

	sync(t, a, b)
	sync(t, a, b) // second round settles any structs parked by arrival order

	require.Equal(t, textA.String(), textB.String())
	require.Contains(t, textA.String(), "hello")
	require.Contains(t, textA.String(), "world")
}

func TestConvergence_DeleteThenSync(t *testing.T) {
	log := zap.NewNop()
	a := replica.New(1, log)
	b := replica.New(2, log)

	textA, err := a.DefineText("doc")
	require.NoError(t, err)
	textB, err := b.DefineText("doc")
	require.NoError(t, err)

	require.NoError(t, textA.Insert(0, "abcdef", nil))
	sync(t, a, b)

	require.Equal(t, "abcdef", textB.String())

	require.NoError(t, textA.Delete(1, 2)) // remove "bc"
	sync(t, a, b)

	require.Equal(t, textA.String(), textB.String())
	require.Equal(t, "adef", textA.String())
}

func TestComputeMissing_EmptyWhenCaughtUp(t *testing.T) {
	log := zap.NewNop()
	a := replica.New(1, log)
	textA, err := a.DefineText("doc")
	require.NoError(t, err)
	require.NoError(t, textA.Insert(0, "x", nil))

	structs := syncproto.ComputeMissing(a, a.StateVector().Snapshot())
	require.Empty(t, structs)
}
