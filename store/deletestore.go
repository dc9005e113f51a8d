package store

import (
	"sort"

	"github.com/Polqt/yrepl/id"
)

// DeleteRun is one compacted tombstone range for a single client: the
// half-open clock range [Clock, Clock+Len) is deleted, and GC marks
// whether the underlying content has also been discarded.
type DeleteRun struct {
	Clock uint32
	Len   uint32
	GC    bool
}

func (r DeleteRun) end() uint32 { return r.Clock + r.Len }

// DeleteStore is a sorted map of delete runs per client (spec.md §4.2).
// Runs for the same client never overlap; adjacent runs with equal GC
// flag are merged by Mark.
type DeleteStore struct {
	runs map[uint32][]DeleteRun
}

// NewDeleteStore returns an empty delete store.
func NewDeleteStore() *DeleteStore {
	return &DeleteStore{runs: make(map[uint32][]DeleteRun)}
}

// Mark is the idempotent union of [id.Clock, id.Clock+length) into the
// client's run list with the given gc flag, per spec.md §4.2 steps 1-5.
func (ds *DeleteStore) Mark(target id.ID, length uint32, gc bool) {
	if length == 0 {
		return
	}
	client := target.Client
	start := target.Clock
	end := start + length
	list := ds.runs[client]

	// Step 1: resize/split the run covering start-1.
	if start > 0 {
		if idx := runCovering(list, start-1); idx >= 0 {
			r := list[idx]
			if r.end() > start {
				// r strictly overlaps; shrink it to end at start, and if it
				// extended past `end` spawn a right remainder.
				remainderEnd := r.end()
				list[idx].Len = start - r.Clock
				if remainderEnd > end {
					list = insertRun(list, DeleteRun{Clock: end, Len: remainderEnd - end, GC: r.GC})
				}
			}
		}
	}

	// Step 2: shift forward the run covering end-1 if it starts before end.
	if idx := runCovering(list, end-1); idx >= 0 {
		r := list[idx]
		if r.Clock < end && r.end() > end {
			list[idx].Clock = end
			list[idx].Len = r.end() - end
		}
	}

	// Step 3: remove every run fully within [start, end).
	filtered := list[:0]
	for _, r := range list {
		if r.Clock >= start && r.end() <= end {
			continue
		}
		filtered = append(filtered, r)
	}
	list = filtered

	newRun := DeleteRun{Clock: start, Len: length, GC: gc}

	// Step 4: merge with abutting left neighbor of equal gc flag.
	sort.Slice(list, func(i, j int) bool { return list[i].Clock < list[j].Clock })
	insertAt := sort.Search(len(list), func(i int) bool { return list[i].Clock >= start })
	if insertAt > 0 {
		left := list[insertAt-1]
		if left.end() == start && left.GC == gc {
			newRun.Clock = left.Clock
			newRun.Len = newRun.end() - newRun.Clock
			list = append(list[:insertAt-1], list[insertAt:]...)
			insertAt--
		}
	}

	// Step 5: fold in an abutting right neighbor of equal gc flag.
	if insertAt < len(list) {
		right := list[insertAt]
		if right.Clock == newRun.end() && right.GC == gc {
			newRun.Len = right.end() - newRun.Clock
			list = append(list[:insertAt], list[insertAt+1:]...)
		}
	}

	list = insertRun(list, newRun)
	ds.runs[client] = list
}

func runCovering(list []DeleteRun, clock uint32) int {
	idx := sort.Search(len(list), func(i int) bool { return list[i].Clock > clock }) - 1
	if idx < 0 {
		return -1
	}
	if clock >= list[idx].Clock && clock < list[idx].end() {
		return idx
	}
	return -1
}

func insertRun(list []DeleteRun, r DeleteRun) []DeleteRun {
	idx := sort.Search(len(list), func(i int) bool { return list[i].Clock >= r.Clock })
	list = append(list, DeleteRun{})
	copy(list[idx+1:], list[idx:])
	list[idx] = r
	return list
}

// IsDeleted reports whether i falls in some marked run for its client.
func (ds *DeleteStore) IsDeleted(i id.ID) bool {
	return runCovering(ds.runs[i.Client], i.Clock) >= 0
}

// RunCovering returns the run covering i, if any.
func (ds *DeleteStore) RunCovering(i id.ID) (DeleteRun, bool) {
	idx := runCovering(ds.runs[i.Client], i.Clock)
	if idx < 0 {
		return DeleteRun{}, false
	}
	return ds.runs[i.Client][idx], true
}

// Clients returns every client with at least one delete run.
func (ds *DeleteStore) Clients() []uint32 {
	out := make([]uint32, 0, len(ds.runs))
	for c := range ds.runs {
		out = append(out, c)
	}
	return out
}

// RunsForClient returns a client's runs in clock order.
func (ds *DeleteStore) RunsForClient(client uint32) []DeleteRun {
	return ds.runs[client]
}

// Merge folds a remote client's runs into the local store, upgrading any
// local tombstone to gc when the remote claims gc for the same range
// (spec.md §4.7: "A remote delete that claims a higher gc state than
// local must upgrade local tombstones").
func (ds *DeleteStore) Merge(client uint32, remote []DeleteRun) {
	for _, r := range remote {
		ds.Mark(id.New(client, r.Clock), r.Len, r.GC)
	}
}
