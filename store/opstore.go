// Package store holds the two ordered containers the replica is built
// from: the operation store (ID -> structure, with range queries and
// clean-split lookups) and the delete store (compacted per-client
// tombstone ranges). Both are kept independent of the item package's
// concrete types via the Entry interface, so the arena (item) package can
// depend on store without a cycle.
package store

import (
	"sort"

	"github.com/Polqt/yrepl/id"
)

// Entry is anything the op store can hold: an item, a GC-class tombstone,
// or any future struct variant. SplitAt must produce two entries whose IDs
// share the same client and whose clocks are contiguous, covering
// [0,delta) and [delta,Len()) of the original range.
type Entry interface {
	ID() id.ID
	Len() uint32
	SplitAt(delta uint32) (left, right Entry)
}

// OpStore is a sorted map from ID to Entry, ordered per id.ID.Compare.
// Entries for one client are additionally contiguous-range disjoint: an
// entry with id.Clock==c and Len()==L "owns" [c, c+L).
type OpStore struct {
	// perClient holds, for each client, entries sorted by Clock. Root IDs
	// are stored in a side table since they don't participate in a
	// client's clock range.
	perClient map[uint32][]Entry
	roots     map[string]Entry
}

// NewOpStore returns an empty operation store.
func NewOpStore() *OpStore {
	return &OpStore{
		perClient: make(map[uint32][]Entry),
		roots:     make(map[string]Entry),
	}
}

func rootKey(i id.ID) string {
	return i.Name + "\x00" + string(rune(i.Type))
}

// Put inserts e keyed by e.ID(), overwriting an existing entry with the
// same starting ID (used for root allocation, which is idempotent).
func (s *OpStore) Put(e Entry) {
	key := e.ID()
	if key.IsRoot() {
		s.roots[rootKey(key)] = e
		return
	}
	list := s.perClient[key.Client]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].ID().Clock >= key.Clock
	})
	if idx < len(list) && list[idx].ID().Clock == key.Clock {
		list[idx] = e
		return
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = e
	s.perClient[key.Client] = list
}

// Get returns the entry whose ID exactly equals the given ID, if any.
func (s *OpStore) Get(i id.ID) (Entry, bool) {
	if i.IsRoot() {
		e, ok := s.roots[rootKey(i)]
		return e, ok
	}
	list := s.perClient[i.Client]
	idx := sort.Search(len(list), func(k int) bool {
		return list[k].ID().Clock >= i.Clock
	})
	if idx < len(list) && list[idx].ID().Clock == i.Clock {
		return list[idx], true
	}
	return nil, false
}

// indexCoveringClock returns the index of the entry in list whose range
// [clock, clock+len) contains the given clock, or -1.
func indexCoveringClock(list []Entry, clock uint32) int {
	idx := sort.Search(len(list), func(k int) bool {
		return list[k].ID().Clock > clock
	}) - 1
	if idx < 0 {
		return -1
	}
	e := list[idx]
	if clock >= e.ID().Clock && clock < e.ID().Clock+e.Len() {
		return idx
	}
	return -1
}

// GetItem returns the entry containing id within its [clock, clock+len)
// range, without splitting.
func (s *OpStore) GetItem(i id.ID) (Entry, bool) {
	if i.IsRoot() {
		return s.Get(i)
	}
	list := s.perClient[i.Client]
	idx := indexCoveringClock(list, i.Clock)
	if idx < 0 {
		return nil, false
	}
	return list[idx], true
}

// FindPrev returns the entry whose ID is the greatest strictly less than i.
func (s *OpStore) FindPrev(i id.ID) (Entry, bool) {
	list := s.perClient[i.Client]
	idx := sort.Search(len(list), func(k int) bool {
		return list[k].ID().Clock >= i.Clock
	})
	if idx == 0 {
		return nil, false
	}
	return list[idx-1], true
}

// FindNext returns the entry whose ID is the smallest strictly greater than i.
func (s *OpStore) FindNext(i id.ID) (Entry, bool) {
	list := s.perClient[i.Client]
	idx := sort.Search(len(list), func(k int) bool {
		return list[k].ID().Clock > i.Clock
	})
	if idx >= len(list) {
		return nil, false
	}
	return list[idx], true
}

// FindWithUpperBound returns the entry with the largest key <= i.
func (s *OpStore) FindWithUpperBound(i id.ID) (Entry, bool) {
	if e, ok := s.Get(i); ok {
		return e, true
	}
	return s.FindPrev(i)
}

// FindWithLowerBound returns the entry with the smallest key >= i.
func (s *OpStore) FindWithLowerBound(i id.ID) (Entry, bool) {
	if e, ok := s.Get(i); ok {
		return e, true
	}
	return s.FindNext(i)
}

// Iterate performs an inclusive range scan over entries for one client,
// calling fn for each entry with clock-range overlapping [from, to].
// Callers must not delete during iteration; collect IDs and delete after.
func (s *OpStore) Iterate(client uint32, from, to uint32, fn func(Entry) bool) {
	list := s.perClient[client]
	idx := indexCoveringClock(list, from)
	if idx < 0 {
		idx = sort.Search(len(list), func(k int) bool {
			return list[k].ID().Clock >= from
		})
	}
	for ; idx < len(list); idx++ {
		e := list[idx]
		if e.ID().Clock > to {
			break
		}
		if !fn(e) {
			return
		}
	}
}

// splitEntryAt replaces a single entry in list at position idx with its two
// halves produced by SplitAt(delta), keeping the slice sorted.
func (s *OpStore) splitEntryAt(client uint32, idx int, delta uint32) (left, right Entry) {
	list := s.perClient[client]
	e := list[idx]
	left, right = e.SplitAt(delta)
	newList := make([]Entry, 0, len(list)+1)
	newList = append(newList, list[:idx]...)
	newList = append(newList, left, right)
	newList = append(newList, list[idx+1:]...)
	s.perClient[client] = newList
	return left, right
}

// GetItemCleanStart returns the entry such that i is its first position,
// splitting the covering entry if i falls in its interior.
func (s *OpStore) GetItemCleanStart(i id.ID) (Entry, bool) {
	if i.IsRoot() {
		return s.Get(i)
	}
	list := s.perClient[i.Client]
	idx := indexCoveringClock(list, i.Clock)
	if idx < 0 {
		return nil, false
	}
	e := list[idx]
	if e.ID().Clock == i.Clock {
		return e, true
	}
	delta := i.Clock - e.ID().Clock
	_, right := s.splitEntryAt(i.Client, idx, delta)
	return right, true
}

// GetItemCleanEnd returns the entry such that i is its last position,
// splitting the covering entry if i is not already the last position.
func (s *OpStore) GetItemCleanEnd(i id.ID) (Entry, bool) {
	if i.IsRoot() {
		return s.Get(i)
	}
	list := s.perClient[i.Client]
	idx := indexCoveringClock(list, i.Clock)
	if idx < 0 {
		return nil, false
	}
	e := list[idx]
	lastClock := e.ID().Clock + e.Len() - 1
	if lastClock == i.Clock {
		return e, true
	}
	delta := i.Clock - e.ID().Clock + 1
	left, _ := s.splitEntryAt(i.Client, idx, delta)
	return left, true
}

// ClientIDs returns every client with at least one entry.
func (s *OpStore) ClientIDs() []uint32 {
	out := make([]uint32, 0, len(s.perClient))
	for c := range s.perClient {
		out = append(out, c)
	}
	return out
}

// AllForClient returns the sorted entries for one client, for iteration by
// callers that need to walk the whole range (e.g. sync protocol diffing).
func (s *OpStore) AllForClient(client uint32) []Entry {
	return s.perClient[client]
}
