package item

import (
	"github.com/Polqt/yrepl/id"
)

// SplitAt splits it at offset delta (0 < delta < it.Len()), producing a
// new right-hand item and rewiring the current left/right chain around
// it (spec.md §4.4). The two result items are written back to the store.
//
// Design note (resolves spec.md §9 open question 3): Origin/RightOrigin
// are plain IDs resolved dynamically against the op store, not cached
// object pointers. Splitting therefore never needs a rightward pass
// rewriting other items' Origin fields: any item whose Origin equalled a
// clock that now belongs to the new right half continues to resolve
// correctly, because store.OpStore.GetItem resolves an ID to whichever
// entry currently owns that clock. Only the doubly-linked Left/Right
// chain — which is a cache of "current structural neighbor", not an
// insertion-time anchor — needs explicit rewiring here.
func (g *Graph) SplitAt(it *Item, delta uint32) (left, right *Item) {
	oldRightID := it.Right
	leftEntry, rightEntry := it.SplitAt(delta)
	left = leftEntry.(*Item)
	right = rightEntry.(*Item)
	right.Right = oldRightID

	g.Store.Put(left)
	g.Store.Put(right)

	if oldRight := g.get(oldRightID); oldRight != nil {
		rid := right.ID()
		oldRight.Left = &rid
		g.Store.Put(oldRight)
	}
	return left, right
}

// GetCleanStart returns the item such that at is its first position,
// splitting its covering item if necessary.
func (g *Graph) GetCleanStart(at id.ID) *Item {
	e, ok := g.Store.GetItem(at)
	if !ok {
		return nil
	}
	it := e.(*Item)
	if it.ID().Clock == at.Clock {
		return it
	}
	_, right := g.SplitAt(it, at.Clock-it.ID().Clock)
	return right
}

// GetCleanEnd returns the item such that at is its last position,
// splitting its covering item if necessary.
func (g *Graph) GetCleanEnd(at id.ID) *Item {
	e, ok := g.Store.GetItem(at)
	if !ok {
		return nil
	}
	it := e.(*Item)
	last := it.ID().Clock + it.Len() - 1
	if last == at.Clock {
		return it
	}
	left, _ := g.SplitAt(it, at.Clock-it.ID().Clock+1)
	return left
}
