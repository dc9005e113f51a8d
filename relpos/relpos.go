// Package relpos implements relative positions (spec.md §4.11): an
// index-free cursor that survives concurrent edits, used by editor
// bindings to restore selection across remote updates.
package relpos

import (
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/ytype"
)

// RelativePosition names either a specific position inside an item
// (Item set) or the sentinel "after the last visible child" of a type
// (EndOf set, naming the parent type's ID).
type RelativePosition struct {
	Item  *id.ID
	EndOf *id.ID // parent type ID, when Item is nil
}

// FromIndex computes the relative position at offset in t (spec.md §4.11
// / §6 getRelativePosition).
func FromIndex(t *ytype.Type, offset int) RelativePosition {
	remaining := offset
	var last *id.ID
	found := RelativePosition{}
	done := false

	t.WalkExported(func(it *item.Item) bool {
		if it.Deleted || !it.Countable() {
			return true
		}
		l := int(it.Len())
		if remaining >= l {
			remaining -= l
			lid := it.LastID()
			last = &lid
			return true
		}
		target := it.ID().WithClock(it.ID().Clock + uint32(remaining))
		found = RelativePosition{Item: &target}
		done = true
		return false
	})
	if done {
		return found
	}
	tid := t.ID
	return RelativePosition{EndOf: &tid}
}

// ToIndex resolves rp back to an absolute (type, offset) pair by walking
// leftward from the named item (following Redone chains) and summing
// visible lengths, per spec.md §4.11.
func ToIndex(doc ytype.Doc, t *ytype.Type, rp RelativePosition) (int, bool) {
	if rp.Item == nil {
		if rp.EndOf == nil || !rp.EndOf.Equal(t.ID) {
			return 0, false
		}
		return t.VisibleLength(), true
	}

	target := *rp.Item
	g := doc.Graph()
	e, ok := g.Store.GetItem(target)
	if !ok {
		return 0, false
	}
	it, ok := e.(*item.Item)
	if !ok {
		return 0, false
	}
	for it.Redone != nil {
		e2, ok := g.Store.GetItem(*it.Redone)
		if !ok {
			break
		}
		it2, ok := e2.(*item.Item)
		if !ok {
			break
		}
		it = it2
	}

	offsetInItem := int(target.Clock - it.ID().Clock)
	if it.Deleted {
		offsetInItem = 0
	}

	total := offsetInItem
	cur := it.Left
	for cur != nil {
		e, ok := g.Store.GetItem(*cur)
		if !ok {
			break
		}
		prev, ok := e.(*item.Item)
		if !ok {
			break
		}
		if !prev.Deleted && prev.Countable() {
			total += int(prev.Len())
		}
		cur = prev.Left
	}
	return total, true
}
