package ytype

import (
	"encoding/json"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/yerr"
)

// Array is the sequence shared type (spec.md §6 YArray).
type Array struct{ *Type }

// NewArray wraps a freshly created root-level Array type.
func NewArray(doc Doc, rootID id.ID) *Array {
	return &Array{newType(doc, rootID, codec.TagYArray)}
}

// insertionPoint walks the child list counting only Countable, non-deleted
// items until it reaches index, splitting an item if index falls in its
// interior. Returns the item id that should become the new item's Left
// (nil if inserting at the head) and the existing item immediately to the
// right (nil at the end), whose ID becomes the new item's RightOrigin.
func insertionPoint(t *Type, index int) (left *id.ID, rightOrigin *id.ID, err error) {
	g := t.Doc.Graph()
	remaining := index
	var cur *id.ID = t.start
	var prev *id.ID

	for cur != nil {
		it := t.getItem(*cur)
		if it == nil {
			break
		}
		visibleLen := 0
		if it.Countable() && !it.Deleted {
			visibleLen = int(it.Len())
		}
		if visibleLen == 0 || remaining >= visibleLen {
			remaining -= visibleLen
			prev = cur
			cur = it.Right
			continue
		}
		if remaining == 0 {
			return prev, cur, nil
		}
		// Split inside it: left part becomes the new left anchor.
		leftHalf := g.GetCleanEnd(it.ID().WithClock(it.ID().Clock + uint32(remaining) - 1))
		lid := leftHalf.ID()
		rid := *leftHalf.Right
		return &lid, &rid, nil
	}
	if remaining > 0 {
		return nil, nil, yerr.ErrInputRange
	}
	return prev, nil, nil
}

func jsonEncodeAll(values []interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

// Insert inserts values at index (spec.md §6 insert(i, values)).
func (a *Array) Insert(index int, values []interface{}) error {
	if index < 0 {
		return yerr.ErrInputRange
	}
	if len(values) == 0 {
		return nil
	}
	encoded, err := jsonEncodeAll(values)
	if err != nil {
		return err
	}
	var opErr error
	a.Doc.WithTx(func(tx *transact.Transaction) {
		left, rightOrigin, err := insertionPoint(a.Type, index)
		if err != nil {
			opErr = err
			return
		}
		newID := a.Doc.NextLocalID(uint32(len(encoded)))
		it := &item.Item{
			ID_:         newID,
			Origin:      left,
			RightOrigin: rightOrigin,
			Left:        left,
			ParentID:    idPtr(a.ID),
			Content:     &item.JSONContent{Values: encoded},
		}
		g := a.Doc.Graph()
		g.Integrate(a.Type, it)
		tx.MarkNew(newID)
		tx.MarkChanged(a.ID, "", true)
		bubbleToAncestors(a.Type, tx, Event{Target: a.Type, Transaction: tx})
	})
	return opErr
}

// Push appends values to the end of the array.
func (a *Array) Push(values []interface{}) error {
	return a.Insert(a.Length(), values)
}

// Length returns the number of visible elements.
func (a *Array) Length() int {
	n := 0
	a.walk(func(it *item.Item) bool {
		if !it.Deleted && it.Countable() {
			n += int(it.Len())
		}
		return true
	})
	return n
}

// Delete removes n elements starting at index (spec.md §6 delete(i, n)).
func (a *Array) Delete(index, n int) error {
	if index < 0 || n < 0 {
		return yerr.ErrInputRange
	}
	if n == 0 {
		return nil
	}
	var opErr error
	a.Doc.WithTx(func(tx *transact.Transaction) {
		remaining := n
		skip := index
		g := a.Doc.Graph()
		var cur *id.ID = a.start
		for cur != nil && remaining > 0 {
			it := g.GetCleanStart(*cur)
			if it == nil {
				break
			}
			visible := 0
			if it.Countable() && !it.Deleted {
				visible = int(it.Len())
			}
			if visible == 0 {
				cur = it.Right
				continue
			}
			if skip > 0 {
				if skip >= visible {
					skip -= visible
					cur = it.Right
					continue
				}
				it = g.GetCleanStart(it.ID().WithClock(it.ID().Clock + uint32(skip)))
				skip = 0
				visible = int(it.Len())
			}
			take := visible
			if take > remaining {
				take = remaining
				it = g.GetCleanEnd(it.ID().WithClock(it.ID().Clock + uint32(take) - 1))
			}
			deleteItemInto(g, it, tx)
			remaining -= take
			cur = it.Right
		}
		if remaining > 0 {
			opErr = yerr.ErrInputRange
			return
		}
		tx.MarkChanged(a.ID, "", false)
		bubbleToAncestors(a.Type, tx, Event{Target: a.Type, Transaction: tx})
	})
	return opErr
}

// Get returns the JSON-decoded value at index, or ok=false if out of
// range.
func (a *Array) Get(index int) (interface{}, bool) {
	remaining := index
	var found interface{}
	ok := false
	a.walk(func(it *item.Item) bool {
		if it.Deleted || !it.Countable() {
			return true
		}
		l := int(it.Len())
		if remaining >= l {
			remaining -= l
			return true
		}
		jc, isJSON := it.Content.(*item.JSONContent)
		if !isJSON {
			return false
		}
		var v interface{}
		if err := json.Unmarshal([]byte(jc.Values[remaining]), &v); err == nil {
			found, ok = v, true
		}
		return false
	})
	return found, ok
}

// ToJSON returns the array's visible contents as a []interface{}.
func (a *Array) ToJSON() []interface{} {
	out := make([]interface{}, 0, a.Length())
	a.walk(func(it *item.Item) bool {
		if it.Deleted {
			return true
		}
		switch c := it.Content.(type) {
		case *item.JSONContent:
			for _, raw := range c.Values {
				var v interface{}
				json.Unmarshal([]byte(raw), &v)
				out = append(out, v)
			}
		case *item.SubtypeContent:
			if nested := a.Doc.TypeByID(it.ID()); nested != nil {
				out = append(out, ToJSONAny(nested))
			}
		}
		return true
	})
	return out
}

func idPtr(i id.ID) *id.ID { return &i }

// deleteItemInto marks it deleted and records it in tx's delete set
// (spec.md §4.4); callers mark the parent type changed themselves.
func deleteItemInto(g *item.Graph, it *item.Item, tx *transact.Transaction) {
	if it.Deleted {
		return
	}
	it.Deleted = true
	g.Store.Put(it)
	tx.MarkDeleted(it.ID())
}

// bubbleToAncestors walks t's parent chain and records the event against
// every ancestor's deep-observer log (spec.md §4.8 changedParentTypes).
func bubbleToAncestors(t *Type, tx *transact.Transaction, ev Event) {
	cur := t
	for cur != nil {
		tx.BubbleToAncestor(cur.ID, transact.Event{Target: cur.ID})
		if cur.ParentID == nil {
			return
		}
		cur = cur.Doc.TypeByID(*cur.ParentID)
	}
}
