package item

import (
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/store"
)

// ParentView is the slice of a containing shared type that the YATA
// integration algorithm needs: the head of its child list, and (for maps)
// the head of a keyed chain. Implemented by ytype.Type; kept as an
// interface here so item does not import ytype (which itself depends on
// item for its backing storage).
type ParentView interface {
	StartID() *id.ID
	SetStartID(*id.ID)
	MapHeadID(key string) *id.ID
	SetMapHeadID(key string, v *id.ID)
}

// Graph bundles the op store lookups Integrate needs to walk neighbor
// chains by ID.
type Graph struct {
	Store *store.OpStore
}

func (g *Graph) get(i *id.ID) *Item {
	if i == nil {
		return nil
	}
	e, ok := g.Store.GetItem(*i)
	if !ok {
		return nil
	}
	it, ok := e.(*Item)
	if !ok {
		return nil
	}
	return it
}

// Integrate places x into parent's child list following the YATA rule
// (spec.md §4.3). x.Left, when already set (from a clean split of its
// predecessor), seeds the scan; otherwise the scan starts at the parent's
// map slot (if x.ParentKey is set) or the parent's Start.
func (g *Graph) Integrate(parent ParentView, x *Item) {
	var o *Item
	switch {
	case x.Left != nil:
		left := g.get(x.Left)
		if left != nil && left.Right != nil {
			o = g.get(left.Right)
		}
	case x.ParentKey != nil:
		o = g.get(parent.MapHeadID(*x.ParentKey))
	default:
		o = g.get(parent.StartID())
	}

	conflicting := make(map[id.ID]bool)
	itemsBeforeOrigin := make(map[id.ID]bool)

	var left *Item
	if x.Left != nil {
		left = g.get(x.Left)
	}

	for o != nil && (x.RightOrigin == nil || !o.ID().Equal(*x.RightOrigin)) {
		oID := o.ID()
		conflicting[oID] = true
		itemsBeforeOrigin[oID] = true

		sameOrigin := (o.Origin == nil && x.Origin == nil) ||
			(o.Origin != nil && x.Origin != nil && o.Origin.Equal(*x.Origin))

		if sameOrigin {
			// Case A: true conflict at the same origin. The item with the
			// lower client ID stays to the left: x moves past o only when
			// o's client is lower than x's.
			if o.ID().Client < x.ID().Client {
				left = o
				x.Left = idPtr(o.ID())
				conflicting = make(map[id.ID]bool)
			}
			// else: leave x.Left unchanged, x stays to the left of o.
		} else if o.Origin != nil && itemsBeforeOrigin[*o.Origin] && !conflicting[*o.Origin] {
			// Case B: o originates behind x's origin.
			left = o
			x.Left = idPtr(o.ID())
			conflicting = make(map[id.ID]bool)
		} else {
			// Case C: o is unrelated to x's placement; stop scanning.
			break
		}

		if o.Right == nil {
			o = nil
		} else {
			o = g.get(o.Right)
		}
	}

	// Reconnect.
	var rightID *id.ID
	if left != nil {
		rightID = left.Right
	} else if x.ParentKey != nil {
		rightID = parent.MapHeadID(*x.ParentKey)
	} else {
		rightID = parent.StartID()
	}
	x.Right = rightID

	xID := x.ID()
	if left != nil {
		left.Right = idPtr(xID)
		g.Store.Put(left)
	}
	if right := g.get(rightID); right != nil {
		right.Left = idPtr(xID)
		g.Store.Put(right)
	}

	if left == nil {
		if x.ParentKey != nil {
			parent.SetMapHeadID(*x.ParentKey, idPtr(xID))
		} else {
			parent.SetStartID(idPtr(xID))
		}
	}

	g.Store.Put(x)
}

func idPtr(i id.ID) *id.ID { return &i }
