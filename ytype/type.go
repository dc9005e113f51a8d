// Package ytype implements the shared types built atop the list CRDT
// item model (spec.md §3 "Type", §4.5, §4.6, §6 public operations): Array,
// Map, Text (with formatting) and the XML tree. A Type is itself backed
// by an item.Item (its own ID may be a root ID or a nested subtype slot)
// plus the child-list/map-head state the item model doesn't carry.
package ytype

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/transact"
)

// Doc is the slice of Replica that shared types need: ID assignment,
// access to the item graph and stores, transaction bundling, and type
// lookup by ID. Defined here (not in package replica) so replica can
// depend on ytype without a cycle.
type Doc interface {
	Graph() *item.Graph
	Registry() *codec.Registry
	ClientID() uint32
	NextLocalID(length uint32) id.ID
	WithTx(fn func(tx *transact.Transaction))
	CurrentTx() *transact.Transaction
	TypeByID(i id.ID) *Type
	RegisterType(t *Type)
}

// Type is a shared collaborative type: Array, Map, Text, or one of the
// XML variants. Its own Item occupies ID in the op store (content
// SubtypeContent{TypeTag}); Start/MapHeads are the child-list/keyed-slot
// pointers the item model defers to its containing type (spec.md §3).
type Type struct {
	Doc Doc

	ID  id.ID
	Tag uint8

	ParentID  *id.ID
	ParentKey *string

	start    *id.ID
	mapHeads map[string]*id.ID
	nodeName string // only meaningful for YXmlElement / YXmlHook

	observers     []func(Event)
	deepObservers []func([]Event)
}

// Event is the payload handed to an observer callback.
type Event struct {
	Target      *Type
	Transaction *transact.Transaction
	ChangedKeys map[string]bool // nil for array/text child-list-only changes
}

func newType(doc Doc, id_ id.ID, tag uint8) *Type {
	t := &Type{Doc: doc, ID: id_, Tag: tag, mapHeads: make(map[string]*id.ID)}
	doc.RegisterType(t)
	return t
}

// StartID implements item.ParentView.
func (t *Type) StartID() *id.ID { return t.start }

// SetStartID implements item.ParentView.
func (t *Type) SetStartID(v *id.ID) { t.start = v }

// MapHeadID implements item.ParentView.
func (t *Type) MapHeadID(key string) *id.ID { return t.mapHeads[key] }

// SetMapHeadID implements item.ParentView.
func (t *Type) SetMapHeadID(key string, v *id.ID) { t.mapHeads[key] = v }

// Observe registers fn to be called for every change directly on this
// type (spec.md §6 Type.observe).
func (t *Type) Observe(fn func(Event)) func() {
	t.observers = append(t.observers, fn)
	idx := len(t.observers) - 1
	return func() { t.observers[idx] = nil }
}

// ObserveDeep registers fn to be called with the bubbled event list for
// any change in this type's subtree (spec.md §6 Type.observeDeep).
func (t *Type) ObserveDeep(fn func([]Event)) func() {
	t.deepObservers = append(t.deepObservers, fn)
	idx := len(t.deepObservers) - 1
	return func() { t.deepObservers[idx] = nil }
}

// FireObservers invokes direct observers for a changed slot. Exported so
// package replica can dispatch it after a transaction commits without
// this package depending on replica (spec.md §4.8 observer dispatch).
func (t *Type) FireObservers(ev Event) {
	for _, fn := range t.observers {
		if fn != nil {
			fn(ev)
		}
	}
}

// FireDeep invokes deep observers with the bubbled event list.
func (t *Type) FireDeep(evs []Event) {
	for _, fn := range t.deepObservers {
		if fn != nil {
			fn(evs)
		}
	}
}

// WalkExported exposes walk to other packages (e.g. relpos) that need to
// scan a type's child list without duplicating the item-graph traversal.
func (t *Type) WalkExported(fn func(it *item.Item) bool) { t.walk(fn) }

// VisibleLength returns the count of countable, non-deleted positions in
// the child list (used by relpos to resolve the "end of type" sentinel).
func (t *Type) VisibleLength() int {
	n := 0
	t.walk(func(it *item.Item) bool {
		if !it.Deleted && it.Countable() {
			n += int(it.Len())
		}
		return true
	})
	return n
}

// walk calls fn for every item in the child list, visible or not; fn is
// responsible for checking it.Deleted if it only wants visible items.
func (t *Type) walk(fn func(it *item.Item) bool) {
	g := t.Doc.Graph()
	cur := t.start
	for cur != nil {
		e, ok := g.Store.GetItem(*cur)
		if !ok {
			return
		}
		it, ok := e.(*item.Item)
		if !ok {
			return
		}
		if !fn(it) {
			return
		}
		cur = it.Right
	}
}

func (t *Type) getItem(i id.ID) *item.Item {
	e, ok := t.Doc.Graph().Store.GetItem(i)
	if !ok {
		return nil
	}
	it, _ := e.(*item.Item)
	return it
}
