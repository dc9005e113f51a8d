// Package transact implements the transaction engine (spec.md §4.8):
// bundling of mutations, per-transaction change tracking, and the
// before/after event sequence. It stays agnostic of concrete shared-type
// behavior — changes are recorded by type ID, and the replica package
// wires observer dispatch on top through the Dispatcher interface.
package transact

import (
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/store"
)

// Event is a single observable change recorded against one type.
type Event struct {
	Target id.ID
	Key    string // "" for a child-list change, else the changed map key
}

// Transaction is one bundle of mutations committed atomically with a
// single observer dispatch, per spec.md §4.8.
type Transaction struct {
	Remote bool

	BeforeState map[uint32]uint32 // snapshot at open
	AfterState  map[uint32]uint32 // filled in at commit

	NewTypes map[id.ID]bool

	// ChangedTypes maps a type's ID to the set of changed slots: "" means
	// the child list changed, anything else is a changed map key.
	ChangedTypes map[id.ID]map[string]bool

	// ChangedParentTypes accumulates, for deep observers, the event list
	// bubbled up to each ancestor type.
	ChangedParentTypes map[id.ID][]Event

	DeletedStructs map[id.ID]bool

	origin interface{} // caller-supplied tag, surfaced to observers
}

// Origin returns the caller-supplied transaction origin tag, if any.
func (tx *Transaction) Origin() interface{} { return tx.origin }

func newTransaction(sv *store.StateVector, remote bool, origin interface{}) *Transaction {
	return &Transaction{
		Remote:             remote,
		BeforeState:        sv.Snapshot(),
		NewTypes:           make(map[id.ID]bool),
		ChangedTypes:       make(map[id.ID]map[string]bool),
		ChangedParentTypes: make(map[id.ID][]Event),
		DeletedStructs:     make(map[id.ID]bool),
		origin:             origin,
	}
}

// MarkNew records that item id was created within this transaction.
func (tx *Transaction) MarkNew(itemID id.ID) {
	tx.NewTypes[itemID] = true
}

// MarkChanged records that parent's child list ("") or map key changed,
// unless the item that changed it is itself brand-new in this
// transaction (spec.md §4.8: "excluding items in newTypes").
func (tx *Transaction) MarkChanged(parent id.ID, key string, itemIsNew bool) {
	if itemIsNew {
		return
	}
	slots, ok := tx.ChangedTypes[parent]
	if !ok {
		slots = make(map[string]bool)
		tx.ChangedTypes[parent] = slots
	}
	slots[key] = true
}

// MarkDeleted records that itemID was deleted within this transaction.
func (tx *Transaction) MarkDeleted(itemID id.ID) {
	tx.DeletedStructs[itemID] = true
}

// BubbleToAncestor appends ev to ancestor's deep-observer event list.
func (tx *Transaction) BubbleToAncestor(ancestor id.ID, ev Event) {
	tx.ChangedParentTypes[ancestor] = append(tx.ChangedParentTypes[ancestor], ev)
}
