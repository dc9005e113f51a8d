// Package undo implements the undo/redo manager (spec.md §4.10, §6
// UndoManager): reverse-operation capture scoped to one or more shared
// types, coalescing within a capture window, and scoped undo/redo
// traversal built on reverse operations.
package undo

import (
	"time"

	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/ytype"
)

// reverseOp is the captured bracket of one (possibly coalesced) local
// transaction's effect on the client's own clock range (spec.md §4.10).
type reverseOp struct {
	created        map[id.ID]bool
	fromClock      uint32
	toClock        uint32
	deletedStructs map[id.ID]uint32 // id -> length, captured at delete time
	capturedAt      time.Time
}

// Options configures an UndoManager (spec.md §6).
type Options struct {
	CaptureTimeout time.Duration
}

// Manager tracks reversible operations over one or more scope types.
// Attaching a Manager disables garbage collection on the owning replica
// for as long as it is attached (spec.md §4.7).
type Manager struct {
	r      *replica.Replica
	scopes []*ytype.Type
	opts   Options

	undoStack []*reverseOp
	redoStack []*reverseOp

	doingUndo, doingRedo bool
	skipping             bool
}

const defaultCaptureTimeout = 500 * time.Millisecond

// New attaches an UndoManager to the given scope types.
func New(r *replica.Replica, scopes []*ytype.Type, opts Options) *Manager {
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	m := &Manager{r: r, scopes: scopes, opts: opts}
	r.AttachUndoManager()
	r.OnLifecycle(func(phase string, tx *transact.Transaction) {
		if phase == "afterTransaction" {
			m.onAfterTransaction(tx)
		}
	})
	return m
}

// Close detaches the manager, re-enabling GC once no manager remains
// attached.
func (m *Manager) Close() { m.r.DetachUndoManager() }

// StartSkipping suspends capture (spec.md §6 startSkipping).
func (m *Manager) StartSkipping() { m.skipping = true }

// StopSkipping resumes capture (spec.md §6 stopSkipping).
func (m *Manager) StopSkipping() { m.skipping = false }

// FlushChanges forces the pending coalescing window closed so the next
// local edit starts a fresh undo entry.
func (m *Manager) FlushChanges() {
	if len(m.undoStack) > 0 {
		m.undoStack[len(m.undoStack)-1].capturedAt = time.Time{}
	}
}

func (m *Manager) inScope(t *ytype.Type) bool {
	for cur := t; cur != nil; cur = m.parentOf(cur) {
		for _, s := range m.scopes {
			if s.ID.Equal(cur.ID) {
				return true
			}
		}
	}
	return false
}

func (m *Manager) parentOf(t *ytype.Type) *ytype.Type {
	if t.ParentID == nil {
		return nil
	}
	return m.r.TypeByID(*t.ParentID)
}

func (m *Manager) itemParentType(itemID id.ID) *ytype.Type {
	e, ok := m.r.OpStore().GetItem(itemID)
	if !ok {
		return nil
	}
	it, ok := e.(*item.Item)
	if !ok {
		return nil
	}
	if it.ParentID == nil {
		return m.r.TypeByID(itemID) // a root item names its own Type
	}
	return m.r.TypeByID(*it.ParentID)
}

// onAfterTransaction captures a reverse-op for local transactions that
// touched one of the manager's scopes (spec.md §4.10).
func (m *Manager) onAfterTransaction(tx *transact.Transaction) {
	if tx.Remote || m.skipping {
		return
	}

	touched := false
	for typeID := range tx.ChangedTypes {
		if t := m.r.TypeByID(typeID); t != nil && m.inScope(t) {
			touched = true
			break
		}
	}
	if !touched {
		for itemID := range tx.DeletedStructs {
			if t := m.itemParentType(itemID); t != nil && m.inScope(t) {
				touched = true
				break
			}
		}
	}
	if !touched {
		return
	}

	client := m.r.ClientID()
	op := &reverseOp{
		created:        map[id.ID]bool{},
		fromClock:      tx.BeforeState[client],
		toClock:        tx.AfterState[client],
		deletedStructs: map[id.ID]uint32{},
		capturedAt:      time.Now(),
	}
	for newID := range tx.NewTypes {
		if newID.Client == client {
			op.created[newID] = true
		}
	}
	for delID := range tx.DeletedStructs {
		if e, ok := m.r.OpStore().GetItem(delID); ok {
			op.deletedStructs[delID] = e.Len()
		}
	}

	target := &m.undoStack
	if m.doingUndo {
		target = &m.redoStack
	} else if m.doingRedo {
		target = &m.undoStack
	} else {
		m.redoStack = nil // non-undo, non-redo local transaction clears redo
	}

	if n := len(*target); n > 0 {
		prev := (*target)[n-1]
		if !prev.capturedAt.IsZero() && op.capturedAt.Sub(prev.capturedAt) <= m.opts.CaptureTimeout {
			// Coalesce: widen the bracket to the union, per spec.md §9 open
			// question 1 (min/max across the coalesced transactions).
			if op.fromClock < prev.fromClock {
				prev.fromClock = op.fromClock
			}
			if op.toClock > prev.toClock {
				prev.toClock = op.toClock
			}
			for k, v := range op.created {
				prev.created[k] = v
			}
			for k, v := range op.deletedStructs {
				prev.deletedStructs[k] = v
			}
			prev.capturedAt = op.capturedAt
			return
		}
	}
	*target = append(*target, op)
}

// Undo pops and reverses the most recent undo entry (spec.md §6 undo()).
func (m *Manager) Undo() bool { return m.applyReverse(&m.undoStack, &m.redoStack, true) }

// Redo pops and reverses the most recent redo entry (spec.md §6 redo()).
func (m *Manager) Redo() bool { return m.applyReverse(&m.redoStack, &m.undoStack, false) }

// applyReverse pops reverse-ops off from until one of them actually
// changes state (spec.md §4.10 "Apply-reverse": "pop reverse-ops until
// one actually changes state") — a popped op whose target range was
// already fully deleted/redone by a concurrent remote op is a no-op and
// must not silently consume an undo/redo slot.
func (m *Manager) applyReverse(from, to *[]*reverseOp, undoing bool) bool {
	if undoing {
		m.doingUndo = true
		defer func() { m.doingUndo = false }()
	} else {
		m.doingRedo = true
		defer func() { m.doingRedo = false }()
	}

	client := m.r.ClientID()
	for len(*from) > 0 {
		op := (*from)[len(*from)-1]
		*from = (*from)[:len(*from)-1]

		anyChange := false
		m.r.Transact(func(tx *transact.Transaction) {
			deletedHere := map[id.ID]bool{}

			// Step 1: delete every in-scope, not-already-deleted item in
			// [fromClock, toClock) for the local client, following Redone
			// chains to the live replacement first.
			for clock := op.fromClock; clock < op.toClock; {
				e, ok := m.r.OpStore().GetItem(id.New(client, clock))
				if !ok {
					clock++
					continue
				}
				it := e.(*item.Item)
				live := m.followRedone(it)
				if !live.Deleted && m.inScope(m.itemParentType(live.ID())) {
					live.Deleted = true
					m.r.OpStore().Put(live)
					m.r.DeleteStore().Mark(live.ID(), live.Len(), false)
					tx.MarkDeleted(live.ID())
					deletedHere[live.ID()] = true
					anyChange = true
				}
				clock = it.ID().Clock + it.Len()
			}

			// Step 2: find redo candidates among deletedStructs.
			var redoSet []*item.Item
			for delID, length := range op.deletedStructs {
				for clock := delID.Clock; clock < delID.Clock+length; {
					e, ok := m.r.OpStore().GetItem(id.New(delID.Client, clock))
					if !ok {
						clock++
						continue
					}
					it := e.(*item.Item)
					if m.inScope(m.itemParentType(it.ID())) && !deletedHere[it.ID()] &&
						!(it.ID().Client == client && op.created[it.ID()]) {
						redoSet = append(redoSet, it)
					}
					clock = it.ID().Clock + it.Len()
				}
			}

			// Step 3: clone each redo candidate with a fresh ID and integrate
			// it, linking the original's Redone pointer to the replacement.
			// The neighbor IDs are resolved through their own Redone chains
			// first, so the clone reattaches via whatever neighbor-move has
			// already happened rather than a stale, possibly-dead ID
			// (spec.md §4.10 step 3: "reattached using redone chains to
			// follow both parent-moves and neighbor-moves").
			for _, orig := range redoSet {
				clone := orig.Copy()
				newID := m.r.NextLocalID(clone.Len())
				clone.ID_ = newID
				clone.Deleted = false
				clone.Redone = nil
				clone.Left = m.resolveRedone(orig.Left)
				clone.Right = m.resolveRedone(orig.Right)
				clone.Origin = clone.Left
				clone.RightOrigin = clone.Right

				var parent item.ParentView
				if orig.ParentID != nil {
					parent = m.r.TypeByID(*orig.ParentID)
				} else {
					parent = m.r.TypeByID(orig.ID())
				}
				if parent == nil {
					continue
				}
				m.r.Graph().Integrate(parent, clone)
				orig.Redone = &newID
				m.r.OpStore().Put(orig)
				tx.MarkNew(newID)
				anyChange = true
			}
		})
		if anyChange {
			return true
		}
	}
	return false
}

func (m *Manager) followRedone(it *item.Item) *item.Item {
	for it.Redone != nil {
		e, ok := m.r.OpStore().GetItem(*it.Redone)
		if !ok {
			break
		}
		next, ok := e.(*item.Item)
		if !ok {
			break
		}
		it = next
	}
	return it
}

// resolveRedone follows target's own Redone chain (if target names an
// item that has itself been redone/moved) and returns the live
// replacement's ID, or target unchanged if it doesn't resolve to an item.
func (m *Manager) resolveRedone(target *id.ID) *id.ID {
	if target == nil {
		return nil
	}
	e, ok := m.r.OpStore().GetItem(*target)
	if !ok {
		return target
	}
	it, ok := e.(*item.Item)
	if !ok {
		return target
	}
	live := m.followRedone(it)
	liveID := live.ID()
	return &liveID
}
