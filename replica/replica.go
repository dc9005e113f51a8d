// Package replica ties the op store, delete store, state vector,
// transaction engine and shared-type registry into one participant in a
// collaborative session (spec.md §2 "organized around a replica object
// owning three stores and dispatching all mutations through a single
// transaction").
package replica

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/store"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/yerr"
	"github.com/Polqt/yrepl/ytype"
)

// Replica is one participant in a collaborative session; it holds all
// state for one document (GLOSSARY "Replica").
type Replica struct {
	mu sync.RWMutex

	log      *zap.Logger
	clientID uint32

	opStore     *store.OpStore
	deleteStore *store.DeleteStore
	stateVector *store.StateVector
	graph       *item.Graph
	registry    *codec.Registry
	engine      *transact.Engine

	types map[id.ID]*ytype.Type
	roots map[string]rootDef

	gcEnabled bool // disabled automatically while any UndoManager is attached
	undoCount int

	lifecycleHooks []func(phase string, tx *transact.Transaction)
}

type rootDef struct {
	tag uint8
	t   *ytype.Type
}

// New constructs a replica identified by clientID, logging through log.
func New(clientID uint32, log *zap.Logger) *Replica {
	if log == nil {
		log = zap.NewNop()
	}
	opStore := store.NewOpStore()
	r := &Replica{
		log:         log,
		clientID:    clientID,
		opStore:     opStore,
		deleteStore: store.NewDeleteStore(),
		stateVector: store.NewStateVector(),
		graph:       &item.Graph{Store: opStore},
		registry:    codec.NewRegistry(),
		types:       make(map[id.ID]*ytype.Type),
		roots:       make(map[string]rootDef),
		gcEnabled:   true,
	}
	item.RegisterDecoders(r.registry)
	r.engine = transact.NewEngine(log, r)
	return r
}

// ClientID returns the replica's own client identifier.
func (r *Replica) ClientID() uint32 { return r.clientID }

// Graph implements ytype.Doc.
func (r *Replica) Graph() *item.Graph { return r.graph }

// Registry implements ytype.Doc.
func (r *Replica) Registry() *codec.Registry { return r.registry }

// StateVector exposes the replica's clock vector (read-mostly; callers in
// the sync protocol read it to diff against a peer's state vector).
func (r *Replica) StateVector() *store.StateVector { return r.stateVector }

// DeleteStore exposes the replica's delete store.
func (r *Replica) DeleteStore() *store.DeleteStore { return r.deleteStore }

// OpStore exposes the replica's operation store.
func (r *Replica) OpStore() *store.OpStore { return r.opStore }

// UndoEnabled reports whether any UndoManager is attached (spec.md §4.7:
// GC is disabled whenever an UndoManager is attached).
func (r *Replica) UndoEnabled() bool { return r.undoCount > 0 }

// AttachUndoManager/DetachUndoManager toggle GC eligibility; called by
// package undo when a manager is constructed/discarded.
func (r *Replica) AttachUndoManager() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.undoCount++
	r.gcEnabled = r.undoCount == 0
}

func (r *Replica) DetachUndoManager() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.undoCount > 0 {
		r.undoCount--
	}
	r.gcEnabled = r.undoCount == 0
}

// NextLocalID implements ytype.Doc: assigns (clientID, clock) for length
// units and advances the local clock (spec.md §4.3 "Clock assignment").
func (r *Replica) NextLocalID(length uint32) id.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	clock := r.stateVector.Get(r.clientID)
	r.stateVector.Advance(r.clientID, clock, length)
	return id.New(r.clientID, clock)
}

// WithTx implements ytype.Doc: runs fn as a local (non-remote) transaction.
func (r *Replica) WithTx(fn func(tx *transact.Transaction)) {
	r.Transact(fn)
}

// Transact opens (or joins) a local transaction (spec.md §6
// Replica.transact(fn, remote=false)).
func (r *Replica) Transact(fn func(tx *transact.Transaction)) {
	r.engine.Transact(r.stateVector, false, nil, fn)
}

// TransactRemote runs fn as a remote-originated transaction (e.g. applying
// a decoded update), so observers see tx.Remote == true.
func (r *Replica) TransactRemote(fn func(tx *transact.Transaction)) {
	r.engine.Transact(r.stateVector, true, nil, fn)
}

// CurrentTx implements ytype.Doc.
func (r *Replica) CurrentTx() *transact.Transaction { return r.engine.Current() }

// TypeByID implements ytype.Doc.
func (r *Replica) TypeByID(i id.ID) *ytype.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[i]
}

// RegisterType implements ytype.Doc.
func (r *Replica) RegisterType(t *ytype.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.ID] = t
}

// OnLifecycle registers a hook fired for "beforeTransaction",
// "beforeObserverCalls" and "afterTransaction" (spec.md §4.8 Events).
func (r *Replica) OnLifecycle(fn func(phase string, tx *transact.Transaction)) {
	r.lifecycleHooks = append(r.lifecycleHooks, fn)
}

// FireLifecycle implements transact.Dispatcher.
func (r *Replica) FireLifecycle(phase string, tx *transact.Transaction) {
	for _, fn := range r.lifecycleHooks {
		fn(phase, tx)
	}
}

// DispatchObservers implements transact.Dispatcher: fires each changed
// type's direct observers, then bubbles the accumulated event lists to
// deep observers on every ancestor (spec.md §4.8, §9 "Event emitter
// contract").
func (r *Replica) DispatchObservers(tx *transact.Transaction) {
	var failures error
	for typeID, slots := range tx.ChangedTypes {
		t := r.TypeByID(typeID)
		if t == nil {
			continue
		}
		for key := range slots {
			ev := ytype.Event{Target: t, Transaction: tx}
			if key != "" {
				ev.ChangedKeys = map[string]bool{key: true}
			}
			failures = multierr.Append(failures, r.fireObserverSafely(t, ev))
		}
	}
	for typeID, evs := range tx.ChangedParentTypes {
		t := r.TypeByID(typeID)
		if t == nil {
			continue
		}
		ytEvs := make([]ytype.Event, 0, len(evs))
		for range evs {
			ytEvs = append(ytEvs, ytype.Event{Target: t, Transaction: tx})
		}
		failures = multierr.Append(failures, r.fireDeepSafely(t, ytEvs))
	}
	// Every ObserverFailure in this dispatch pass is collected and logged
	// once, rather than one log line per panicking listener (spec.md §7
	// ObserverFailure: "caught and logged, never propagated").
	if failures != nil {
		r.log.Error("observer dispatch failures", zap.Error(failures))
	}
}

func (r *Replica) fireObserverSafely(t *ytype.Type, ev ytype.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("observer panicked: %v", rec)
		}
	}()
	t.FireObservers(ev)
	return nil
}

func (r *Replica) fireDeepSafely(t *ytype.Type, evs []ytype.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("deep observer panicked: %v", rec)
		}
	}()
	t.FireDeep(evs)
	return nil
}

// Define allocates (or returns the existing) root-level type named name.
// Idempotent per name (spec.md §6 Replica.define); SchemaConflict if a
// different tag was previously defined under the same name (spec.md §7).
func (r *Replica) Define(name string, tag uint8) (*ytype.Type, error) {
	r.mu.Lock()
	if existing, ok := r.roots[name]; ok {
		r.mu.Unlock()
		if existing.tag != tag {
			return nil, fmt.Errorf("%w: root %q", yerr.ErrSchemaConflict, name)
		}
		return existing.t, nil
	}
	r.mu.Unlock()

	rootID := id.Root(name, tag)
	var t *ytype.Type
	r.Transact(func(tx *transact.Transaction) {
		it := &item.Item{ID_: rootID, Content: &item.SubtypeContent{TypeTag: tag}}
		r.opStore.Put(it)
		t = newRootType(r, rootID, tag)
		tx.MarkNew(rootID)
	})
	r.mu.Lock()
	r.roots[name] = rootDef{tag: tag, t: t}
	r.mu.Unlock()
	return t, nil
}

func newRootType(r *Replica, rootID id.ID, tag uint8) *ytype.Type {
	switch tag {
	case codec.TagYArray:
		return ytype.NewArray(r, rootID).Type
	case codec.TagYMap:
		return ytype.NewMap(r, rootID).Type
	case codec.TagYText:
		return ytype.NewText(r, rootID).Type
	case codec.TagYXmlFragment:
		return ytype.NewXMLFragment(r, rootID).Type
	default:
		panic("replica: unsupported root type tag")
	}
}

// DefineArray, DefineMap, DefineText are typed convenience wrappers
// around Define (spec.md §6).
func (r *Replica) DefineArray(name string) (*ytype.Array, error) {
	t, err := r.Define(name, codec.TagYArray)
	if err != nil {
		return nil, err
	}
	return &ytype.Array{Type: t}, nil
}

func (r *Replica) DefineMap(name string) (*ytype.Map, error) {
	t, err := r.Define(name, codec.TagYMap)
	if err != nil {
		return nil, err
	}
	return &ytype.Map{Type: t}, nil
}

func (r *Replica) DefineText(name string) (*ytype.Text, error) {
	t, err := r.Define(name, codec.TagYText)
	if err != nil {
		return nil, err
	}
	return &ytype.Text{Type: t}, nil
}
