package transact

import (
	"go.uber.org/zap"

	"github.com/Polqt/yrepl/store"
)

// Dispatcher is implemented by the replica: it knows how to run a
// transaction's observer callbacks against the concrete shared types that
// changed. Kept as an interface so this package never imports ytype.
type Dispatcher interface {
	// DispatchObservers is called once per committed transaction, after
	// all mutations have been applied, with the final Transaction. It must
	// catch and log any observer panic itself (spec.md §7 ObserverFailure)
	// — Engine only guarantees *it* won't propagate a panic out of Commit.
	DispatchObservers(tx *Transaction)
	// FireLifecycle is called for "beforeTransaction", "beforeObserverCalls"
	// and "afterTransaction", in that order around the observer dispatch.
	FireLifecycle(phase string, tx *Transaction)
}

// Engine sequences transactions for one replica. Nested Transact calls
// are flattened into the outermost call (spec.md §4.8).
type Engine struct {
	log        *zap.Logger
	dispatcher Dispatcher
	current    *Transaction
	depth      int
}

// NewEngine returns an engine that reports observer/lifecycle dispatch to d.
func NewEngine(log *zap.Logger, d Dispatcher) *Engine {
	return &Engine{log: log, dispatcher: d}
}

// Current returns the in-flight transaction, or nil outside of Transact.
func (e *Engine) Current() *Transaction { return e.current }

// Transact runs fn inside a transaction. If a transaction is already
// open, fn runs inside it with no additional event dispatch (flattening).
// sv is consulted for BeforeState/AfterState snapshots.
func (e *Engine) Transact(sv *store.StateVector, remote bool, origin interface{}, fn func(tx *Transaction)) {
	if e.current != nil {
		e.depth++
		defer func() { e.depth-- }()
		fn(e.current)
		return
	}

	tx := newTransaction(sv, remote, origin)
	e.current = tx
	e.dispatcher.FireLifecycle("beforeTransaction", tx)

	func() {
		defer func() {
			if r := recover(); r != nil {
				// spec.md §5 Cancellation: no cancellation of an in-flight
				// transaction; catch, log, and close normally so partial
				// effects persist.
				e.log.Error("transaction function panicked; partial effects persist",
					zap.Any("recover", r))
			}
		}()
		fn(tx)
	}()

	tx.AfterState = sv.Snapshot()
	e.dispatcher.FireLifecycle("beforeObserverCalls", tx)
	e.dispatchSafely(tx)
	e.dispatcher.FireLifecycle("afterTransaction", tx)

	e.current = nil
}

func (e *Engine) dispatchSafely(tx *Transaction) {
	defer func() {
		if r := recover(); r != nil {
			// ObserverFailure: caught and logged, data consistency preserved.
			e.log.Error("observer callback panicked", zap.Any("recover", r))
		}
	}()
	e.dispatcher.DispatchObservers(tx)
}
