package syncproto

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
)

// clientClock names one (client, clock) dependency slot.
type clientClock struct {
	Client uint32
	Clock  uint32
}

// pending is a decoded struct parked because one or more of its
// dependencies (origin, rightOrigin, parent, or a self-dependency when
// id.Clock > state[client]) have not yet been integrated (spec.md §4.9).
type pending struct {
	s         codec.Struct
	waitingOn int
}

// DepQueue parks structs that arrived out of causal order and replays
// them once their dependencies are satisfied.
type DepQueue struct {
	waiters map[clientClock][]*pending
}

// NewDepQueue returns an empty dependency queue.
func NewDepQueue() *DepQueue {
	return &DepQueue{waiters: make(map[clientClock][]*pending)}
}

// Park registers s as blocked on the given missing dependencies.
func (q *DepQueue) Park(s codec.Struct, missing []clientClock) {
	p := &pending{s: s, waitingOn: len(missing)}
	for _, m := range missing {
		q.waiters[m] = append(q.waiters[m], p)
	}
}

// Satisfy notifies the queue that (client, clock) has now been
// integrated, returning every struct whose last missing dependency was
// just filled, ready to be retried.
func (q *DepQueue) Satisfy(client uint32, clock uint32) []codec.Struct {
	key := clientClock{Client: client, Clock: clock}
	waiting, ok := q.waiters[key]
	if !ok {
		return nil
	}
	delete(q.waiters, key)
	var ready []codec.Struct
	for _, p := range waiting {
		p.waitingOn--
		if p.waitingOn <= 0 {
			ready = append(ready, p.s)
		}
	}
	return ready
}

// Dependencies returns the (client,clock) pairs a decoded item struct
// names: its origin, right-origin, parent, and (if id.Clock is ahead of
// the locally-known state) a self-dependency on its own predecessor
// clock (spec.md §4.9).
func Dependencies(itemID id.ID, origin, rightOrigin, parent *id.ID, localClock uint32) []clientClock {
	var out []clientClock
	add := func(i *id.ID) {
		if i == nil || i.IsRoot() {
			return
		}
		out = append(out, clientClock{Client: i.Client, Clock: i.Clock})
	}
	add(origin)
	add(rightOrigin)
	add(parent)
	if itemID.Clock > localClock {
		out = append(out, clientClock{Client: itemID.Client, Clock: itemID.Clock - 1})
	}
	return out
}
