// Package id implements the globally-unique positional identifiers that
// anchor every item in the list CRDT: a (client, clock) pair, plus the
// reserved Root ID variant used to name top-level shared types.
package id

import "fmt"

// RootClient is the reserved client value that marks an ID as a Root ID.
// Root IDs additionally carry a Name and TypeTag and order before every
// normal ID.
const RootClient uint32 = 0xFFFFFF

// ID names a single-length position created by one replica. An Item of
// length L covers the half-open clock range [Clock, Clock+L).
type ID struct {
	Client uint32
	Clock  uint32
	// Name and Type are only meaningful when Client == RootClient.
	Name string
	Type uint8
}

// New builds a normal (non-root) ID.
func New(client, clock uint32) ID {
	return ID{Client: client, Clock: clock}
}

// Root builds a Root ID keyed by name and type tag.
func Root(name string, typeTag uint8) ID {
	return ID{Client: RootClient, Name: name, Type: typeTag}
}

// IsRoot reports whether id names a root-level type rather than a normal item.
func (i ID) IsRoot() bool {
	return i.Client == RootClient
}

// Compare orders IDs: root IDs sort before all normal IDs and among
// themselves lexicographically by (Name, Type); normal IDs sort by
// (Client, Clock).
func (i ID) Compare(o ID) int {
	if i.IsRoot() != o.IsRoot() {
		if i.IsRoot() {
			return -1
		}
		return 1
	}
	if i.IsRoot() {
		if i.Name != o.Name {
			if i.Name < o.Name {
				return -1
			}
			return 1
		}
		switch {
		case i.Type < o.Type:
			return -1
		case i.Type > o.Type:
			return 1
		default:
			return 0
		}
	}
	switch {
	case i.Client < o.Client:
		return -1
	case i.Client > o.Client:
		return 1
	case i.Clock < o.Clock:
		return -1
	case i.Clock > o.Clock:
		return 1
	default:
		return 0
	}
}

// Less reports whether i orders strictly before o.
func (i ID) Less(o ID) bool { return i.Compare(o) < 0 }

// Equal reports equality; root and normal IDs are always disjoint.
func (i ID) Equal(o ID) bool {
	if i.IsRoot() != o.IsRoot() {
		return false
	}
	if i.IsRoot() {
		return i.Name == o.Name && i.Type == o.Type
	}
	return i.Client == o.Client && i.Clock == o.Clock
}

// WithClock returns a copy of a normal ID advanced to the given clock.
func (i ID) WithClock(clock uint32) ID {
	o := i
	o.Clock = clock
	return o
}

func (i ID) String() string {
	if i.IsRoot() {
		return fmt.Sprintf("root(%s,%d)", i.Name, i.Type)
	}
	return fmt.Sprintf("(%d,%d)", i.Client, i.Clock)
}

// Nil is the zero ID used to mean "no origin" / "no left neighbor".
// It is only ever compared by pointer-ness at call sites via *ID; this
// constant exists for readability in places that need a named zero value.
var Nil = ID{}
