// Package yerr defines the engine's error taxonomy (spec.md §7). Errors
// are plain sentinel values wrapped with fmt.Errorf so call sites can use
// errors.Is/errors.As instead of string matching.
package yerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInputRange: index out of bounds on insert/delete/format. Fails
	// the call without mutating.
	ErrInputRange = errors.New("yrepl: index out of range")

	// ErrSchemaConflict: define(name, ctor) called twice with different
	// constructors for the same root name.
	ErrSchemaConflict = errors.New("yrepl: root already defined with a different type")

	// ErrProtocolMismatch: remote protocolVersion differs from ours.
	ErrProtocolMismatch = errors.New("yrepl: protocol version mismatch")

	// ErrDecode: var-uint overflow or unknown struct tag during decode.
	ErrDecode = errors.New("yrepl: malformed update")

	// ErrUnknownStruct is a more specific ErrDecode case, kept distinct
	// so callers can tell "garbled bytes" from "valid but unknown tag".
	ErrUnknownStruct = fmt.Errorf("%w: unknown struct type tag", ErrDecode)
)

// DependencyMissing is not an error in the Go `error` sense returned to a
// caller — a decoded struct naming unmet dependencies is parked in the
// sync dependency queue (syncproto) rather than rejected. It is modeled
// here only as a marker type for call sites that want to log it.
type DependencyMissing struct {
	Client uint32
	Clock  uint32
}

func (d DependencyMissing) Error() string {
	return "yrepl: struct depends on an id not yet integrated"
}
