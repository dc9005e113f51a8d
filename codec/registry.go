package codec

import (
	"fmt"

	"github.com/Polqt/yrepl/yerr"
)

// Struct-type tags. Required by spec.md §4.12; values are part of the wire
// format and must be stable.
const (
	TagItemJSON   uint8 = 0
	TagItemString uint8 = 1
	TagDelete     uint8 = 2
	TagYArray     uint8 = 3
	TagYMap       uint8 = 4
	TagYText      uint8 = 5
	TagYXmlFragment uint8 = 6
	TagYXmlElement  uint8 = 7
	TagYXmlText     uint8 = 8
	TagYXmlHook     uint8 = 9
	TagItemFormat   uint8 = 10
	TagItemEmbed    uint8 = 11
	TagGC           uint8 = 12
)

// Struct is any wire-encodable struct the registry can round-trip: an
// item variant, a Delete marker, or a GC tombstone.
type Struct interface {
	Tag() uint8
	Encode(w *Writer)
}

// DecodeFunc decodes the tag-specific body of a struct (the tag byte
// itself has already been consumed by the caller).
type DecodeFunc func(r *Reader) (Struct, error)

// Registry maps struct-type tags to decode functions. It is constructed
// once (by the replica package, which owns the concrete item types) and
// passed in wherever decoding happens, per spec.md §9 note 3: "avoid
// global mutable state; pass an immutable dispatch table into the replica
// at construction."
type Registry struct {
	decoders map[uint8]DecodeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[uint8]DecodeFunc)}
}

// Register binds a decode function to a tag. Called during replica setup
// for every tag in the Tag* constants above.
func (reg *Registry) Register(tag uint8, fn DecodeFunc) {
	reg.decoders[tag] = fn
}

// DecodeOne reads one tagged struct: a tag byte, then its body via the
// registered DecodeFunc.
func (reg *Registry) DecodeOne(r *Reader) (Struct, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	fn, ok := reg.decoders[tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", yerr.ErrUnknownStruct, tag)
	}
	return fn(r)
}

// EncodeOne writes a struct's tag byte followed by its body.
func EncodeOne(w *Writer, s Struct) {
	w.WriteByte(s.Tag())
	s.Encode(w)
}
