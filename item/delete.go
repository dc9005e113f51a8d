package item

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
)

// Delete is the wire struct broadcast/persisted when an item is deleted
// (spec.md §4.4, §6): "ID target | varUint length". It is a protocol
// message, not a store.Entry — applying it mutates the delete store and
// sets Item.Deleted on the covered range, it does not occupy its own
// slot in the op store.
type Delete struct {
	Target id.ID
	Length uint32
}

func (d *Delete) Tag() uint8 { return codec.TagDelete }

func (d *Delete) Encode(w *codec.Writer) {
	w.WriteID(d.Target)
	w.WriteUvarint(uint64(d.Length))
}

// DecodeDelete decodes a Delete body.
func DecodeDelete(r *codec.Reader) (*Delete, error) {
	target, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	return &Delete{Target: target, Length: uint32(n)}, nil
}
