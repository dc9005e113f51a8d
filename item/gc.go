package item

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/store"
)

// GC is a tombstone whose content has been discarded (spec.md §4.7). It
// still occupies its (id, length) range in the op store so concurrent
// operations referencing that range continue to resolve, but carries no
// payload and no neighbor pointers.
type GC struct {
	ID_    id.ID
	Length uint32
}

func (g *GC) ID() id.ID  { return g.ID_ }
func (g *GC) Len() uint32 { return g.Length }
func (g *GC) Tag() uint8  { return codec.TagGC }

func (g *GC) SplitAt(delta uint32) (store.Entry, store.Entry) {
	left := &GC{ID_: g.ID_, Length: delta}
	right := &GC{ID_: g.ID_.WithClock(g.ID_.Clock + delta), Length: g.Length - delta}
	return left, right
}

// Encode writes the GC body: the ID is written by the caller as part of
// the generic struct envelope in some wire paths, but per spec.md §6 the
// GC struct "already includes ID" in its own body, so we encode it here.
func (g *GC) Encode(w *codec.Writer) {
	w.WriteID(g.ID_)
	w.WriteUvarint(uint64(g.Length))
}

// DecodeGC decodes a GC body (ID, then length).
func DecodeGC(r *codec.Reader) (*GC, error) {
	id_, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	return &GC{ID_: id_, Length: uint32(n)}, nil
}

// MergeAdjacent folds two adjacent GC entries for the same client into
// one, per spec.md §4.7 ("may merge with adjacent gc items for the same
// client"). Callers are responsible for verifying adjacency.
func (g *GC) MergeAdjacent(next *GC) *GC {
	return &GC{ID_: g.ID_, Length: g.Length + next.Length}
}

// CollapseToGC converts a tombstoned item into a GC entry of the same
// range, discarding content and neighbor pointers (spec.md §4.7).
func CollapseToGC(it *Item) *GC {
	return &GC{ID_: it.ID_, Length: it.Len()}
}
