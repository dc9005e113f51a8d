// Package item implements the list-CRDT unit of storage (spec.md §3,
// §4.3-§4.4): the Item type, its content variants, the YATA integration
// algorithm, and split/delete/GC. Items are owned by a store.OpStore
// keyed by ID; left/right/parent/origin references are IDs resolved
// through that store, never bare Go pointers held across a transaction
// boundary (spec.md §9 note 2).
package item

import (
	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/store"
)

// Item is the unit of the list CRDT. It implements store.Entry so it can
// live directly in a store.OpStore.
type Item struct {
	ID_    id.ID
	Origin *id.ID // last position of the item to the left at insertion time
	RightOrigin *id.ID

	Left, Right *id.ID // current neighbors, after integration

	ParentID   *id.ID // nil for a top-level named root type
	ParentKey  *string // non-nil if the parent is a map

	Deleted bool
	Redone  *id.ID // set if undone then redone: points at the replacement

	Content Content
}

// ID returns the item's starting position (store.Entry).
func (it *Item) ID() id.ID { return it.ID_ }

// Len returns the content length (store.Entry).
func (it *Item) Len() uint32 { return it.Content.Len() }

// Countable reports whether this item advances user-visible indices.
func (it *Item) Countable() bool { return it.Content.Countable() }

// LastID returns the ID of this item's final position.
func (it *Item) LastID() id.ID {
	return it.ID_.WithClock(it.ID_.Clock + it.Len() - 1)
}

// Tag returns the wire struct-type tag for this item's content variant.
func (it *Item) Tag() uint8 {
	switch c := it.Content.(type) {
	case *JSONContent:
		return codec.TagItemJSON
	case *StringContent:
		return codec.TagItemString
	case *EmbedContent:
		return codec.TagItemEmbed
	case *FormatContent:
		return codec.TagItemFormat
	case *SubtypeContent:
		return c.TypeTag
	default:
		panic("item: unknown content variant")
	}
}

// info byte bits, per spec.md §4.12.
const (
	infoHasOrigin      = 1 << 0
	infoHasRightOrigin = 1 << 2
	infoHasParentKey   = 1 << 3
)

// Encode writes this item's wire body (spec.md §6 "Item body layout").
func (it *Item) Encode(w *codec.Writer) {
	var info byte
	if it.Origin != nil {
		info |= infoHasOrigin
	}
	if it.RightOrigin != nil {
		info |= infoHasRightOrigin
	}
	if it.ParentKey != nil {
		info |= infoHasParentKey
	}
	w.WriteByte(info)
	w.WriteID(it.ID_)
	if it.Origin != nil {
		w.WriteID(*it.Origin)
	}
	if it.RightOrigin != nil {
		w.WriteID(*it.RightOrigin)
	}
	if info&(infoHasOrigin|infoHasRightOrigin) == 0 {
		if it.ParentID != nil {
			w.WriteID(*it.ParentID)
		} else {
			// Top-level: the item's own ID doubles as the parent-less root
			// anchor; encode a self-referencing root ID isn't meaningful, so
			// top-level items always carry origin/rightOrigin instead. This
			// branch only fires for subtype roots created via define(), whose
			// ID already *is* a root ID and is written as the parent marker.
			w.WriteID(it.ID_)
		}
	}
	if it.ParentKey != nil {
		w.WriteString(*it.ParentKey)
	}
	it.Content.encodeBody(w)
}

// SplitAt implements store.Entry: splits content at offset delta,
// producing two items sharing client with contiguous clocks. Origin
// pointers of existing right-neighbors are not touched, here or in
// Graph.SplitAt; split.go explains why no such pass is made.
func (it *Item) SplitAt(delta uint32) (store.Entry, store.Entry) {
	leftContent, rightContent := it.Content.SplitAt(delta)

	rightID := it.ID_.WithClock(it.ID_.Clock + delta)
	var leftRightPtr, rightLeftPtr *id.ID
	selfID := it.ID_
	_ = selfID
	leftIDCopy := it.ID_
	rightIDCopy := rightID

	right := &Item{
		ID_:         rightID,
		Origin:      &leftIDCopy,
		RightOrigin: it.RightOrigin,
		Right:       it.Right,
		ParentID:    it.ParentID,
		ParentKey:   it.ParentKey,
		Deleted:     it.Deleted,
		Content:     rightContent,
	}
	leftRightPtr = &rightIDCopy
	rightLeftPtr = &leftIDCopy
	right.Left = rightLeftPtr

	left := &Item{
		ID_:         it.ID_,
		Origin:      it.Origin,
		RightOrigin: &rightIDCopy,
		Left:        it.Left,
		Right:       leftRightPtr,
		ParentID:    it.ParentID,
		ParentKey:   it.ParentKey,
		Deleted:     it.Deleted,
		Redone:      it.Redone,
		Content:     leftContent,
	}
	right.Redone = it.Redone
	return left, right
}

// Copy returns a deep copy with a fresh identity (used by undo/redo's
// clone-and-redo path, spec.md §4.10 step 3). Callers must assign a new ID.
func (it *Item) Copy() *Item {
	cp := *it
	cp.Content = it.Content.Copy()
	return &cp
}

// DecodeBody decodes an item body for the given content-variant tag
// (spec.md §6 "Item body layout"). Subtype tags (YArray..YXmlHook)
// produce a SubtypeContent; the corresponding ytype.Type is materialized
// by the caller (replica/ytype), which is what actually holds the
// Start/Map child-list pointers.
func DecodeBody(tag uint8, r *codec.Reader) (*Item, error) {
	info, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	selfID, err := r.ReadID()
	if err != nil {
		return nil, err
	}
	it := &Item{ID_: selfID}
	if info&infoHasOrigin != 0 {
		o, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		it.Origin = &o
	}
	if info&infoHasRightOrigin != 0 {
		o, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		it.RightOrigin = &o
	}
	if info&(infoHasOrigin|infoHasRightOrigin) == 0 {
		p, err := r.ReadID()
		if err != nil {
			return nil, err
		}
		if !p.Equal(selfID) {
			it.ParentID = &p
		}
	}
	if info&infoHasParentKey != 0 {
		key, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		it.ParentKey = &key
	}

	switch tag {
	case codec.TagItemJSON:
		it.Content, err = decodeJSONContent(r)
	case codec.TagItemString:
		it.Content, err = decodeStringContent(r)
	case codec.TagItemEmbed:
		it.Content, err = decodeEmbedContent(r)
	case codec.TagItemFormat:
		it.Content, err = decodeFormatContent(r)
	case codec.TagYArray, codec.TagYMap, codec.TagYText, codec.TagYXmlFragment, codec.TagYXmlHook:
		it.Content = &SubtypeContent{TypeTag: tag}
	case codec.TagYXmlElement, codec.TagYXmlText:
		name, derr := r.ReadString()
		if derr != nil {
			return nil, derr
		}
		it.Content = &SubtypeContent{TypeTag: tag, NodeName: name}
	default:
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// RegisterDecoders binds every item-producing tag into reg, per spec.md
// §9 note 3 (instance-owned dispatch table, not process-global state).
func RegisterDecoders(reg *codec.Registry) {
	for _, tag := range []uint8{
		codec.TagItemJSON, codec.TagItemString, codec.TagItemEmbed, codec.TagItemFormat,
		codec.TagYArray, codec.TagYMap, codec.TagYText,
		codec.TagYXmlFragment, codec.TagYXmlElement, codec.TagYXmlText, codec.TagYXmlHook,
	} {
		t := tag
		reg.Register(t, func(r *codec.Reader) (codec.Struct, error) {
			return DecodeBody(t, r)
		})
	}
	reg.Register(codec.TagDelete, func(r *codec.Reader) (codec.Struct, error) {
		return DecodeDelete(r)
	})
	reg.Register(codec.TagGC, func(r *codec.Reader) (codec.Struct, error) {
		return DecodeGC(r)
	})
}
