package ytype

import (
	"encoding/json"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/transact"
	"github.com/Polqt/yrepl/yerr"
)

// Text is the rich-text shared type (spec.md §4.6, §6 YText): a
// specialization of Array whose child list interleaves string/embed
// items with zero-width format markers.
type Text struct{ *Type }

// NewText wraps a freshly created root-level Text type.
func NewText(doc Doc, rootID id.ID) *Text {
	return &Text{newType(doc, rootID, codec.TagYText)}
}

// cursor tracks a walk through the child list alongside the attribute map
// active at the cursor's current position (spec.md §4.6: "maintains
// (left, right, currentAttrs) as a cursor").
type cursor struct {
	left, right *id.ID
	attrs       map[string]string // key -> json-encoded value, "null" means cleared
}

// attrsAt replays format markers from the start of the list up to (but
// not including) the item at target, returning the attribute map active
// there and the (left, right) anchor pair at that visible offset.
func (t *Text) attrsAt(index int) cursor {
	g := t.Doc.Graph()
	cur := cursor{attrs: make(map[string]string)}
	remaining := index
	var walkID *id.ID = t.start
	var prev *id.ID

	for walkID != nil {
		it := t.getItem(*walkID)
		if it == nil {
			break
		}
		if fc, ok := it.Content.(*item.FormatContent); ok && !it.Deleted {
			cur.attrs[fc.Key] = fc.Value
			prev = walkID
			walkID = it.Right
			continue
		}
		visible := 0
		if it.Countable() && !it.Deleted {
			visible = int(it.Len())
		}
		if visible == 0 || remaining >= visible {
			remaining -= visible
			if visible > 0 || !it.Deleted {
				prev = walkID
			}
			walkID = it.Right
			continue
		}
		if remaining == 0 {
			cur.left, cur.right = prev, walkID
			return cur
		}
		leftHalf := g.GetCleanEnd(it.ID().WithClock(it.ID().Clock + uint32(remaining) - 1))
		lid := leftHalf.ID()
		cur.left, cur.right = &lid, leftHalf.Right
		return cur
	}
	cur.left, cur.right = prev, nil
	return cur
}

func jsonEq(a, b string) bool {
	var av, bv interface{}
	json.Unmarshal([]byte(a), &av)
	json.Unmarshal([]byte(b), &bv)
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}

// insertFormatMarkers inserts one FormatContent item per differing key
// right at (left,right), advancing left to the new marker each time, and
// returns the anchor just after all markers plus the negated attrs map to
// restore afterwards (spec.md §4.6 insertText attribute minimization).
func (t *Text) insertFormatMarkers(tx *transact.Transaction, left, right *id.ID, cur map[string]string, desired map[string]string) (*id.ID, map[string]string) {
	negate := make(map[string]string)
	for k, v := range desired {
		existing, had := cur[k]
		if had && jsonEq(existing, v) {
			continue // already in effect; minimize per spec.md §4.6
		}
		prevVal := "null"
		if had {
			prevVal = existing
		}
		negate[k] = prevVal

		newID := t.Doc.NextLocalID(1)
		it := &item.Item{
			ID_:      newID,
			Left:     left,
			Origin:   left,
			ParentID: idPtr(t.ID),
			Content:  &item.FormatContent{Key: k, Value: v},
		}
		t.Doc.Graph().Integrate(t.Type, it)
		lid := newID
		left = &lid
		tx.MarkNew(newID)
		cur[k] = v
	}
	return left, negate
}

// Insert inserts s at index with the given attributes (spec.md §6
// insert(i, s, attrs?)).
func (t *Text) Insert(index int, s string, attrs map[string]interface{}) error {
	if index < 0 || s == "" {
		if index < 0 {
			return yerr.ErrInputRange
		}
		return nil
	}
	encodedAttrs, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	var opErr error
	t.Doc.WithTx(func(tx *transact.Transaction) {
		c := t.attrsAt(index)
		left := c.left
		var negate map[string]string
		if len(encodedAttrs) > 0 {
			left, negate = t.insertFormatMarkers(tx, left, c.right, c.attrs, encodedAttrs)
		}
		content := item.NewStringContent(s)
		newID := t.Doc.NextLocalID(content.Len())
		it := &item.Item{
			ID_:         newID,
			Left:        left,
			Origin:      left,
			RightOrigin: c.right,
			ParentID:    idPtr(t.ID),
			Content:     content,
		}
		t.Doc.Graph().Integrate(t.Type, it)
		tx.MarkNew(newID)
		insertedLeft := &newID

		if len(encodedAttrs) > 0 {
			t.insertFormatMarkers(tx, insertedLeft, c.right, encodedAttrs, negate)
		}
		tx.MarkChanged(t.ID, "", false)
		bubbleToAncestors(t.Type, tx, Event{Target: t.Type, Transaction: tx})
	})
	return opErr
}

// InsertEmbed inserts a single opaque embed object at index.
func (t *Text) InsertEmbed(index int, value interface{}, attrs map[string]interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	encodedAttrs, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	t.Doc.WithTx(func(tx *transact.Transaction) {
		c := t.attrsAt(index)
		left := c.left
		if len(encodedAttrs) > 0 {
			left, _ = t.insertFormatMarkers(tx, left, c.right, c.attrs, encodedAttrs)
		}
		newID := t.Doc.NextLocalID(1)
		it := &item.Item{
			ID_:         newID,
			Left:        left,
			Origin:      left,
			RightOrigin: c.right,
			ParentID:    idPtr(t.ID),
			Content:     &item.EmbedContent{JSON: string(b)},
		}
		t.Doc.Graph().Integrate(t.Type, it)
		tx.MarkNew(newID)
		tx.MarkChanged(t.ID, "", false)
		bubbleToAncestors(t.Type, tx, Event{Target: t.Type, Transaction: tx})
	})
	return nil
}

func encodeAttrs(attrs map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = string(b)
	}
	return out, nil
}

// Format applies attrs to the len visible units starting at index
// (spec.md §6 format(i, n, attrs), §4.6 formatText).
func (t *Text) Format(index, length int, attrs map[string]interface{}) error {
	encodedAttrs, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	var opErr error
	t.Doc.WithTx(func(tx *transact.Transaction) {
		start := t.attrsAt(index)
		left, _ := t.insertFormatMarkers(tx, start.left, start.right, cloneAttrs(start.attrs), encodedAttrs)

		cur := cloneAttrs(start.attrs)
		for k, v := range encodedAttrs {
			cur[k] = v
		}

		remaining := length
		walkID := start.right
		g := t.Doc.Graph()
		for walkID != nil && remaining > 0 {
			it := t.getItem(*walkID)
			if it == nil {
				break
			}
			if fc, ok := it.Content.(*item.FormatContent); ok && !it.Deleted {
				if newVal, tracked := encodedAttrs[fc.Key]; tracked && jsonEq(newVal, fc.Value) {
					deleteItemInto(g, it, tx)
				} else {
					cur[fc.Key] = fc.Value
				}
				walkID = it.Right
				left = walkID
				continue
			}
			visible := 0
			if it.Countable() && !it.Deleted {
				visible = int(it.Len())
			}
			if visible == 0 {
				walkID = it.Right
				continue
			}
			take := visible
			if take > remaining {
				it = g.GetCleanEnd(it.ID().WithClock(it.ID().Clock + uint32(remaining) - 1))
			}
			remaining -= take
			iid := it.ID()
			left = &iid
			walkID = it.Right
		}

		t.insertFormatMarkers(tx, left, walkID, cur, cloneAttrs(start.attrs))
		tx.MarkChanged(t.ID, "", false)
		bubbleToAncestors(t.Type, tx, Event{Target: t.Type, Transaction: tx})
	})
	return opErr
}

func cloneAttrs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Delete removes n visible units starting at index (spec.md §6
// delete(i,n), §4.6 deleteText).
func (t *Text) Delete(index, n int) error {
	if index < 0 || n < 0 {
		return yerr.ErrInputRange
	}
	if n == 0 {
		return nil
	}
	var opErr error
	t.Doc.WithTx(func(tx *transact.Transaction) {
		g := t.Doc.Graph()
		remaining := n
		start := t.attrsAt(index)
		walkID := start.right
		for walkID != nil && remaining > 0 {
			it := g.GetCleanStart(*walkID)
			if it == nil {
				break
			}
			if _, ok := it.Content.(*item.FormatContent); ok {
				walkID = it.Right
				continue
			}
			if it.Deleted {
				walkID = it.Right
				continue
			}
			visible := int(it.Len())
			take := visible
			if take > remaining {
				it = g.GetCleanEnd(it.ID().WithClock(it.ID().Clock + uint32(remaining) - 1))
			}
			deleteItemInto(g, it, tx)
			remaining -= take
			walkID = it.Right
		}
		if remaining > 0 {
			opErr = yerr.ErrInputRange
			return
		}
		tx.MarkChanged(t.ID, "", false)
		bubbleToAncestors(t.Type, tx, Event{Target: t.Type, Transaction: tx})
	})
	return opErr
}

// String returns the visible text, ignoring format markers and embeds.
func (t *Text) String() string {
	var out []rune
	t.walk(func(it *item.Item) bool {
		if it.Deleted {
			return true
		}
		if sc, ok := it.Content.(*item.StringContent); ok {
			out = append(out, []rune(sc.String())...)
		}
		return true
	})
	return string(out)
}

// DeltaOp is one entry of a rich-text delta (spec.md §4.6 toDelta /
// §6 toDelta / applyDelta, GLOSSARY "Delta").
type DeltaOp struct {
	Insert     interface{}            `json:"insert,omitempty"`
	Retain     int                    `json:"retain,omitempty"`
	Delete     int                    `json:"delete,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ToDelta scans the child list, coalescing consecutive visible string
// items with identical currentAttrs into one insert op (spec.md §4.6).
func (t *Text) ToDelta() []DeltaOp {
	var ops []DeltaOp
	cur := make(map[string]string)
	var pendingText []rune
	var pendingAttrs map[string]interface{}

	flush := func() {
		if len(pendingText) == 0 {
			return
		}
		ops = append(ops, DeltaOp{Insert: string(pendingText), Attributes: pendingAttrs})
		pendingText = nil
		pendingAttrs = nil
	}

	decodedAttrs := func() map[string]interface{} {
		if len(cur) == 0 {
			return nil
		}
		out := make(map[string]interface{}, len(cur))
		for k, v := range cur {
			if v == "null" {
				continue
			}
			var dv interface{}
			json.Unmarshal([]byte(v), &dv)
			out[k] = dv
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}

	sameAttrs := func(a, b map[string]interface{}) bool {
		ab, _ := json.Marshal(a)
		bb, _ := json.Marshal(b)
		return string(ab) == string(bb)
	}

	t.walk(func(it *item.Item) bool {
		if it.Deleted {
			return true
		}
		switch c := it.Content.(type) {
		case *item.FormatContent:
			cur[c.Key] = c.Value
			flush()
		case *item.StringContent:
			attrs := decodedAttrs()
			if len(pendingText) > 0 && !sameAttrs(attrs, pendingAttrs) {
				flush()
			}
			pendingAttrs = attrs
			pendingText = append(pendingText, []rune(c.String())...)
		case *item.EmbedContent:
			flush()
			var v interface{}
			json.Unmarshal([]byte(c.JSON), &v)
			ops = append(ops, DeltaOp{Insert: v, Attributes: decodedAttrs()})
		}
		return true
	})
	flush()
	return ops
}

// ApplyDelta applies a sequence of insert/retain/delete ops (spec.md §4.6,
// §8 round-trip law "applyDelta(toDelta()) == identity").
func (t *Text) ApplyDelta(ops []DeltaOp) error {
	index := 0
	for _, op := range ops {
		switch {
		case op.Insert != nil:
			if s, ok := op.Insert.(string); ok {
				if err := t.Insert(index, s, op.Attributes); err != nil {
					return err
				}
				index += len([]rune(s))
			} else {
				if err := t.InsertEmbed(index, op.Insert, op.Attributes); err != nil {
					return err
				}
				index++
			}
		case op.Delete > 0:
			if err := t.Delete(index, op.Delete); err != nil {
				return err
			}
		case op.Retain > 0:
			if op.Attributes != nil {
				if err := t.Format(index, op.Retain, op.Attributes); err != nil {
					return err
				}
			}
			index += op.Retain
		}
	}
	return nil
}
