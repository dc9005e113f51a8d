package ytype

import (
	"encoding/json"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/transact"
)

// Map is the key/value shared type (spec.md §4.5, §6 YMap).
type Map struct{ *Type }

// NewMap wraps a freshly created root-level Map type.
func NewMap(doc Doc, rootID id.ID) *Map {
	return &Map{newType(doc, rootID, codec.TagYMap)}
}

// Set creates a new item for key, wired in front of the current chain
// head (spec.md §4.5): "the head is always the most recent writer."
func (m *Map) Set(key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.Doc.WithTx(func(tx *transact.Transaction) {
		prevHead := m.mapHeads[key]
		newID := m.Doc.NextLocalID(1)
		k := key
		it := &item.Item{
			ID_:         newID,
			RightOrigin: prevHead,
			ParentID:    idPtr(m.ID),
			ParentKey:   &k,
			Content:     &item.JSONContent{Values: []string{string(b)}},
		}
		g := m.Doc.Graph()
		g.Integrate(m.Type, it)
		tx.MarkNew(newID)
		tx.MarkChanged(m.ID, key, true)
		bubbleToAncestors(m.Type, tx, Event{Target: m.Type, Transaction: tx, ChangedKeys: map[string]bool{key: true}})
	})
	return nil
}

// visibleHead returns the first non-deleted item in key's chain.
func (m *Map) visibleHead(key string) *item.Item {
	cur := m.mapHeads[key]
	for cur != nil {
		it := m.getItem(*cur)
		if it == nil {
			return nil
		}
		if !it.Deleted {
			return it
		}
		cur = it.Right
	}
	return nil
}

// Get returns the JSON-decoded value at key, or ok=false if absent/deleted.
func (m *Map) Get(key string) (interface{}, bool) {
	it := m.visibleHead(key)
	if it == nil {
		return nil, false
	}
	switch c := it.Content.(type) {
	case *item.JSONContent:
		var v interface{}
		if err := json.Unmarshal([]byte(c.Values[0]), &v); err != nil {
			return nil, false
		}
		return v, true
	case *item.SubtypeContent:
		if nested := m.Doc.TypeByID(it.ID()); nested != nil {
			return ToJSONAny(nested), true
		}
	}
	return nil, false
}

// Has reports whether key has a non-deleted value.
func (m *Map) Has(key string) bool { return m.visibleHead(key) != nil }

// Delete deletes key's current head item.
func (m *Map) Delete(key string) {
	it := m.visibleHead(key)
	if it == nil {
		return
	}
	m.Doc.WithTx(func(tx *transact.Transaction) {
		g := m.Doc.Graph()
		deleteItemInto(g, it, tx)
		tx.MarkChanged(m.ID, key, false)
		bubbleToAncestors(m.Type, tx, Event{Target: m.Type, Transaction: tx, ChangedKeys: map[string]bool{key: true}})
	})
}

// Keys returns every key with a currently visible value.
func (m *Map) Keys() []string {
	out := make([]string, 0, len(m.mapHeads))
	for k := range m.mapHeads {
		if m.visibleHead(k) != nil {
			out = append(out, k)
		}
	}
	return out
}

// ToJSON returns the map's visible contents.
func (m *Map) ToJSON() map[string]interface{} {
	out := make(map[string]interface{})
	for _, k := range m.Keys() {
		if v, ok := m.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
