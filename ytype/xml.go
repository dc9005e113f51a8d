package ytype

import (
	"encoding/json"
	"strings"

	"github.com/Polqt/yrepl/codec"
	"github.com/Polqt/yrepl/id"
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/transact"
)

// appendChild creates a new nested Type of the given tag/nodeName as the
// last child of t's child list, and returns it (spec.md §6 XML tree
// operations are not individually enumerated; this mirrors Array.Push's
// end-of-list insertion using SubtypeContent instead of JSONContent).
func appendChild(t *Type, tag uint8, nodeName string) *Type {
	var child *Type
	t.Doc.WithTx(func(tx *transact.Transaction) {
		// Find the last visible item to anchor Left.
		var left *id.ID
		t.walk(func(it *item.Item) bool {
			if !it.Deleted {
				iid := it.ID()
				left = &iid
			}
			return true
		})
		newID := t.Doc.NextLocalID(1)
		it := &item.Item{
			ID_:      newID,
			Left:     left,
			Origin:   left,
			ParentID: idPtr(t.ID),
			Content:  &item.SubtypeContent{TypeTag: tag, NodeName: nodeName},
		}
		t.Doc.Graph().Integrate(t, it)
		tx.MarkNew(newID)
		tx.MarkChanged(t.ID, "", true)

		child = newType(t.Doc, newID, tag)
		child.ParentID = idPtr(t.ID)
		child.nodeName = nodeName
		bubbleToAncestors(t, tx, Event{Target: t, Transaction: tx})
	})
	return child
}

// AppendElement appends a new child XmlElement named nodeName.
func (e *XMLElement) AppendElement(nodeName string) *XMLElement {
	return &XMLElement{appendChild(e.Type, codec.TagYXmlElement, nodeName)}
}

// AppendText appends a new child XmlText node.
func (e *XMLElement) AppendText() *XMLText {
	t := appendChild(e.Type, codec.TagYXmlText, "")
	return &XMLText{&Text{t}}
}

// AppendElement appends a new child XmlElement to the fragment.
func (f *XMLFragment) AppendElement(nodeName string) *XMLElement {
	return &XMLElement{appendChild(f.Type, codec.TagYXmlElement, nodeName)}
}

// XMLFragment is the root-less container of XML child nodes.
type XMLFragment struct{ *Type }

// NewXMLFragment wraps a freshly created root-level XmlFragment type.
func NewXMLFragment(doc Doc, rootID id.ID) *XMLFragment {
	return &XMLFragment{newType(doc, rootID, codec.TagYXmlFragment)}
}

// XMLElement is a named XML node with attributes (stored like a Map,
// keyed by attribute name) and children (stored like an Array).
type XMLElement struct{ *Type }

// NewXMLElement wraps a freshly created XmlElement/XmlHook type.
func NewXMLElement(doc Doc, rootID id.ID, nodeName string, hook bool) *XMLElement {
	tag := uint8(codec.TagYXmlElement)
	if hook {
		tag = codec.TagYXmlHook
	}
	t := newType(doc, rootID, tag)
	t.nodeName = nodeName
	return &XMLElement{t}
}

// XMLText is plain text inside an XML tree; it reuses Text's child-list
// representation (string/embed/format items).
type XMLText struct{ *Text }

// NewXMLText wraps a freshly created XmlText type.
func NewXMLText(doc Doc, rootID id.ID) *XMLText {
	t := newType(doc, rootID, codec.TagYXmlText)
	return &XMLText{&Text{t}}
}

// SetAttribute sets an XML attribute (mirrors Map.Set over the same
// mapHeads storage; XML elements keep attributes in the keyed chain
// exactly like a map, per spec.md §3 Type fields).
func (e *XMLElement) SetAttribute(key string, value string) error {
	return (&Map{e.Type}).Set(key, value)
}

// Attribute returns an XML attribute's current value.
func (e *XMLElement) Attribute(key string) (string, bool) {
	v, ok := (&Map{e.Type}).Get(key)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, ok
}

// Attributes returns all currently-set attributes.
func (e *XMLElement) Attributes() map[string]string {
	m := (&Map{e.Type}).ToJSON()
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Children returns the element's child nodes as Types, in document order.
func (e *XMLElement) Children() []*Type {
	var out []*Type
	e.walk(func(it *item.Item) bool {
		if it.Deleted {
			return true
		}
		if _, ok := it.Content.(*item.SubtypeContent); ok {
			if child := e.Doc.TypeByID(it.ID()); child != nil {
				out = append(out, child)
			}
		}
		return true
	})
	return out
}

// ToXMLString renders the element (and its subtree) as an XML-ish string.
func (e *XMLElement) ToXMLString() string {
	var b strings.Builder
	if e.Tag == codec.TagYXmlFragment {
		for _, c := range e.Children() {
			b.WriteString(renderNode(c))
		}
		return b.String()
	}
	return renderNode(e.Type)
}

func renderNode(t *Type) string {
	switch t.Tag {
	case codec.TagYXmlText:
		return (&Text{t}).String()
	case codec.TagYXmlElement, codec.TagYXmlHook:
		el := &XMLElement{t}
		var b strings.Builder
		b.WriteString("<")
		b.WriteString(t.nodeName)
		for k, v := range el.Attributes() {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=\"")
			esc, _ := json.Marshal(v)
			b.WriteString(strings.Trim(string(esc), `"`))
			b.WriteString("\"")
		}
		b.WriteString(">")
		for _, c := range el.Children() {
			b.WriteString(renderNode(c))
		}
		b.WriteString("</")
		b.WriteString(t.nodeName)
		b.WriteString(">")
		return b.String()
	default:
		return ""
	}
}
