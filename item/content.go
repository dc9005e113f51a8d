package item

import (
	"unicode/utf16"

	"github.com/Polqt/yrepl/codec"
)

// Content is the variant payload carried by an Item (spec.md §3: "content
// — variant over {json-array, utf16-string, embed-object,
// format-marker(key,value), subtype, gc}"). GC content is modeled as its
// own Struct (see gc.go) rather than a Content variant, since a GC'd item
// has no content at all.
type Content interface {
	Len() uint32
	Countable() bool
	SplitAt(delta uint32) (left, right Content)
	Copy() Content
	encodeBody(w *codec.Writer)
}

// JSONContent holds a run of opaque JSON-encoded values, as inserted via
// YArray.insert. Each element is independently addressable by offset.
type JSONContent struct {
	Values []string // each already valid JSON, or the literal "undefined"
}

func (c *JSONContent) Len() uint32    { return uint32(len(c.Values)) }
func (c *JSONContent) Countable() bool { return true }

func (c *JSONContent) SplitAt(delta uint32) (Content, Content) {
	left := &JSONContent{Values: append([]string(nil), c.Values[:delta]...)}
	right := &JSONContent{Values: append([]string(nil), c.Values[delta:]...)}
	return left, right
}

func (c *JSONContent) Copy() Content {
	return &JSONContent{Values: append([]string(nil), c.Values...)}
}

func (c *JSONContent) encodeBody(w *codec.Writer) {
	w.WriteUvarint(uint64(len(c.Values)))
	for _, v := range c.Values {
		w.WriteString(v)
	}
}

func decodeJSONContent(r *codec.Reader) (*JSONContent, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	values := make([]string, n)
	for i := range values {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		values[i] = s
	}
	return &JSONContent{Values: values}, nil
}

// StringContent holds a run of UTF-16 code units, the unit Text
// advances indices by (spec.md §4.6).
type StringContent struct {
	Units []uint16
}

// NewStringContent encodes a Go string into UTF-16 code units.
func NewStringContent(s string) *StringContent {
	return &StringContent{Units: utf16.Encode([]rune(s))}
}

func (c *StringContent) String() string { return string(utf16.Decode(c.Units)) }
func (c *StringContent) Len() uint32     { return uint32(len(c.Units)) }
func (c *StringContent) Countable() bool { return true }

func (c *StringContent) SplitAt(delta uint32) (Content, Content) {
	left := &StringContent{Units: append([]uint16(nil), c.Units[:delta]...)}
	right := &StringContent{Units: append([]uint16(nil), c.Units[delta:]...)}
	return left, right
}

func (c *StringContent) Copy() Content {
	return &StringContent{Units: append([]uint16(nil), c.Units...)}
}

func (c *StringContent) encodeBody(w *codec.Writer) {
	w.WriteString(c.String())
}

func decodeStringContent(r *codec.Reader) (*StringContent, error) {
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return NewStringContent(s), nil
}

// EmbedContent holds a single opaque JSON object (e.g. an image embed).
type EmbedContent struct {
	JSON string
}

func (c *EmbedContent) Len() uint32    { return 1 }
func (c *EmbedContent) Countable() bool { return true }

func (c *EmbedContent) SplitAt(uint32) (Content, Content) {
	panic("item: embed content has length 1 and cannot be split")
}

func (c *EmbedContent) Copy() Content { return &EmbedContent{JSON: c.JSON} }

func (c *EmbedContent) encodeBody(w *codec.Writer) { w.WriteString(c.JSON) }

func decodeEmbedContent(r *codec.Reader) (*EmbedContent, error) {
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &EmbedContent{JSON: s}, nil
}

// FormatContent is an interleaved rich-text format marker: it does not
// advance user-visible indices (Countable() == false).
type FormatContent struct {
	Key   string
	Value string // JSON-encoded attribute value, "null" clears the attribute
}

func (c *FormatContent) Len() uint32    { return 1 }
func (c *FormatContent) Countable() bool { return false }

func (c *FormatContent) SplitAt(uint32) (Content, Content) {
	panic("item: format content has length 1 and cannot be split")
}

func (c *FormatContent) Copy() Content {
	return &FormatContent{Key: c.Key, Value: c.Value}
}

func (c *FormatContent) encodeBody(w *codec.Writer) {
	w.WriteString(c.Key)
	w.WriteString(c.Value)
}

func decodeFormatContent(r *codec.Reader) (*FormatContent, error) {
	key, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	val, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &FormatContent{Key: key, Value: val}, nil
}

// SubtypeContent marks that this Item's ID names a nested shared type
// (YArray/YMap/YText/YXmlFragment/YXmlElement/YXmlText/YXmlHook); TypeTag
// is one of the codec.TagY* constants. The type's own state (children,
// map slots) lives in a ytype.Type keyed by this Item's ID, not inline
// here — Go has no inheritance to fold Item and Type into one value the
// way the source's class hierarchy does.
type SubtypeContent struct {
	TypeTag  uint8
	NodeName string // only meaningful for YXmlElement / YXmlText
}

func (c *SubtypeContent) Len() uint32    { return 1 }
func (c *SubtypeContent) Countable() bool { return true }

func (c *SubtypeContent) SplitAt(uint32) (Content, Content) {
	panic("item: subtype content has length 1 and cannot be split")
}

func (c *SubtypeContent) Copy() Content {
	return &SubtypeContent{TypeTag: c.TypeTag, NodeName: c.NodeName}
}

func (c *SubtypeContent) encodeBody(w *codec.Writer) {
	if c.TypeTag == codec.TagYXmlElement || c.TypeTag == codec.TagYXmlText {
		w.WriteString(c.NodeName)
	}
}
