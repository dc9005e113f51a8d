package ytype

import "github.com/Polqt/yrepl/codec"

// ToJSONAny dispatches ToJSON across whichever concrete shared type t
// wraps, by its content-variant tag. Used when a type is nested as a
// value inside an Array/Map/XML element.
func ToJSONAny(t *Type) interface{} {
	switch t.Tag {
	case codec.TagYArray:
		return (&Array{t}).ToJSON()
	case codec.TagYMap:
		return (&Map{t}).ToJSON()
	case codec.TagYText:
		return (&Text{t}).String()
	case codec.TagYXmlFragment, codec.TagYXmlElement, codec.TagYXmlHook:
		return (&XMLElement{t}).ToXMLString()
	case codec.TagYXmlText:
		return (&Text{t}).String()
	default:
		return nil
	}
}
