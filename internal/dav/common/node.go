package common

import (
	"encoding/xml"

	"github.com/beevik/etree"
)

// ParseXML decodes data's root element into an etree tree: the open-ended
// request bodies PROPFIND/PROPPATCH/REPORT carry are walked directly off
// this tree by name rather than into a fixed wire struct per report, the
// way a comp-filter/prop-filter/param-filter grammar is walked.
func ParseXML(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, xml.UnmarshalError("no root element")
	}
	return root, nil
}

// ResolvedName resolves e's namespace prefix (etree's Space field carries
// the raw prefix as written, not a resolved URI) against the xmlns
// declarations visible at e, walking up through its ancestors the way
// encoding/xml resolves xml.Name.Space during Unmarshal.
func ResolvedName(e *etree.Element) xml.Name {
	return xml.Name{Space: resolveNamespace(e, e.Space), Local: e.Tag}
}

func resolveNamespace(e *etree.Element, prefix string) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return prefix
}

// FindChild returns the first direct child element named {space}local, or
// nil. An empty space matches any namespace.
func FindChild(e *etree.Element, space, local string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if c.Tag == local && (space == "" || resolveNamespace(c, c.Space) == space) {
			return c
		}
	}
	return nil
}

// FindAllChildren returns every direct child element named {space}local.
func FindAllChildren(e *etree.Element, space, local string) []*etree.Element {
	if e == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if c.Tag == local && (space == "" || resolveNamespace(c, c.Space) == space) {
			out = append(out, c)
		}
	}
	return out
}

// RawElement re-serializes e as a standalone element under name carrying
// only its chardata, discarding nested children: sufficient for the
// handful of PROPPATCH-settable live properties, which are all simple
// chardata elements.
func RawElement(e *etree.Element, name xml.Name) []byte {
	type rawElem struct {
		XMLName xml.Name
		Value string `xml:",chardata"`
	}
	b, _ := xml.Marshal(rawElem{XMLName: name, Value: e.Text()})
	return b
}
