// Package xmldoc implements the small ordered-attribute, ordered-children
// element tree the journal document is built from. It exists because the
// journal format needs attribute and child insertion order preserved exactly
// (for byte-identical round trips and for spec-mandated child ordering),
// which encoding/xml's struct-tag marshalling does not give us.
package xmldoc

// Attr is a single name/value attribute, kept in insertion order on its
// owning Node rather than in a map.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the journal tree. Text and Children are mutually
// exclusive in practice (every tag in this format is either a text leaf or a
// container), but nothing here enforces that — callers follow the journal
// schema, not the tree type.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// NewElement creates a detached node with the given tag name.
func NewElement(name string) *Node {
	return &Node{Name: name}
}

// SetAttr sets (or replaces) an attribute, sanitizing its value. Order of
// first-set is preserved; re-setting an existing attribute keeps its
// original position.
func (n *Node) SetAttr(name, value string) *Node {
	value = Sanitize(value)
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	return n
}

// Attr returns an attribute's value and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetText sets the node's text content, sanitizing it.
func (n *Node) SetText(text string) *Node {
	n.Text = Sanitize(text)
	return n
}

// AppendChild appends c as the last child and returns c, so callers can
// build-and-append in one expression.
func (n *Node) AppendChild(c *Node) *Node {
	n.Children = append(n.Children, c)
	return c
}

// FindAll returns the immediate children named name, in document order.
// This is the "XPath-style lookup" the spec restricts to log/phase/testname
// /endtime: all four are simple immediate-child selections, never deep
// descendant searches.
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the first immediate child named name.
func (n *Node) Find(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
