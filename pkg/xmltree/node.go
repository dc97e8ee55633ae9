// Package xmltree implements the core's configuration tree node: a
// recursive entity with a tag, ordered attributes, ordered children and an
// optional text body (spec.md §3). Subtrees handed out by Get are owned
// copies; a Node is otherwise exclusively owned by its parent.
package xmltree

import (
	"sort"
	"strings"
)

// Attr is a single (name, value) attribute pair. Attribute order is
// insignificant; it is preserved only for stable serialization.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of a configuration tree.
type Node struct {
	Tag      string
	Attrs    []Attr
	Children []*Node
	Text     string

	// Schema is an opaque pointer attached by the validator (spec.md §3).
	// It deliberately has no static type here to avoid a dependency on
	// pkg/schema from this low-level package.
	Schema any
}

// New creates a detached leaf node.
func New(tag string) *Node {
	return &Node{Tag: tag}
}

// NewText creates a detached leaf node carrying a text body.
func NewText(tag, text string) *Node {
	return &Node{Tag: tag, Text: text}
}

// SetAttr sets (or replaces) an attribute.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// GetAttr returns an attribute's value.
func (n *Node) GetAttr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AddChild appends a child, preserving insertion order.
func (n *Node) AddChild(c *Node) {
	n.Children = append(n.Children, c)
}

// Child returns the first direct child with the given tag, or nil.
func (n *Node) Child(tag string) *Node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenByTag returns every direct child with the given tag, in order.
func (n *Node) ChildrenByTag(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Clone deep-copies a node and everything beneath it. Get() and Copy()
// hand out clones so callers always receive an owned subtree (spec.md §3).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Tag:   n.Tag,
		Text:  n.Text,
		Attrs: append([]Attr(nil), n.Attrs...),
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// sortedAttrs returns a copy of Attrs sorted by name, for order-insensitive
// comparison and stable serialization.
func (n *Node) sortedAttrs() []Attr {
	out := append([]Attr(nil), n.Attrs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Equal reports whether a and b are structurally identical: same tag, same
// attributes (order-insensitive), same text, and children equal in order.
// Two syntactically equal trees must compare Equal so that Diff is stable
// (spec.md §4.D property 2 / §8 property 8).
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag != b.Tag || a.Text != b.Text {
		return false
	}
	aa, ba := a.sortedAttrs(), b.sortedAttrs()
	if len(aa) != len(ba) {
		return false
	}
	for i := range aa {
		if aa[i] != ba[i] {
			return false
		}
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Path renders a slash-separated path, joining tag names only; list keys
// are addressed through predicates handled by Find, not by Path.
func Path(elems ...string) string {
	return "/" + strings.Join(elems, "/")
}

// splitPath splits an xpath-lite string ("/a/b/c") into its elements,
// ignoring a leading slash and collapsing empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
