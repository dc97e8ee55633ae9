package storage

import (
	"github.com/beevik/etree"

	"github.com/sdcio/confd/pkg/xmltree"
)

// nodeToElement renders a configuration tree node as an etree.Element,
// recursively, preserving attribute and child order.
func nodeToElement(n *xmltree.Node) *etree.Element {
	e := etree.NewElement(n.Tag)
	for _, a := range n.Attrs {
		e.CreateAttr(a.Name, a.Value)
	}
	if n.Text != "" {
		e.SetText(n.Text)
	}
	for _, c := range n.Children {
		e.AddChild(nodeToElement(c))
	}
	return e
}

// elementToNode is the inverse of nodeToElement.
func elementToNode(e *etree.Element) *xmltree.Node {
	n := xmltree.New(e.Tag)
	for _, a := range e.Attr {
		n.SetAttr(a.Key, a.Value)
	}
	n.Text = e.Text()
	for _, c := range e.ChildElements() {
		n.AddChild(elementToNode(c))
	}
	return n
}
