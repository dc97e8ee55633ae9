package xmltree

import "strings"

// element is one parsed path segment: a tag name plus an optional set of
// key=value predicates, e.g. "interface[name=eth0]".
type element struct {
	tag  string
	keys map[string]string
}

func parseElement(seg string) element {
	e := element{tag: seg}
	br := strings.IndexByte(seg, '[')
	if br < 0 {
		return e
	}
	e.tag = seg[:br]
	e.keys = map[string]string{}
	for _, pred := range strings.Split(strings.Trim(seg[br:], "[]"), "][") {
		kv := strings.SplitN(pred, "=", 2)
		if len(kv) != 2 {
			continue
		}
		e.keys[kv[0]] = strings.Trim(kv[1], `'"`)
	}
	return e
}

func (e element) matches(n *Node) bool {
	if n.Tag != e.tag {
		return false
	}
	for k, v := range e.keys {
		if cv, ok := n.GetAttr(k); ok && cv == v {
			continue
		}
		if child := n.Child(k); child != nil && child.Text == v {
			continue
		}
		return false
	}
	return true
}

// Find navigates path (an xpath-lite string such as "/host" or
// "/interface[name=eth0]/mtu") from n and returns the matched node, or nil
// if any segment is absent. The first segment is matched against n's
// children, so path does not name n itself.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, seg := range splitPath(path) {
		e := parseElement(seg)
		var next *Node
		for _, c := range cur.Children {
			if e.matches(c) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// FindAll returns every node matching path; a path with no predicates on
// its final segment returns every same-tagged sibling at that location.
func (n *Node) FindAll(path string) []*Node {
	segs := splitPath(path)
	cur := []*Node{n}
	for _, seg := range segs {
		e := parseElement(seg)
		var next []*Node
		for _, parent := range cur {
			for _, c := range parent.Children {
				if e.matches(c) {
					next = append(next, c)
				}
			}
		}
		cur = next
	}
	return cur
}

// ensurePath walks (creating missing ancestors as it goes) to the node
// named by path and returns it. Used by merge.
func (n *Node) ensurePath(path string) *Node {
	cur := n
	for _, seg := range splitPath(path) {
		e := parseElement(seg)
		var next *Node
		for _, c := range cur.Children {
			if e.matches(c) {
				next = c
				break
			}
		}
		if next == nil {
			next = New(e.tag)
			for k, v := range e.keys {
				next.SetAttr(k, v)
			}
			cur.AddChild(next)
		}
		cur = next
	}
	return cur
}

// parentOf walks from n to the parent of the node named by path and returns
// it with the final path element; ok is false if path is empty or an
// ancestor is absent.
func (n *Node) parentOf(path string) (*Node, string, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, "", false
	}
	cur := n
	for _, seg := range segs[:len(segs)-1] {
		e := parseElement(seg)
		var next *Node
		for _, c := range cur.Children {
			if e.matches(c) {
				next = c
				break
			}
		}
		if next == nil {
			return nil, "", false
		}
		cur = next
	}
	return cur, segs[len(segs)-1], true
}
