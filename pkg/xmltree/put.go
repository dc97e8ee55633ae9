package xmltree

import "fmt"

// Op is the put operation kind (spec.md §3/§4.B).
type Op int

const (
	OpMerge Op = iota
	OpReplace
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpMerge:
		return "merge"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Put applies sub at path according to op (spec.md §4.B):
//
//   - merge:   overlay sub onto the target, creating missing ancestors and
//     replacing leaf values;
//   - replace: substitute the subtree at path wholesale with sub;
//   - remove:  delete the node matched by path; a no-op if absent.
//
// sub is ignored for OpRemove. Put never retains sub; it clones whatever it
// attaches so the caller's copy remains theirs (ownership rule, spec.md §3).
func (root *Node) Put(op Op, path string, sub *Node) error {
	switch op {
	case OpMerge:
		return root.merge(path, sub)
	case OpReplace:
		return root.replace(path, sub)
	case OpRemove:
		return root.remove(path)
	default:
		return fmt.Errorf("xmltree: unknown op %d", op)
	}
}

func (root *Node) merge(path string, sub *Node) error {
	if sub == nil {
		return fmt.Errorf("xmltree: merge requires a value")
	}
	target := root.ensurePath(path)
	mergeInto(target, sub)
	return nil
}

// mergeInto overlays src's attributes, text and children onto dst in place.
// Leaf values (text) are replaced; list/container children are merged
// recursively, matched by tag plus any key attributes they carry.
func mergeInto(dst, src *Node) {
	for _, a := range src.Attrs {
		dst.SetAttr(a.Name, a.Value)
	}
	if len(src.Children) == 0 {
		// leaf: text always wins on merge, even when empty, matching
		// "replacing leaf values" in spec.md §4.B.
		dst.Text = src.Text
	}
	for _, sc := range src.Children {
		e := element{tag: sc.Tag, keys: keyAttrs(sc)}
		var match *Node
		for _, dc := range dst.Children {
			if e.matches(dc) {
				match = dc
				break
			}
		}
		if match == nil {
			dst.AddChild(sc.Clone())
			continue
		}
		mergeInto(match, sc)
	}
}

// keyAttrs extracts a node's attributes as a predicate key map, used to
// match same-identity list entries during merge.
func keyAttrs(n *Node) map[string]string {
	if len(n.Attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		m[a.Name] = a.Value
	}
	return m
}

func (root *Node) replace(path string, sub *Node) error {
	if sub == nil {
		return fmt.Errorf("xmltree: replace requires a value")
	}
	parent, last, ok := root.parentOf(path)
	if !ok {
		// ancestors missing: behave like merge's ensurePath, then replace.
		parent = root.ensurePath(parentPath(path))
		last = lastSeg(path)
	}
	e := parseElement(last)
	replacement := sub.Clone()
	replacement.Tag = e.tag
	for i, c := range parent.Children {
		if e.matches(c) {
			parent.Children[i] = replacement
			return nil
		}
	}
	parent.AddChild(replacement)
	return nil
}

func (root *Node) remove(path string) error {
	parent, last, ok := root.parentOf(path)
	if !ok {
		return nil // no-op: ancestors don't exist either
	}
	e := parseElement(last)
	for i, c := range parent.Children {
		if e.matches(c) {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return nil
		}
	}
	return nil // no-op if absent, per spec.md §4.B
}

func parentPath(path string) string {
	segs := splitPath(path)
	if len(segs) <= 1 {
		return "/"
	}
	p := ""
	for _, s := range segs[:len(segs)-1] {
		p += "/" + s
	}
	return p
}

func lastSeg(path string) string {
	segs := splitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
