package xmltree

// ChangeOp mirrors Op but additionally distinguishes an update at a leaf
// already present (spec.md §4.D uses (path, op, old, new) tuples).
type ChangeOp int

const (
	ChangeAdd ChangeOp = iota
	ChangeUpdate
	ChangeRemove
)

// Change is one entry of the commit engine's ordered change set.
type Change struct {
	Path string
	Op   ChangeOp
	Old  *Node
	New  *Node
}

// KeyFunc reports the ordered YANG list-key leaf names for the schema node
// at path, or nil if path does not name a list (or no schema is loaded).
// DiffWithSchema consults it to decide list-entry identity from the
// compiled schema instead of from whichever attributes a node happens to
// carry; pkg/schema.Schema.KeyOf implements it directly.
type KeyFunc func(path string) []string

// Diff walks old and new (same shape assumed: identical tag at each level)
// and returns an ordered change set, matching list entries by every
// attribute they carry. Diff is stable: two syntactically equal trees
// yield the empty slice (spec.md §4.D step 2 / §8 property 8). It is
// DiffWithSchema with a nil KeyFunc.
func Diff(old, new *Node) []Change {
	return DiffWithSchema(old, new, nil)
}

// DiffWithSchema is Diff, but list entries are matched schema-directed
// (spec.md §4.D step 2: "walking source and target schema-directed"):
// wherever keyFn reports key leaves for a path, only those leaves decide
// identity; elsewhere (untyped data, or keyFn nil) Diff's whole-attribute
// matching is used instead.
func DiffWithSchema(old, new *Node, keyFn KeyFunc) []Change {
	var changes []Change
	diffChildren("", old, new, keyFn, &changes)
	return changes
}

func diffChildren(prefix string, old, new *Node, keyFn KeyFunc, out *[]Change) {
	oldChildren := old.Children
	newChildren := new.Children

	matched := make(map[*Node]bool, len(oldChildren))
	for _, nc := range newChildren {
		p := childPath(prefix, nc)
		e := diffElement(prefix, nc, keyFn)
		var oc *Node
		for _, cand := range oldChildren {
			if matched[cand] {
				continue
			}
			if e.matches(cand) {
				oc = cand
				break
			}
		}
		if oc == nil {
			*out = append(*out, Change{Path: p, Op: ChangeAdd, New: nc})
			continue
		}
		matched[oc] = true
		if len(nc.Children) == 0 && len(oc.Children) == 0 {
			if oc.Text != nc.Text {
				*out = append(*out, Change{Path: p, Op: ChangeUpdate, Old: oc, New: nc})
			}
			continue
		}
		diffChildren(p, oc, nc, keyFn, out)
	}
	for _, oc := range oldChildren {
		if matched[oc] {
			continue
		}
		*out = append(*out, Change{Path: childPath(prefix, oc), Op: ChangeRemove, Old: oc})
	}
}

// diffElement builds the matching predicate for n: keyFn's schema-declared
// key leaves when it names any for n's path, otherwise every attribute n
// carries (Diff's historical, schema-free behavior).
func diffElement(prefix string, n *Node, keyFn KeyFunc) element {
	if keyFn != nil {
		if keys := keyFn(prefix + "/" + n.Tag); len(keys) > 0 {
			m := make(map[string]string, len(keys))
			for _, k := range keys {
				if v, ok := n.GetAttr(k); ok {
					m[k] = v
				} else if child := n.Child(k); child != nil {
					m[k] = child.Text
				}
			}
			return element{tag: n.Tag, keys: m}
		}
	}
	return element{tag: n.Tag, keys: keyAttrs(n)}
}

func childPath(prefix string, n *Node) string {
	seg := n.Tag
	if len(n.Attrs) > 0 {
		for _, a := range n.sortedAttrs() {
			seg += "[" + a.Name + "=" + a.Value + "]"
		}
	}
	return prefix + "/" + seg
}
