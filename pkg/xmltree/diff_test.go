package xmltree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// nodeComparer lets cmp.Diff treat *Node equality the same way the rest of
// the package does, without reaching into its unexported fields.
var nodeComparer = cmp.Comparer(func(a, b *Node) bool { return Equal(a, b) })

func TestDiffOrderedChangeSet(t *testing.T) {
	old := New("cfg")
	old.AddChild(NewText("host", "h1"))
	old.AddChild(NewText("stale", "x"))

	candidate := New("cfg")
	candidate.AddChild(NewText("host", "h2"))
	candidate.AddChild(NewText("fresh", "y"))

	got := Diff(old, candidate)
	want := []Change{
		{Path: "/host", Op: ChangeUpdate, Old: NewText("host", "h1"), New: NewText("host", "h2")},
		{Path: "/fresh", Op: ChangeAdd, New: NewText("fresh", "y")},
		{Path: "/stale", Op: ChangeRemove, Old: NewText("stale", "x")},
	}

	opts := []cmp.Option{
		nodeComparer,
		cmpopts.SortSlices(func(a, b Change) bool { return a.Path < b.Path }),
	}
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Fatalf("unexpected change set (-want +got):\n%s", diff)
	}
}

// TestDiffWithSchemaUsesDeclaredKeysOnly shows the schema-directed path:
// matching two list entries by a schema-declared key leaf, ignoring a
// non-key attribute that also changed, rather than Diff's default of
// requiring every attribute to match.
func TestDiffWithSchemaUsesDeclaredKeysOnly(t *testing.T) {
	old := New("cfg")
	ifaceOld := New("interface")
	ifaceOld.SetAttr("name", "eth0")
	ifaceOld.SetAttr("index", "1")
	ifaceOld.AddChild(NewText("mtu", "1500"))
	old.AddChild(ifaceOld)

	candidate := New("cfg")
	ifaceNew := New("interface")
	ifaceNew.SetAttr("name", "eth0")
	ifaceNew.SetAttr("index", "2")
	ifaceNew.AddChild(NewText("mtu", "9000"))
	candidate.AddChild(ifaceNew)

	// Without a schema, every attribute (including the unrelated "index")
	// decides identity, so the differing index looks like a remove+add.
	plain := Diff(old, candidate)
	if len(plain) != 2 {
		t.Fatalf("expected remove+add without schema, got %d changes: %+v", len(plain), plain)
	}

	// With a schema that names "name" as interface's only key, the entries
	// match despite the "index" difference, yielding a single nested update.
	keyFn := func(path string) []string {
		if path == "/interface" {
			return []string{"name"}
		}
		return nil
	}
	got := DiffWithSchema(old, candidate, keyFn)
	want := []Change{
		{Path: "/interface[index=2][name=eth0]/mtu", Op: ChangeUpdate, Old: NewText("mtu", "1500"), New: NewText("mtu", "9000")},
	}
	opts := []cmp.Option{nodeComparer, cmpopts.SortSlices(func(a, b Change) bool { return a.Path < b.Path })}
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Fatalf("unexpected schema-directed change set (-want +got):\n%s", diff)
	}
}

func TestDiffNestedSubtreeReplacement(t *testing.T) {
	old := New("cfg")
	iface := New("interface")
	iface.SetAttr("name", "eth0")
	iface.AddChild(NewText("mtu", "1500"))
	old.AddChild(iface)

	candidate := New("cfg")
	iface2 := New("interface")
	iface2.SetAttr("name", "eth0")
	iface2.AddChild(NewText("mtu", "9000"))
	iface2.AddChild(NewText("speed", "1000"))
	candidate.AddChild(iface2)

	got := Diff(old, candidate)
	want := []Change{
		{Path: "/interface[name=eth0]/mtu", Op: ChangeUpdate, Old: NewText("mtu", "1500"), New: NewText("mtu", "9000")},
		{Path: "/interface[name=eth0]/speed", Op: ChangeAdd, New: NewText("speed", "1000")},
	}

	opts := []cmp.Option{
		nodeComparer,
		cmpopts.SortSlices(func(a, b Change) bool { return a.Path < b.Path }),
	}
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Fatalf("unexpected change set (-want +got):\n%s", diff)
	}
}
