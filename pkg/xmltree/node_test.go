package xmltree

import "testing"

func buildConfig() *Node {
	root := New("cfg")
	host := NewText("host", "old-host")
	root.AddChild(host)
	return root
}

func TestMergeCreatesMissingAncestors(t *testing.T) {
	root := New("cfg")
	if err := root.Put(OpMerge, "/interfaces/interface[name=eth0]/mtu", NewText("mtu", "1500")); err != nil {
		t.Fatal(err)
	}
	got := root.Find("/interfaces/interface[name=eth0]/mtu")
	if got == nil || got.Text != "1500" {
		t.Fatalf("expected mtu=1500, got %#v", got)
	}
}

func TestMergeReplacesLeafValue(t *testing.T) {
	root := buildConfig()
	if err := root.Put(OpMerge, "/host", NewText("host", "new-host")); err != nil {
		t.Fatal(err)
	}
	if got := root.Find("/host"); got == nil || got.Text != "new-host" {
		t.Fatalf("expected host=new-host, got %#v", got)
	}
}

func TestMergeIdempotent(t *testing.T) {
	a := buildConfig()
	b := buildConfig()
	val := NewText("host", "h1")

	if err := a.Put(OpMerge, "/host", val); err != nil {
		t.Fatal(err)
	}
	if err := a.Put(OpMerge, "/host", val); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(OpMerge, "/host", val); err != nil {
		t.Fatal(err)
	}
	if !Equal(a, b) {
		t.Fatalf("put(merge,x) twice should equal put(merge,x) once")
	}
}

func TestReplaceSubstitutesWholesale(t *testing.T) {
	root := New("cfg")
	iface := New("interface")
	iface.SetAttr("name", "eth0")
	iface.AddChild(NewText("mtu", "1500"))
	iface.AddChild(NewText("speed", "1000"))
	root.AddChild(iface)

	replacement := New("interface")
	replacement.SetAttr("name", "eth0")
	replacement.AddChild(NewText("mtu", "9000"))

	if err := root.Put(OpReplace, "/interface[name=eth0]", replacement); err != nil {
		t.Fatal(err)
	}
	got := root.Find("/interface[name=eth0]")
	if got == nil {
		t.Fatal("interface missing after replace")
	}
	if got.Find("/speed") != nil {
		t.Fatal("replace should have dropped the speed child")
	}
	if mtu := got.Find("/mtu"); mtu == nil || mtu.Text != "9000" {
		t.Fatalf("expected mtu=9000, got %#v", mtu)
	}
}

func TestRemoveIsNoopWhenAbsent(t *testing.T) {
	root := buildConfig()
	if err := root.Put(OpRemove, "/nonexistent", nil); err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 1 {
		t.Fatalf("remove of absent node must be a no-op")
	}
}

func TestRemoveDeletesMatchedNode(t *testing.T) {
	root := buildConfig()
	if err := root.Put(OpRemove, "/host", nil); err != nil {
		t.Fatal(err)
	}
	if root.Find("/host") != nil {
		t.Fatal("expected host to be removed")
	}
}

func TestCloneIsIndependentCopy(t *testing.T) {
	root := buildConfig()
	clone := root.Clone()
	clone.Find("/host").Text = "mutated"
	if root.Find("/host").Text == "mutated" {
		t.Fatal("mutating a clone must not affect the original")
	}
	if !Equal(root, buildConfig()) {
		t.Fatal("original should be unaffected by clone mutation")
	}
}

func TestEqualIgnoresAttributeOrder(t *testing.T) {
	a := New("if")
	a.SetAttr("name", "eth0")
	a.SetAttr("admin", "up")

	b := New("if")
	b.SetAttr("admin", "up")
	b.SetAttr("name", "eth0")

	if !Equal(a, b) {
		t.Fatal("Equal must be insensitive to attribute order")
	}
}

func TestDiffEmptyForEqualTrees(t *testing.T) {
	a := buildConfig()
	b := buildConfig()
	if changes := Diff(a, b); len(changes) != 0 {
		t.Fatalf("expected no changes for equal trees, got %v", changes)
	}
}

func TestDiffDetectsAddUpdateRemove(t *testing.T) {
	old := New("cfg")
	old.AddChild(NewText("host", "h1"))
	old.AddChild(NewText("stale", "x"))

	candidate := New("cfg")
	candidate.AddChild(NewText("host", "h2"))
	candidate.AddChild(NewText("fresh", "y"))

	changes := Diff(old, candidate)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}

	byOp := map[ChangeOp]int{}
	for _, c := range changes {
		byOp[c.Op]++
	}
	if byOp[ChangeAdd] != 1 || byOp[ChangeUpdate] != 1 || byOp[ChangeRemove] != 1 {
		t.Fatalf("unexpected op distribution: %+v", byOp)
	}
}
