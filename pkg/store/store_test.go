package store

import (
	"context"
	"testing"

	"github.com/sdcio/confd/pkg/storage"
	"github.com/sdcio/confd/pkg/xmltree"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(context.Background(), storage.NewFilePlugin(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestCreateExistingFails(t *testing.T) {
	m := newTestManager(t)
	if err := m.Create("candidate"); err != nil {
		t.Fatal(err)
	}
	if err := m.Create("candidate"); err == nil {
		t.Fatal("expected create of existing datastore to fail")
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	m := newTestManager(t)
	if err := m.Delete("nope"); err != nil {
		t.Fatalf("expected delete of missing datastore to succeed, got %v", err)
	}
}

func TestInitDBRecreatesEmpty(t *testing.T) {
	m := newTestManager(t)
	if err := m.Create("candidate"); err != nil {
		t.Fatal(err)
	}
	if err := m.Put("candidate", xmltree.OpMerge, "/host", xmltree.NewText("host", "h1")); err != nil {
		t.Fatal(err)
	}
	if err := m.InitDB("candidate"); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get("candidate", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected empty datastore after InitDB, got %#v", got)
	}
}

func TestApplyReplacesDestinationWithSource(t *testing.T) {
	m := newTestManager(t)
	if err := m.Create("candidate"); err != nil {
		t.Fatal(err)
	}
	if err := m.Create("running"); err != nil {
		t.Fatal(err)
	}
	if err := m.Put("running", xmltree.OpMerge, "/stale", xmltree.NewText("stale", "x")); err != nil {
		t.Fatal(err)
	}
	if err := m.Put("candidate", xmltree.OpMerge, "/host", xmltree.NewText("host", "new")); err != nil {
		t.Fatal(err)
	}

	if err := m.Apply("candidate", "running"); err != nil {
		t.Fatal(err)
	}

	if got, _ := m.Get("running", "/stale"); got != nil {
		t.Fatal("expected stale running content to be gone after apply")
	}
	got, err := m.Get("running", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "new" {
		t.Fatalf("expected host=new after apply, got %#v", got)
	}
}
