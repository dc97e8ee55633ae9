package storage

import (
	"context"
	"testing"

	"github.com/sdcio/confd/pkg/xmltree"
)

func newTestSession(t *testing.T) Session {
	t.Helper()
	p := NewFilePlugin()
	sess, err := p.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := sess.SetOpt("dbdir", t.TempDir()); err != nil {
		t.Fatalf("setopt dbdir: %v", err)
	}
	return sess
}

func TestCreateThenExists(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("running"); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists("running")
	if err != nil || !ok {
		t.Fatalf("expected running to exist, ok=%v err=%v", ok, err)
	}
}

func TestCreateOfExistingFails(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("running"); err != nil {
		t.Fatal(err)
	}
	if err := s.Create("running"); err == nil {
		t.Fatal("expected create of existing datastore to fail")
	}
}

func TestDeleteOfMissingReportsNotFound(t *testing.T) {
	s := newTestSession(t)
	err := s.Delete("nope")
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected IsNotFound error, got %v", err)
	}
}

func TestDeleteOfExistingSucceeds(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("candidate"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("candidate"); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists("candidate")
	if err != nil || ok {
		t.Fatalf("expected candidate gone, ok=%v err=%v", ok, err)
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("running"); err != nil {
		t.Fatal(err)
	}
	mtu := xmltree.NewText("mtu", "1500")
	if err := s.Put("running", xmltree.OpMerge, "/interfaces/interface[name=eth0]/mtu", mtu); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("running", "/interfaces/interface[name=eth0]/mtu")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "1500" {
		t.Fatalf("expected mtu=1500, got %#v", got)
	}
}

// TestCopyIsSnapshot verifies spec.md §4.B: copy takes an atomic snapshot,
// so a later edit to src must not be visible through dst.
func TestCopyIsSnapshot(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("running"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("running", xmltree.OpMerge, "/host", xmltree.NewText("host", "h1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Copy("running", "candidate"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("running", xmltree.OpMerge, "/host", xmltree.NewText("host", "h2")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("candidate", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "h1" {
		t.Fatalf("expected candidate snapshot to keep h1, got %#v", got)
	}
}

func TestPutRemove(t *testing.T) {
	s := newTestSession(t)
	if err := s.Create("running"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("running", xmltree.OpMerge, "/host", xmltree.NewText("host", "h1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("running", xmltree.OpRemove, "/host", nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("running", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected host removed, got %#v", got)
	}
}

// TestPersistenceAcrossReconnect ensures the file backend actually writes
// through to disk rather than relying solely on the in-memory cache.
func TestPersistenceAcrossReconnect(t *testing.T) {
	p := NewFilePlugin()
	dir := t.TempDir()

	s1, _ := p.Connect(context.Background())
	if err := s1.SetOpt("dbdir", dir); err != nil {
		t.Fatal(err)
	}
	if err := s1.Create("running"); err != nil {
		t.Fatal(err)
	}
	if err := s1.Put("running", xmltree.OpMerge, "/host", xmltree.NewText("host", "persisted")); err != nil {
		t.Fatal(err)
	}

	s2, _ := p.Connect(context.Background())
	if err := s2.SetOpt("dbdir", dir); err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get("running", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "persisted" {
		t.Fatalf("expected persisted host across sessions, got %#v", got)
	}
}
