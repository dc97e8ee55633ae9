package main

import (
	"context"
	"testing"

	"github.com/sdcio/confd/pkg/config"
	"github.com/sdcio/confd/pkg/storage"
	"github.com/sdcio/confd/pkg/store"
)

func TestNewStoragePluginKnownNames(t *testing.T) {
	if _, err := newStoragePlugin(""); err != nil {
		t.Fatalf("default storage plugin: %v", err)
	}
	if _, err := newStoragePlugin("file"); err != nil {
		t.Fatalf("file storage plugin: %v", err)
	}
	if _, err := newStoragePlugin("nope"); err == nil {
		t.Fatal("expected error for unknown storage plugin")
	}
}

func TestEnsureDatastoresCreatesRunningAndCandidate(t *testing.T) {
	st, err := store.New(context.Background(), storage.NewFilePlugin(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	if err := ensureDatastores(st, cfg); err != nil {
		t.Fatalf("ensureDatastores: %v", err)
	}
	for _, db := range []string{"running", "candidate"} {
		ok, err := st.Exists(db)
		if err != nil || !ok {
			t.Fatalf("expected %s to exist, ok=%v err=%v", db, ok, err)
		}
	}

	// Re-running without -I must not fail on already-existing datastores.
	if err := ensureDatastores(st, cfg); err != nil {
		t.Fatalf("ensureDatastores (idempotent): %v", err)
	}
}

func TestEnsureDatastoresInitRunningRecreatesEmpty(t *testing.T) {
	st, err := store.New(context.Background(), storage.NewFilePlugin(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{InitRunning: true}
	if err := ensureDatastores(st, cfg); err != nil {
		t.Fatalf("ensureDatastores: %v", err)
	}
	if err := ensureDatastores(st, cfg); err != nil {
		t.Fatalf("ensureDatastores (re-init): %v", err)
	}
}
