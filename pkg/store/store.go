// Package store implements the datastore manager of spec.md §4.B: named
// datastores exposed as create/delete/exists/copy/get/put, delegated to a
// github.com/sdcio/confd/pkg/storage.Plugin backend. The manager itself adds
// no atomicity or durability guarantees beyond what the backend provides —
// it is a thin, synchronous façade, matching the spec's "operations are
// synchronous from the caller's viewpoint" requirement.
package store

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/storage"
	"github.com/sdcio/confd/pkg/xmltree"
)

// Manager exposes the named-datastore operation set to the rest of the
// daemon, backed by a single connected storage.Session.
type Manager struct {
	sess storage.Session
}

// New connects plugin and returns a Manager backed by the resulting session.
// dbdir is forwarded to the backend via SetOpt, matching the original
// backend's xmldb_setopt(h, "dbdir", ...) call during startup.
func New(ctx context.Context, plugin storage.Plugin, dbdir string) (*Manager, error) {
	sess, err := plugin.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := sess.SetOpt("dbdir", dbdir); err != nil {
		return nil, fmt.Errorf("store: setopt dbdir: %w", err)
	}
	return &Manager{sess: sess}, nil
}

// Close releases the underlying storage session.
func (m *Manager) Close() error {
	return m.sess.Disconnect()
}

// Exists reports whether db exists.
func (m *Manager) Exists(db string) (bool, error) {
	return m.sess.Exists(db)
}

// Create makes a new, empty datastore. It fails if db already exists
// (spec.md §4.B edge case).
func (m *Manager) Create(db string) error {
	if err := m.sess.Create(db); err != nil {
		return err
	}
	log.Debugf("store: created datastore %q", db)
	return nil
}

// Delete removes db. Deleting a missing datastore succeeds (a no-op) if and
// only if the backend reports it via storage.IsNotFound; any other backend
// error propagates unchanged (spec.md §4.B edge case).
func (m *Manager) Delete(db string) error {
	if err := m.sess.Delete(db); err != nil {
		if storage.IsNotFound(err) {
			log.Debugf("store: delete %q: already absent", db)
			return nil
		}
		return fmt.Errorf("store: delete %q: %w", db, err)
	}
	log.Debugf("store: deleted datastore %q", db)
	return nil
}

// InitDB recreates db empty, regardless of whether it previously existed —
// the INITDB op_type of spec.md §4.F.
func (m *Manager) InitDB(db string) error {
	if ok, err := m.sess.Exists(db); err != nil {
		return err
	} else if ok {
		if err := m.sess.Delete(db); err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("store: initdb %q: %w", db, err)
		}
	}
	return m.sess.Create(db)
}

// Copy takes an atomic snapshot of src into dst. The caller is responsible
// for holding locks on both names (spec.md §4.E) so that no concurrent
// writer observes a partial copy.
func (m *Manager) Copy(src, dst string) error {
	if err := m.sess.Copy(src, dst); err != nil {
		return fmt.Errorf("store: copy %q -> %q: %w", src, dst, err)
	}
	return nil
}

// Get retrieves the subtree at path within db. An empty path returns the
// whole tree. A nil, nil result means path matched nothing.
func (m *Manager) Get(db, path string) (*xmltree.Node, error) {
	return m.sess.Get(db, path)
}

// Put applies op (merge, replace, or remove) at path within db.
func (m *Manager) Put(db string, op xmltree.Op, path string, sub *xmltree.Node) error {
	if err := m.sess.Put(db, op, path, sub); err != nil {
		return fmt.Errorf("store: put %s %q in %q: %w", op, path, db, err)
	}
	return nil
}

// Apply atomically replaces dst's content with src's, used by the commit
// engine's "Apply" phase (spec.md §4.D step 6). It delegates directly to
// the backend's Copy, which spec.md §4.B requires to behave as an atomic
// snapshot: dst's prior content (in memory and on disk) is only ever
// replaced once the new content has been fully built and durably written,
// never deleted up front. Deleting dst before confirming the copy would
// destroy it if the copy then failed, leaving running gone rather than
// byte-for-byte unchanged on an aborted commit (spec.md §4.D, §8 property 1).
func (m *Manager) Apply(src, dst string) error {
	if err := m.sess.Copy(src, dst); err != nil {
		return fmt.Errorf("store: apply %q -> %q: %w", src, dst, err)
	}
	return nil
}
