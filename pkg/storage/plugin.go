// Package storage implements the storage-plugin contract of spec.md §6: the
// on-disk XML serialization backend is deliberately out of the core's scope,
// but the core needs a concrete collaborator to exercise — FilePlugin below
// is the bundled implementation, built on github.com/beevik/etree so that
// datastores are real XML files rather than an in-memory stand-in.
package storage

import (
	"context"

	"github.com/sdcio/confd/pkg/xmltree"
)

// Plugin is the external storage-plugin contract (spec.md §6): connect
// returns a session-scoped handle; every other operation hangs off it.
type Plugin interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is the connected handle returned by Plugin.Connect. All methods
// return an error, never a negative sentinel — the "0 or negative errno
// plus out-of-band description" contract of spec.md §6 translated to Go.
type Session interface {
	Disconnect() error
	SetOpt(name string, value any) error
	Exists(db string) (bool, error)
	Create(db string) error
	Delete(db string) error
	Copy(src, dst string) error
	Get(db string, path string) (*xmltree.Node, error)
	Put(db string, op xmltree.Op, path string, sub *xmltree.Node) error
}

// notFoundError is returned by Delete/Exists-adjacent operations when a
// datastore is absent; pkg/store relies on IsNotFound(err) to implement "delete of a missing datastore succeeds iff backend reports
// not found" (spec.md §4.B).
type notFoundError struct{ db string }

func (e *notFoundError) Error() string { return "storage: datastore not found: " + e.db }

func newNotFound(db string) error { return &notFoundError{db: db} }

// IsNotFound reports whether err indicates a missing datastore.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}
