// Package lock implements the per-datastore advisory lock manager of
// spec.md §4.E: a mapping from datastore name to the session that holds it.
package lock

import (
	"fmt"
	"sync"
	"time"
)

// Holder describes who holds a datastore's lock and since when.
type Holder struct {
	SessionID uint32
	AcquiredAt time.Time
}

// DeniedError reports that a lock request lost to another session.
type DeniedError struct {
	DB     string
	Holder uint32
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("lock-denied: datastore %q held by session %d", e.DB, e.Holder)
}

// Manager guards a set of named datastores with re-entrant, single-holder
// advisory locks keyed by client session id.
type Manager struct {
	mu    sync.Mutex
	held  map[string]Holder
	bySid map[uint32]map[string]bool
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		held:  map[string]Holder{},
		bySid: map[uint32]map[string]bool{},
	}
}

// Lock acquires db for sid. It succeeds if db is unlocked or already held by
// sid (re-entrant); otherwise it fails with *DeniedError naming the holder.
func (m *Manager) Lock(db string, sid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.held[db]; ok {
		if h.SessionID == sid {
			return nil
		}
		return &DeniedError{DB: db, Holder: h.SessionID}
	}
	m.held[db] = Holder{SessionID: sid, AcquiredAt: time.Now()}
	if m.bySid[sid] == nil {
		m.bySid[sid] = map[string]bool{}
	}
	m.bySid[sid][db] = true
	return nil
}

// Unlock releases db, which must currently be held by sid.
func (m *Manager) Unlock(db string, sid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlockLocked(db, sid)
}

func (m *Manager) unlockLocked(db string, sid uint32) error {
	h, ok := m.held[db]
	if !ok {
		return fmt.Errorf("lock: %q is not locked", db)
	}
	if h.SessionID != sid {
		return fmt.Errorf("lock: %q is held by session %d, not %d", db, h.SessionID, sid)
	}
	delete(m.held, db)
	delete(m.bySid[sid], db)
	if len(m.bySid[sid]) == 0 {
		delete(m.bySid, sid)
	}
	return nil
}

// HolderOf reports the current holder of db, if any.
func (m *Manager) HolderOf(db string) (Holder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.held[db]
	return h, ok
}

// IsHeldBy reports whether sid currently holds db's lock.
func (m *Manager) IsHeldBy(db string, sid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.held[db]
	return ok && h.SessionID == sid
}

// ReleaseSession releases every lock held by sid. It is called during
// session destruction and must complete before any other session can
// observe the released locks, which holding the manager's own mutex for
// the whole release guarantees.
func (m *Manager) ReleaseSession(sid uint32) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	dbs := m.bySid[sid]
	released := make([]string, 0, len(dbs))
	for db := range dbs {
		delete(m.held, db)
		released = append(released, db)
	}
	delete(m.bySid, sid)
	return released
}
