// Package session implements the client session and RPC dispatch layer of
// spec.md §4.F: a UNIX-stream control socket, per-session state, and a
// typed-RPC dispatch table keyed by frame.OpType.
package session

import (
	"fmt"
	"net"
	"os/user"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sdcio/confd/pkg/confdctx"
	"github.com/sdcio/confd/pkg/frame"
)

// Session is one accepted client connection.
type Session struct {
	id   uint32
	conn *net.UnixConn

	UID, GID, PID uint32

	mu sync.Mutex

	// unregister, if set, removes the session's descriptor from the event
	// loop. KILL destroys a session from a different session's dispatch
	// call, so Destroy needs this hook to keep the loop's fd table from
	// holding a callback for a descriptor number the kernel may later reuse.
	unregister func()
}

// SetUnregister installs the hook Destroy calls to deregister the session's
// descriptor from the event loop. Called once by Server at accept time.
func (s *Session) SetUnregister(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregister = fn
}

// ID returns the session's monotonically increasing identifier.
func (s *Session) ID() uint32 { return s.id }

// SessionID implements notify.Subscriber.
func (s *Session) SessionID() uint32 { return s.id }

// Send writes one frame to the session's connection. It implements
// notify.Subscriber so the notification bus can deliver NOTIFY frames
// directly.
func (s *Session) Send(msg frame.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return frame.Encode(s.conn, msg)
}

// ReadOne reads exactly one frame from the session, blocking until it is
// available. The event loop only calls this when the session's descriptor
// is reported readable, so in practice this does not block.
func (s *Session) ReadOne() (frame.Message, error) {
	return frame.Decode(s.conn)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// RawConn exposes the underlying connection for event-loop fd registration.
func (s *Session) RawConn() *net.UnixConn { return s.conn }

// Manager accepts connections on a control socket and tracks live sessions
// by id, destroying them (releasing locks and subscriptions) on EOF, error,
// or KILL.
type Manager struct {
	ctx      *confdctx.Context
	listener *net.UnixListener

	mu       sync.Mutex
	sessions map[uint32]*Session
}

// NewManager returns a session Manager bound to ctx's collaborators.
func NewManager(ctx *confdctx.Context) *Manager {
	return &Manager{ctx: ctx, sessions: map[uint32]*Session{}}
}

// Listen binds the control socket at path, mode 0660, owner group set to
// groupName (spec.md §6 "Environment": the group must already exist).
func (m *Manager) Listen(path, groupName string) (*net.UnixListener, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("session: resolve %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("session: listen %s: %w", path, err)
	}

	grp, err := user.LookupGroup(groupName)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("session: lookup group %s: %w", groupName, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("session: bad gid for group %s: %w", groupName, err)
	}
	if err := unix.Chown(path, -1, gid); err != nil {
		ln.Close()
		return nil, fmt.Errorf("session: chown %s: %w", path, err)
	}
	if err := unix.Chmod(path, 0o660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("session: chmod %s: %w", path, err)
	}

	m.listener = ln
	log.Infof("session: listening on %s (group %s)", path, groupName)
	return ln, nil
}

// Accept accepts one pending connection and registers a new Session for it,
// reading peer credentials via SO_PEERCRED.
func (m *Manager) Accept() (*Session, error) {
	conn, err := m.listener.AcceptUnix()
	if err != nil {
		return nil, err
	}

	uid, gid, pid, err := peerCredentials(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: peer credentials: %w", err)
	}

	s := &Session{
		id:   m.ctx.NextSessionID(),
		conn: conn,
		UID:  uid, GID: gid, PID: pid,
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	if m.ctx.Metrics != nil {
		m.ctx.Metrics.SessionsTotal.Inc()
		m.ctx.Metrics.SessionsActive.Inc()
	}
	log.Infof("session: accepted session %d (uid=%d gid=%d pid=%d)", s.id, uid, gid, pid)
	return s, nil
}

func peerCredentials(conn *net.UnixConn) (uid, gid, pid uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, 0, err
	}
	var ucred *unix.Ucred
	var sysErr error
	ctlErr := raw.Control(func(fd uintptr) {
		ucred, sysErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil {
		return 0, 0, 0, ctlErr
	}
	if sysErr != nil {
		return 0, 0, 0, sysErr
	}
	return uint32(ucred.Uid), uint32(ucred.Gid), uint32(ucred.Pid), nil
}

// Get returns the live session with the given id, if any.
func (m *Manager) Get(id uint32) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy releases every lock and subscription owned by id, closes its
// connection, and forgets it. Per spec.md §3, lock and subscription release
// must complete before the session is freed.
func (m *Manager) Destroy(id uint32) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	unregister := s.unregister
	s.mu.Unlock()
	if unregister != nil {
		unregister()
	}

	m.ctx.Locks.ReleaseSession(id)
	m.ctx.Notify.UnsubscribeAll(id)
	_ = s.Close()

	if m.ctx.Metrics != nil {
		m.ctx.Metrics.SessionsActive.Dec()
	}
	log.Infof("session: destroyed session %d", id)
}

// Sessions returns every currently live session.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
