package session

import (
	"context"
	"errors"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/confdctx"
	"github.com/sdcio/confd/pkg/eventloop"
	"github.com/sdcio/confd/pkg/frame"
)

// Server wires a session Manager into an event loop: it registers the
// listening socket for readability, accepts and registers new sessions, and
// dispatches one frame per readiness callback, matching spec.md §4.F/§4.G's
// "read-ready callback reads one framed message" contract.
type Server struct {
	cc  *confdctx.Context
	mgr *Manager
	ln  *net.UnixListener
}

// NewServer returns a Server bound to an already-listening socket.
func NewServer(cc *confdctx.Context, mgr *Manager, ln *net.UnixListener) *Server {
	return &Server{cc: cc, mgr: mgr, ln: ln}
}

// Register arms the listener and every future session's descriptor on
// loop, and installs the loop's shutdown cleanup that destroys every live
// session (releasing its locks and subscriptions) before the loop returns,
// per spec.md §4.G's shutdown sequence.
func (srv *Server) Register(ctx context.Context, loop *eventloop.Loop) error {
	lnFD, err := rawFD(srv.ln)
	if err != nil {
		return err
	}
	if err := loop.RegisterFD(lnFD, func() { srv.acceptOne(ctx, loop) }); err != nil {
		return err
	}
	loop.OnShutdown(func() {
		for _, s := range srv.mgr.Sessions() {
			srv.mgr.Destroy(s.ID())
		}
	})
	return nil
}

func (srv *Server) acceptOne(ctx context.Context, loop *eventloop.Loop) {
	s, err := srv.mgr.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Warnf("session: accept: %v", err)
		}
		return
	}
	fd, err := rawFD(s.RawConn())
	if err != nil {
		log.Warnf("session: session %d: raw fd: %v", s.ID(), err)
		srv.mgr.Destroy(s.ID())
		return
	}
	if err := loop.RegisterFD(fd, func() { srv.readOne(ctx, s) }); err != nil {
		log.Warnf("session: session %d: register fd: %v", s.ID(), err)
		srv.mgr.Destroy(s.ID())
		return
	}
	s.SetUnregister(func() { loop.UnregisterFD(fd) })
}

func (srv *Server) readOne(ctx context.Context, s *Session) {
	msg, err := s.ReadOne()
	if err != nil {
		srv.mgr.Destroy(s.ID())
		if !errors.Is(err, frame.ErrCleanEOF) {
			log.Debugf("session: session %d: read: %v", s.ID(), err)
		}
		return
	}
	reply := Dispatch(ctx, srv.cc, srv.mgr, s, msg)
	if err := s.Send(reply); err != nil {
		srv.mgr.Destroy(s.ID())
		log.Debugf("session: session %d: write reply: %v", s.ID(), err)
	}
}

// rawFD extracts the underlying file descriptor from anything implementing
// syscall.Conn (*net.UnixConn and *net.UnixListener both do) for
// registration with the event loop's Poller.
func rawFD(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctlErr != nil {
		return 0, ctlErr
	}
	return fd, nil
}
