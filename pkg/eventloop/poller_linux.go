//go:build linux

package eventloop

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the real Linux Poller, backed by golang.org/x/sys/unix's
// epoll wrappers.
type epollPoller struct {
	fd int
}

// NewPlatformPoller returns the real epoll-backed Poller on Linux.
func NewPlatformPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.ENOENT) {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeout time.Duration) ([]int, error) {
	events := make([]unix.EpollEvent, 64)
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	for {
		n, err := unix.EpollWait(p.fd, events, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, err
		}
		ready := make([]int, 0, n)
		for i := 0; i < n; i++ {
			ready = append(ready, int(events[i].Fd))
		}
		return ready, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
