// Package eventloop implements the single-threaded cooperative readiness
// multiplexer of spec.md §4.G: one goroutine owns a Poller (epoll on Linux,
// a channel-fed fallback elsewhere), a min-heap of absolute-time timers, and
// a context.Context cancellation used as the termination flag.
package eventloop

import (
	"container/heap"
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Poller is the platform readiness primitive the Loop drives. Linux gets a
// real golang.org/x/sys/unix epoll implementation; every other platform
// falls back to a channel-fed Poller that the session/netconf readers push
// readiness events into, since true single-threaded epoll has no portable
// stdlib equivalent.
type Poller interface {
	Add(fd int) error
	Remove(fd int) error
	// Wait blocks up to timeout (0 means "return immediately if nothing is
	// ready", negative means "block indefinitely") and returns the fds that
	// became readable. It retries on EINTR internally.
	Wait(timeout time.Duration) ([]int, error)
	Close() error
}

// timerEntry is one scheduled callback in the loop's min-heap.
type timerEntry struct {
	at    time.Time
	fn    func()
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any)         { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is the daemon's single-threaded readiness multiplexer.
type Loop struct {
	poller    Poller
	callbacks map[int]func()
	timers    timerHeap

	// cleanup runs once, in order, when Run returns due to context
	// cancellation: unregister fds, destroy sessions, unload plugins,
	// unlink pid/socket files (spec.md §4.G shutdown sequence).
	cleanup []func()
}

// New wraps poller in a Loop. Callers on Linux get a real epoll Poller from
// NewPlatformPoller; elsewhere they get the channel-fed fallback.
func New(poller Poller) *Loop {
	return &Loop{poller: poller, callbacks: map[int]func(){}}
}

// RegisterFD arms fd for readability and installs cb to run when it fires.
func (l *Loop) RegisterFD(fd int, cb func()) error {
	if err := l.poller.Add(fd); err != nil {
		return err
	}
	l.callbacks[fd] = cb
	return nil
}

// UnregisterFD disarms fd. Safe to call even if fd was never registered.
func (l *Loop) UnregisterFD(fd int) {
	_ = l.poller.Remove(fd)
	delete(l.callbacks, fd)
}

// AddTimer schedules fn to run at or after at.
func (l *Loop) AddTimer(at time.Time, fn func()) {
	heap.Push(&l.timers, &timerEntry{at: at, fn: fn})
}

// OnShutdown registers a cleanup step run, in registration order, once Run
// observes ctx cancellation.
func (l *Loop) OnShutdown(fn func()) {
	l.cleanup = append(l.cleanup, fn)
}

// Run blocks, dispatching readiness and timer callbacks, until ctx is
// cancelled (wired to SIGTERM/SIGINT via signal.NotifyContext by the
// caller), then runs the shutdown cleanup sequence and returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		default:
		}

		timeout := l.nextTimeout()
		ready, err := l.poller.Wait(timeout)
		if err != nil {
			return err
		}
		for _, fd := range ready {
			if cb, ok := l.callbacks[fd]; ok {
				cb()
			}
		}
		l.fireDueTimers()
	}
}

// StepOnce runs a single readiness-and-timer round without the shutdown
// sequence Run performs on cancellation, for the "-1 process one event loop
// iteration then exit" CLI flag (spec.md §6).
func (l *Loop) StepOnce() error {
	ready, err := l.poller.Wait(l.nextTimeout())
	if err != nil {
		return err
	}
	for _, fd := range ready {
		if cb, ok := l.callbacks[fd]; ok {
			cb()
		}
	}
	l.fireDueTimers()
	return nil
}

func (l *Loop) nextTimeout() time.Duration {
	if len(l.timers) == 0 {
		return 250 * time.Millisecond // periodic wakeup to re-check ctx.Done()
	}
	d := time.Until(l.timers[0].at)
	if d < 0 {
		return 0
	}
	if d > 250*time.Millisecond {
		return 250 * time.Millisecond
	}
	return d
}

func (l *Loop) fireDueTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].at.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		e.fn()
	}
}

func (l *Loop) shutdown() {
	log.Info("eventloop: shutting down")
	for fd := range l.callbacks {
		l.UnregisterFD(fd)
	}
	for _, fn := range l.cleanup {
		fn()
	}
	if err := l.poller.Close(); err != nil {
		log.Warnf("eventloop: closing poller: %v", err)
	}
}
