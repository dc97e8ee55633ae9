package eventloop

import (
	"context"
	"testing"
	"time"
)

func TestRegisterFDDispatchesOnNotify(t *testing.T) {
	p := NewChanPoller()
	l := New(p)

	fired := make(chan struct{}, 1)
	if err := l.RegisterFD(3, func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	p.Notify(3)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected callback to fire after Notify")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}

func TestUnregisterFDStopsDispatch(t *testing.T) {
	p := NewChanPoller()
	l := New(p)

	fired := make(chan struct{}, 1)
	if err := l.RegisterFD(5, func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	l.UnregisterFD(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	p.Notify(5) // armed==false now, Notify is a no-op
	select {
	case <-fired:
		t.Fatal("expected no dispatch after UnregisterFD")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTimerFiresAtDueTime(t *testing.T) {
	p := NewChanPoller()
	l := New(p)

	fired := make(chan struct{}, 1)
	l.AddTimer(time.Now().Add(50*time.Millisecond), func() { fired <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected timer to fire")
	}
}

func TestShutdownRunsCleanupInOrder(t *testing.T) {
	p := NewChanPoller()
	l := New(p)

	var order []int
	l.OnShutdown(func() { order = append(order, 1) })
	l.OnShutdown(func() { order = append(order, 2) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return")
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected cleanup in registration order, got %v", order)
	}
}
