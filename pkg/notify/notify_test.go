package notify

import (
	"errors"
	"testing"

	"github.com/sdcio/confd/pkg/frame"
)

type fakeSub struct {
	sid    uint32
	fail   bool
	got    []frame.Message
}

func (s *fakeSub) SessionID() uint32 { return s.sid }
func (s *fakeSub) Send(msg frame.Message) error {
	if s.fail {
		return errors.New("broken pipe")
	}
	s.got = append(s.got, msg)
	return nil
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	a := &fakeSub{sid: 1}
	c := &fakeSub{sid: 2}
	b.Subscribe("CLICON", a)
	b.Subscribe("CLICON", c)

	b.Publish("CLICON", LevelInfo, "hello")

	if len(a.got) != 1 || len(c.got) != 1 {
		t.Fatalf("expected both subscribers to receive the notification, got a=%d c=%d", len(a.got), len(c.got))
	}
}

func TestPublishOnlyReachesSubscribedStream(t *testing.T) {
	b := NewBus()
	a := &fakeSub{sid: 1}
	b.Subscribe("CLICON", a)

	b.Publish("OTHER", LevelInfo, "hello")

	if len(a.got) != 0 {
		t.Fatal("expected no delivery to an unrelated stream")
	}
}

func TestPublishFailureDestroysOnlyThatSubscriberAndDoesNotAbort(t *testing.T) {
	b := NewBus()
	var destroyed []uint32
	b.OnSendFailure(func(sid uint32) { destroyed = append(destroyed, sid) })

	broken := &fakeSub{sid: 1, fail: true}
	healthy := &fakeSub{sid: 2}
	b.Subscribe("CLICON", broken)
	b.Subscribe("CLICON", healthy)

	b.Publish("CLICON", LevelInfo, "hello")

	if len(destroyed) != 1 || destroyed[0] != 1 {
		t.Fatalf("expected session 1 destroyed, got %v", destroyed)
	}
	if len(healthy.got) != 1 {
		t.Fatal("expected delivery to continue past a failed subscriber")
	}
}

func TestUnsubscribeAllRemovesFromEveryStream(t *testing.T) {
	b := NewBus()
	sub := &fakeSub{sid: 1}
	b.Subscribe("CLICON", sub)
	b.Subscribe("audit", sub)

	b.UnsubscribeAll(1)

	b.Publish("CLICON", LevelInfo, "x")
	b.Publish("audit", LevelInfo, "y")
	if len(sub.got) != 0 {
		t.Fatal("expected no further delivery after UnsubscribeAll")
	}
}

func TestEscapePercentDoublesPercent(t *testing.T) {
	if got := EscapePercent("100% done"); got != "100%% done" {
		t.Fatalf("expected percent escaped, got %q", got)
	}
}
