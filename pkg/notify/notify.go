// Package notify implements the notification bus of spec.md §4.H: named
// event streams with an ordered subscriber list per stream, best-effort
// delivery, and the built-in CLICON log stream fed from logrus.
package notify

import (
	"strings"
	"sync"

	"github.com/sdcio/confd/pkg/frame"
)

// CLICONStream is the built-in stream the daemon publishes its own log
// lines to, matching the original backend's "CLICON" event class.
const CLICONStream = "CLICON"

// Level mirrors the severities the original backend's notify_level used.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Subscriber is anything that can receive a NOTIFY frame and be identified
// by session id for failure handling.
type Subscriber interface {
	SessionID() uint32
	Send(msg frame.Message) error
}

// Bus is the named-stream publish/subscribe registry.
type Bus struct {
	mu            sync.Mutex
	streams       map[string][]Subscriber
	onSendFailure func(sid uint32)
}

// NewBus returns an empty notification bus.
func NewBus() *Bus {
	return &Bus{streams: map[string][]Subscriber{}}
}

// OnSendFailure registers the callback invoked when delivery to a
// subscriber fails; cmd/confd-backend wires this to session.Manager.Destroy.
func (b *Bus) OnSendFailure(fn func(sid uint32)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSendFailure = fn
}

// Subscribe adds sub to stream's ordered subscriber list.
func (b *Bus) Subscribe(stream string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], sub)
}

// Unsubscribe removes sid's subscription to stream, if any.
func (b *Bus) Unsubscribe(stream string, sid uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = removeSubscriber(b.streams[stream], sid)
}

// UnsubscribeAll removes sid from every stream; called during session
// destruction before the session is freed (spec.md §3 Client session).
func (b *Bus) UnsubscribeAll(sid uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for stream, subs := range b.streams {
		b.streams[stream] = removeSubscriber(subs, sid)
	}
}

func removeSubscriber(subs []Subscriber, sid uint32) []Subscriber {
	out := subs[:0:0]
	for _, s := range subs {
		if s.SessionID() != sid {
			out = append(out, s)
		}
	}
	return out
}

// Publish sends payload to every current subscriber of stream. Delivery is
// best-effort: a send failure destroys that subscriber's session (via the
// registered onSendFailure callback) but does not abort delivery to the
// remaining subscribers.
func (b *Bus) Publish(stream string, level Level, payload string) {
	b.mu.Lock()
	subs := append([]Subscriber(nil), b.streams[stream]...)
	onFail := b.onSendFailure
	b.mu.Unlock()

	body := []byte(payload)
	for _, s := range subs {
		msg := frame.Message{Type: frame.OpNotify, Body: body}
		if err := s.Send(msg); err != nil && onFail != nil {
			onFail(s.SessionID())
		}
	}
}

// EscapePercent doubles every '%' in s, the formatting safety rule spec.md
// §4.H requires for log lines published to CLICON.
func EscapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
