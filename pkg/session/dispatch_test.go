package session

import (
	"context"
	"strings"
	"testing"

	"github.com/sdcio/confd/pkg/confdctx"
	"github.com/sdcio/confd/pkg/frame"
	"github.com/sdcio/confd/pkg/lock"
	"github.com/sdcio/confd/pkg/notify"
	"github.com/sdcio/confd/pkg/plugin"
	"github.com/sdcio/confd/pkg/storage"
	"github.com/sdcio/confd/pkg/store"
)

func newTestContext(t *testing.T) *confdctx.Context {
	t.Helper()
	st, err := store.New(context.Background(), storage.NewFilePlugin(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, db := range []string{"candidate", "running"} {
		if err := st.Create(db); err != nil {
			t.Fatal(err)
		}
	}
	return confdctx.New(nil, st, lock.NewManager(), plugin.NewRegistry(), notify.NewBus(), nil, nil)
}

func fakeSession(id uint32) *Session {
	return &Session{id: id}
}

func TestDispatchLockThenChangeThenCommit(t *testing.T) {
	cc := newTestContext(t)
	s := fakeSession(1)

	reply := Dispatch(context.Background(), cc, NewManager(cc), s, frame.Message{
		Type: frame.OpLock, Body: joinFields("candidate"),
	})
	if reply.Type != frame.OpOK {
		t.Fatalf("expected OK locking candidate, got %+v", reply)
	}

	reply = Dispatch(context.Background(), cc, NewManager(cc), s, frame.Message{
		Type: frame.OpChange, Body: joinFields("candidate", "merge", "/host", "<host>h1</host>"),
	})
	if reply.Type != frame.OpOK {
		t.Fatalf("expected OK on CHANGE, got %+v", reply)
	}

	reply = Dispatch(context.Background(), cc, NewManager(cc), s, frame.Message{
		Type: frame.OpCommit, Body: joinFields("running"),
	})
	if reply.Type != frame.OpOK {
		t.Fatalf("expected OK on COMMIT, got %+v", reply)
	}

	got, err := cc.Store.Get("running", "/host")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != "h1" {
		t.Fatalf("expected running/host=h1 after commit, got %#v", got)
	}
}

func TestDispatchChangeWithoutLockFails(t *testing.T) {
	cc := newTestContext(t)
	s := fakeSession(1)

	reply := Dispatch(context.Background(), cc, NewManager(cc), s, frame.Message{
		Type: frame.OpChange, Body: joinFields("candidate", "merge", "/host", "<host>h1</host>"),
	})
	if reply.Type != frame.OpErr {
		t.Fatalf("expected ERR without a lock, got %+v", reply)
	}
}

func TestDispatchLockDeniedReportsHolder(t *testing.T) {
	cc := newTestContext(t)
	a := fakeSession(1)
	b := fakeSession(2)
	mgr := NewManager(cc)

	if reply := Dispatch(context.Background(), cc, mgr, a, frame.Message{Type: frame.OpLock, Body: joinFields("candidate")}); reply.Type != frame.OpOK {
		t.Fatalf("expected session A to acquire the lock, got %+v", reply)
	}
	reply := Dispatch(context.Background(), cc, mgr, b, frame.Message{Type: frame.OpLock, Body: joinFields("candidate")})
	if reply.Type != frame.OpErr {
		t.Fatalf("expected session B to be denied, got %+v", reply)
	}
	if f := splitFields(reply.Body); len(f) < 3 || !strings.Contains(f[2], "held by session 1") {
		t.Fatalf("expected the denial to name session 1 as holder, got %+v", reply)
	}
}

func TestDispatchUnknownOpType(t *testing.T) {
	cc := newTestContext(t)
	s := fakeSession(1)
	reply := Dispatch(context.Background(), cc, NewManager(cc), s, frame.Message{Type: frame.OpType(999)})
	if reply.Type != frame.OpErr {
		t.Fatalf("expected ERR for unknown op_type, got %+v", reply)
	}
}

func TestSplitJoinFieldsRoundtrip(t *testing.T) {
	body := joinFields("running", "merge", "/host", "h1")
	got := splitFields(body)
	want := []string{"running", "merge", "/host", "h1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
