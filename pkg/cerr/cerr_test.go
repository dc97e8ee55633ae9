package cerr

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Database(cause, "commit %s failed", "running")

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause")
	}
	if err.Class != ClassDatabase {
		t.Fatalf("got class %v, want %v", err.Class, ClassDatabase)
	}
}

func TestAsSynthesizesDemonClass(t *testing.T) {
	plain := errors.New("boom")
	ce := As(plain)
	if ce.Class != ClassDemon {
		t.Fatalf("got class %v, want %v", ce.Class, ClassDemon)
	}
	if ce.Reason != "boom" {
		t.Fatalf("got reason %q", ce.Reason)
	}
}

func TestAsPassesThroughExistingError(t *testing.T) {
	orig := Protocol("bad frame")
	ce := As(orig)
	if ce != orig {
		t.Fatalf("expected As to return the same *Error instance")
	}
}

func TestToNetconfErrorMapsClasses(t *testing.T) {
	cases := []struct {
		class   Class
		wantTag string
	}{
		{ClassProtocol, "malformed-message"},
		{ClassSchema, "invalid-value"},
		{ClassDatabase, "operation-failed"},
		{ClassPlugin, "operation-failed"},
	}
	for _, c := range cases {
		e := &Error{Class: c.class, Reason: "x"}
		ne := e.ToNetconfError()
		if ne.Tag != c.wantTag {
			t.Errorf("class %v: got tag %q, want %q", c.class, ne.Tag, c.wantTag)
		}
	}
}

func TestWrapExtractsSyscallErrno(t *testing.T) {
	cause := fmt.Errorf("open config: %w", syscall.ENOENT)
	err := Unix(cause, "open failed")
	if err.Sub != int(syscall.ENOENT) {
		t.Fatalf("got sub %d, want %d", err.Sub, int(syscall.ENOENT))
	}
}

func TestWireErrClassIndexStable(t *testing.T) {
	e := &Error{Class: ClassPlugin, Sub: 5, Reason: "nope"}
	w := e.ToWireErr()
	if w.ErrClass != 8 || w.SubErr != 5 || w.Reason != "nope" {
		t.Fatalf("unexpected wire err: %+v", w)
	}
}
