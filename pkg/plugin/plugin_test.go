package plugin

import (
	"context"
	"errors"
	"testing"
)

var errFail = errors.New("fake module failure")

type fakeModule struct {
	name   string
	calls  *[]string
	failOn string
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) record(step string) error {
	*f.calls = append(*f.calls, f.name+":"+step)
	if f.failOn == step {
		return errFail
	}
	return nil
}

func (f *fakeModule) Init(ctx context.Context) error           { return f.record("init") }
func (f *fakeModule) Begin(ctx context.Context, td *Txn) error { return f.record("begin") }
func (f *fakeModule) Abort(ctx context.Context, td *Txn) error { return f.record("abort") }

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModule{name: "a", calls: &[]string{}})
	r.Register(&fakeModule{name: "b", calls: &[]string{}})
	r.Register(&fakeModule{name: "c", calls: &[]string{}})

	got := r.Plugins()
	if len(got) != 3 || got[0].Name() != "a" || got[1].Name() != "b" || got[2].Name() != "c" {
		t.Fatalf("unexpected plugin order: %v", got)
	}
}

func TestInitInvokesAllInOrder(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register(&fakeModule{name: "a", calls: &calls})
	r.Register(&fakeModule{name: "b", calls: &calls})

	if err := r.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0] != "a:init" || calls[1] != "b:init" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestInitAbortsOnFirstFailure(t *testing.T) {
	var calls []string
	r := NewRegistry()
	r.Register(&fakeModule{name: "a", calls: &calls, failOn: "init"})
	r.Register(&fakeModule{name: "b", calls: &calls})

	if err := r.Init(context.Background()); err == nil {
		t.Fatal("expected init failure to propagate")
	}
	if len(calls) != 1 {
		t.Fatalf("expected init to stop after first failure, got %v", calls)
	}
}

func TestRegisterRPCLastWriteWins(t *testing.T) {
	r := NewRegistry()
	first := func(ctx context.Context, params map[string]string) (string, error) { return "first", nil }
	second := func(ctx context.Context, params map[string]string) (string, error) { return "second", nil }

	r.RegisterRPC("ns", "op", first)
	r.RegisterRPC("ns", "op", second)

	h, ok := r.LookupRPC("ns", "op")
	if !ok {
		t.Fatal("expected handler registered")
	}
	got, _ := h(context.Background(), nil)
	if got != "second" {
		t.Fatalf("expected last-registered handler to win, got %q", got)
	}
}

func TestClearAllEmptiesRPCTableOnly(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModule{name: "a", calls: &[]string{}})
	r.RegisterRPC("ns", "op", func(ctx context.Context, params map[string]string) (string, error) { return "", nil })

	r.ClearAll()

	if _, ok := r.LookupRPC("ns", "op"); ok {
		t.Fatal("expected RPC table cleared")
	}
	if len(r.Plugins()) != 1 {
		t.Fatal("ClearAll must not remove loaded modules")
	}
}
