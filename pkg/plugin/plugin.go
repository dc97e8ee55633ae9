// Package plugin implements the extension-module registry of spec.md §4.C.
// Extension modules are ordinary Go plugin objects built with
// `go build -buildmode=plugin` and loaded with the standard library's
// plugin.Open; each .so exports a `New func() plugin.Hooks` symbol. The
// registry records load order, invokes lifecycle hooks in that order (the
// commit engine in pkg/commit is responsible for reverse-order rollback),
// and hosts the (namespace, rpc-name) -> handler table used by the CALL
// op_type.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	gopl "plugin"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/xmltree"
)

// Hooks is the minimal contract every extension module implements. All
// lifecycle methods below are optional: a module participates in a phase
// only if its Hooks value also implements the matching single-method
// interface (Initializer, BeginHook, and so on), checked with a type
// assertion at call time — the Go analogue of spec.md §4.C's "all optional".
type Hooks interface {
	// Name identifies the module in logs and error messages.
	Name() string
}

// Txn is the transaction data ("td") threaded through the commit-phase
// hooks: the ordered change set plus the source/target datastore names.
type Txn struct {
	Source  string
	Target  string
	Changes []xmltree.Change
}

type (
	Initializer  interface{ Init(ctx context.Context) error }
	Starter      interface{ Start(ctx context.Context, argv []string) error }
	Resetter     interface{ Reset(ctx context.Context, db string) error }
	BeginHook    interface{ Begin(ctx context.Context, td *Txn) error }
	ValidateHook interface{ Validate(ctx context.Context, td *Txn) error }
	CompleteHook interface{ Complete(ctx context.Context, td *Txn) error }
	CommitHook   interface{ Commit(ctx context.Context, td *Txn) error }
	EndHook      interface{ End(ctx context.Context, td *Txn) error }
	AbortHook    interface{ Abort(ctx context.Context, td *Txn) error }
	Exiter       interface{ Exit(ctx context.Context) error }
)

// RPCHandler services one CALL request for a (namespace, name) pair.
type RPCHandler func(ctx context.Context, params map[string]string) (string, error)

type rpcKey struct{ namespace, name string }

// Registry holds the ordered list of loaded extension modules and the
// registered RPC handler table.
type Registry struct {
	mu      sync.Mutex
	plugins []Hooks
	rpc     map[rpcKey]RPCHandler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rpc: map[rpcKey]RPCHandler{}}
}

// LoadDir loads every *.so file in dir in sorted filename order, calling
// each one's exported "New" symbol (a func() Hooks) and appending the
// result to the registration order.
func (r *Registry) LoadDir(dir string) error {
	entries, err := readSoFiles(dir)
	if err != nil {
		return fmt.Errorf("plugin: read dir %s: %w", dir, err)
	}
	sort.Strings(entries)

	for _, path := range entries {
		p, err := gopl.Open(path)
		if err != nil {
			return fmt.Errorf("plugin: open %s: %w", path, err)
		}
		sym, err := p.Lookup("New")
		if err != nil {
			return fmt.Errorf("plugin: %s missing New symbol: %w", path, err)
		}
		ctor, ok := sym.(func() Hooks)
		if !ok {
			return fmt.Errorf("plugin: %s New symbol has wrong type", path)
		}
		h := ctor()
		r.Register(h)
		log.Infof("plugin: loaded %s from %s", h.Name(), path)
	}
	return nil
}

// Register appends h to the end of the registration order. Used directly by
// tests and by built-in modules that aren't loaded as .so files.
func (r *Registry) Register(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, h)
}

// Plugins returns the registered modules in registration order.
func (r *Registry) Plugins() []Hooks {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Hooks, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// RegisterRPC installs handler for (namespace, name), replacing any prior
// registration for the same key — "last wins", the resolution SPEC_FULL.md
// §9 Open Question 1 records for the source's undocumented behavior here.
// A replacement is logged at WARN since it silently drops another plugin's
// handler.
func (r *Registry) RegisterRPC(namespace, name string, handler RPCHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rpcKey{namespace, name}
	if _, exists := r.rpc[key]; exists {
		log.Warnf("plugin: RPC handler %s:%s replaced by a later registration", namespace, name)
	}
	r.rpc[key] = handler
}

// LookupRPC returns the handler registered for (namespace, name), if any.
func (r *Registry) LookupRPC(namespace, name string) (RPCHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rpc[rpcKey{namespace, name}]
	return h, ok
}

// ClearAll empties the RPC handler table without touching loaded modules.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpc = map[rpcKey]RPCHandler{}
}

// Init invokes Init(ctx) on every module that implements Initializer, in
// registration order. Any non-nil error aborts daemon startup (spec.md
// §4.C failure policy) and is returned immediately.
func (r *Registry) Init(ctx context.Context) error {
	for _, h := range r.Plugins() {
		if init, ok := h.(Initializer); ok {
			if err := init.Init(ctx); err != nil {
				return fmt.Errorf("plugin: %s init: %w", h.Name(), err)
			}
		}
	}
	return nil
}

// Start invokes Start(ctx, argv) on every module that implements Starter, in
// registration order.
func (r *Registry) Start(ctx context.Context, argv []string) error {
	for _, h := range r.Plugins() {
		if st, ok := h.(Starter); ok {
			if err := st.Start(ctx, argv); err != nil {
				return fmt.Errorf("plugin: %s start: %w", h.Name(), err)
			}
		}
	}
	return nil
}

// Reset invokes Reset(ctx, db) on every module that implements Resetter.
func (r *Registry) Reset(ctx context.Context, db string) error {
	for _, h := range r.Plugins() {
		if rs, ok := h.(Resetter); ok {
			if err := rs.Reset(ctx, db); err != nil {
				return fmt.Errorf("plugin: %s reset: %w", h.Name(), err)
			}
		}
	}
	return nil
}

// Exit invokes Exit(ctx) on every module that implements Exiter, in
// registration order, logging (not short-circuiting on) errors at WARN.
func (r *Registry) Exit(ctx context.Context) {
	for _, h := range r.Plugins() {
		if ex, ok := h.(Exiter); ok {
			if err := ex.Exit(ctx); err != nil {
				log.Warnf("plugin: %s exit: %v", h.Name(), err)
			}
		}
	}
}

func readSoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".so") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
