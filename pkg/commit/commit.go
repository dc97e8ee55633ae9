// Package commit implements the two-phase commit engine of spec.md §4.D:
// diff candidate against running, drive plugins through begin/validate/
// complete, apply atomically, then commit/end — rolling back in reverse
// order on any failure before the apply step.
package commit

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/cerr"
	"github.com/sdcio/confd/pkg/lock"
	"github.com/sdcio/confd/pkg/plugin"
	"github.com/sdcio/confd/pkg/schema"
	"github.com/sdcio/confd/pkg/store"
	"github.com/sdcio/confd/pkg/xmltree"
)

// State is one of the commit state machine's states (spec.md §4.D).
type State int

const (
	Idle State = iota
	Locked
	Begun
	Validated
	Completed
	Applied
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Locked:
		return "LOCKED"
	case Begun:
		return "BEGUN"
	case Validated:
		return "VALIDATED"
	case Completed:
		return "COMPLETED"
	case Applied:
		return "APPLIED"
	case Committed:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// abortable reports whether Abort is a legal transition from s (spec.md
// §4.D: "from APPLIED, only forward transitions are valid").
func (s State) abortable() bool {
	switch s {
	case Locked, Begun, Validated, Completed:
		return true
	default:
		return false
	}
}

// Engine drives the commit protocol for one (source, target) pair at a
// time; it holds no state between calls to Commit/Validate beyond what the
// lock manager and datastore manager already track.
type Engine struct {
	Store   *store.Manager
	Locks   *lock.Manager
	Plugins *plugin.Registry
	// Schema is consulted (read-only) for schema-directed diffing of list
	// entries (spec.md §3/§4.D step 2); nil falls back to matching list
	// entries by every attribute they carry.
	Schema *schema.Schema
}

// New returns a commit Engine wired to the given collaborators. sch may be
// nil (no schema loaded), in which case the diff falls back to matching
// list entries by attributes alone.
func New(st *store.Manager, locks *lock.Manager, plugins *plugin.Registry, sch *schema.Schema) *Engine {
	return &Engine{Store: st, Locks: locks, Plugins: plugins, Schema: sch}
}

// Result reports the final state reached and, for a rejected or aborted
// commit, the error that caused it.
type Result struct {
	State State
	Err   *cerr.Error
}

// Commit runs the full nine-step protocol of spec.md §4.D from source to
// target on behalf of sid.
func (e *Engine) Commit(ctx context.Context, sid uint32, source, target string) Result {
	return e.run(ctx, sid, source, target, true)
}

// Validate runs phases 1-5 only (lock, diff, begin, validate, complete),
// then releases locks without applying — the VALIDATE op_type of spec.md
// §4.F.
func (e *Engine) Validate(ctx context.Context, sid uint32, source, target string) Result {
	return e.run(ctx, sid, source, target, false)
}

func (e *Engine) run(ctx context.Context, sid uint32, source, target string, apply bool) Result {
	state := Idle

	// 1. Lock acquisition.
	if err := e.Locks.Lock(source, sid); err != nil {
		return Result{State: state, Err: cerr.Wrap(cerr.ClassDatabase, err, "lock %s", source)}
	}
	if err := e.Locks.Lock(target, sid); err != nil {
		e.Locks.ReleaseSession(sid)
		return Result{State: state, Err: cerr.Wrap(cerr.ClassDatabase, err, "lock %s", target)}
	}
	state = Locked
	defer func() {
		_ = e.Locks.Unlock(source, sid)
		_ = e.Locks.Unlock(target, sid)
	}()

	// 2. Diff.
	srcTree, err := e.Store.Get(source, "")
	if err != nil {
		return e.abort(ctx, state, nil, nil, cerr.Wrap(cerr.ClassDatabase, err, "read %s", source))
	}
	dstTree, err := e.Store.Get(target, "")
	if err != nil {
		return e.abort(ctx, state, nil, nil, cerr.Wrap(cerr.ClassDatabase, err, "read %s", target))
	}
	var keyFn xmltree.KeyFunc
	if e.Schema != nil {
		keyFn = e.Schema.KeyOf
	}
	changes := xmltree.DiffWithSchema(dstTree, srcTree, keyFn)
	td := &plugin.Txn{Source: source, Target: target, Changes: changes}

	begun := make([]plugin.Hooks, 0, len(e.Plugins.Plugins()))

	// 3. Begin phase.
	for _, h := range e.Plugins.Plugins() {
		if bh, ok := h.(plugin.BeginHook); ok {
			if err := bh.Begin(ctx, td); err != nil {
				return e.abort(ctx, Begun, begun, td, cerr.Wrap(cerr.ClassPlugin, err, "%s: begin", h.Name()))
			}
		}
		begun = append(begun, h)
	}
	state = Begun

	// 4. Validate phase.
	for _, h := range begun {
		if vh, ok := h.(plugin.ValidateHook); ok {
			if err := vh.Validate(ctx, td); err != nil {
				return e.abort(ctx, Validated, begun, td, cerr.Wrap(cerr.ClassPlugin, err, "%s: validate", h.Name()))
			}
		}
	}
	state = Validated

	// 5. Complete phase.
	for _, h := range begun {
		if ch, ok := h.(plugin.CompleteHook); ok {
			if err := ch.Complete(ctx, td); err != nil {
				return e.abort(ctx, Completed, begun, td, cerr.Wrap(cerr.ClassPlugin, err, "%s: complete", h.Name()))
			}
		}
	}
	state = Completed

	if !apply {
		return Result{State: state}
	}

	// 6. Apply.
	if err := e.Store.Apply(source, target); err != nil {
		return e.abort(ctx, state, begun, td, cerr.Wrap(cerr.ClassDatabase, err, "apply %s -> %s", source, target))
	}
	state = Applied

	// 7. Commit phase — must not fail; failures are logged, not rolled back.
	for _, h := range begun {
		if ch, ok := h.(plugin.CommitHook); ok {
			if err := ch.Commit(ctx, td); err != nil {
				log.Errorf("commit: %s: commit hook failed (config already live): %v", h.Name(), err)
			}
		}
	}
	state = Committed

	// 8. End phase.
	for _, h := range begun {
		if eh, ok := h.(plugin.EndHook); ok {
			if err := eh.End(ctx, td); err != nil {
				log.Warnf("commit: %s: end hook failed: %v", h.Name(), err)
			}
		}
	}

	return Result{State: Idle}
}

// abort runs Abort(td) on begun plugins in reverse order, then returns a
// Result carrying err. state must be a legal abort source per
// State.abortable; abort is never invoked once Applied has been reached.
func (e *Engine) abort(ctx context.Context, state State, begun []plugin.Hooks, td *plugin.Txn, err *cerr.Error) Result {
	if !state.abortable() {
		log.Errorf("commit: abort requested from non-abortable state %s: %v", state, err)
		return Result{State: state, Err: err}
	}
	if td == nil {
		td = &plugin.Txn{}
	}
	for i := len(begun) - 1; i >= 0; i-- {
		h := begun[i]
		if ah, ok := h.(plugin.AbortHook); ok {
			if aerr := ah.Abort(ctx, td); aerr != nil {
				log.Warnf("commit: %s: abort hook failed: %v", h.Name(), aerr)
			}
		}
	}
	return Result{State: Idle, Err: err}
}
