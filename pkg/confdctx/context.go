// Package confdctx holds the daemon's explicit, threaded-by-parameter
// context — the Go replacement for the original backend's clicon handle
// global (SPEC_FULL.md §9).
package confdctx

import (
	"github.com/sdcio/confd/pkg/commit"
	"github.com/sdcio/confd/pkg/config"
	"github.com/sdcio/confd/pkg/lock"
	"github.com/sdcio/confd/pkg/metrics"
	"github.com/sdcio/confd/pkg/notify"
	"github.com/sdcio/confd/pkg/plugin"
	"github.com/sdcio/confd/pkg/schema"
	"github.com/sdcio/confd/pkg/store"
)

// Context bundles every daemon-wide collaborator. It is built once at
// startup in cmd/confd-backend and passed explicitly to anything that needs
// it — never read from a package-level variable.
type Context struct {
	Config  *config.Config
	Store   *store.Manager
	Locks   *lock.Manager
	Plugins *plugin.Registry
	Notify  *notify.Bus
	Schema  *schema.Schema
	Metrics *metrics.Registry
	Commit  *commit.Engine

	// lastSessionID is the last id handed out by NextSessionID, the
	// monotonically increasing 32-bit session allocator (spec.md §3 Client
	// session) that pkg/session's Manager.Accept calls.
	lastSessionID uint32
}

// New assembles a Context from its already-constructed collaborators.
func New(cfg *config.Config, st *store.Manager, locks *lock.Manager, plugins *plugin.Registry, bus *notify.Bus, sch *schema.Schema, met *metrics.Registry) *Context {
	c := &Context{
		Config:  cfg,
		Store:   st,
		Locks:   locks,
		Plugins: plugins,
		Notify:  bus,
		Schema:  sch,
		Metrics: met,
	}
	c.Commit = commit.New(st, locks, plugins, sch)
	return c
}

// NextSessionID returns the next monotonically increasing session id,
// starting at 1 (0 is reserved for "no session" in wire messages).
func (c *Context) NextSessionID() uint32 {
	c.lastSessionID++
	return c.lastSessionID
}
