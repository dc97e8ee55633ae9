// Package schema loads YANG modules with github.com/openconfig/goyang and
// exposes them as a path-indexed, read-only tree (the "yspec" handle of
// spec.md §3/§6). It is built once at startup and never mutated afterwards.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openconfig/goyang/pkg/yang"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Node is one compiled schema element: a yang.Entry flattened to the bits
// the tree validator and commit engine actually need.
type Node struct {
	Name    string
	Key     []string // list key leaf names, in declared order; nil for non-lists
	IsList  bool
	IsLeaf  bool
	Mandatory bool
	entry   *yang.Entry
}

// Schema is the compiled, immutable view of one or more YANG modules,
// indexed by slash path (e.g. "/interfaces/interface/mtu") for O(1) lookup.
type Schema struct {
	modules []string
	byPath  map[string]*Node
	roots   []*Node
}

// Load parses every .yang file reachable from dir that belongs to modules,
// resolves cross-module references, and compiles the result into a Schema.
// Each module is read in its own golang.org/x/sync/errgroup goroutine, but
// the goroutines share one mutex held across the whole read, so the module
// reads run one at a time.
func Load(dir string, modules ...string) (*Schema, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("schema: no modules given")
	}

	ms := yang.NewModules()
	ms.Path = []string{dir}

	var g errgroup.Group
	var mu sync.Mutex
	for _, m := range modules {
		m := m
		g.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			if err := ms.Read(m); err != nil {
				return fmt.Errorf("schema: read module %s: %w", m, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if errs := ms.Process(); len(errs) > 0 {
		var sb strings.Builder
		for _, e := range errs {
			sb.WriteString(e.Error())
			sb.WriteString("; ")
		}
		return nil, fmt.Errorf("schema: process modules: %s", sb.String())
	}

	s := &Schema{modules: modules, byPath: map[string]*Node{}}
	for _, name := range modules {
		mod, ok := ms.Modules[name]
		if !ok {
			return nil, fmt.Errorf("schema: module %q not found after parse", name)
		}
		entry := yang.ToEntry(mod)
		// The module entry itself is not part of the indexed paths: its
		// top-level children are compiled as "/<child>/...".
		root := &Node{Name: entry.Name, entry: entry}
		names := make([]string, 0, len(entry.Dir))
		for cn := range entry.Dir {
			names = append(names, cn)
		}
		sort.Strings(names)
		for _, cn := range names {
			s.compile("", entry.Dir[cn])
		}
		s.roots = append(s.roots, root)
	}
	log.Infof("schema: loaded %d module(s), %d indexed node(s)", len(modules), len(s.byPath))
	return s, nil
}

func (s *Schema) compile(prefix string, e *yang.Entry) *Node {
	n := &Node{Name: e.Name, entry: e}
	path := prefix + "/" + e.Name
	if e.ListAttr != nil {
		n.IsList = true
		if e.Key != "" {
			n.Key = strings.Fields(e.Key)
		}
	}
	if len(e.Dir) == 0 {
		n.IsLeaf = true
	}
	n.Mandatory = e.Mandatory == yang.TSTrue
	s.byPath[path] = n

	names := make([]string, 0, len(e.Dir))
	for cn := range e.Dir {
		names = append(names, cn)
	}
	sort.Strings(names)
	for _, cn := range names {
		s.compile(path, e.Dir[cn])
	}
	return n
}

// Find returns the compiled node at path, or nil if the schema has no such
// element.
func (s *Schema) Find(path string) *Node {
	return s.byPath[path]
}

// Modules lists the module names this Schema was built from.
func (s *Schema) Modules() []string {
	out := make([]string, len(s.modules))
	copy(out, s.modules)
	return out
}

// KeyOf reports the list key leaf names for path, or nil if path does not
// identify a YANG list.
func (s *Schema) KeyOf(path string) []string {
	n := s.byPath[path]
	if n == nil || !n.IsList {
		return nil
	}
	return n.Key
}
