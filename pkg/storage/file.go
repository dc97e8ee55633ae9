package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/sdcio/confd/pkg/xmltree"
)

const defaultRootTag = "config"

// FilePlugin is the bundled storage-plugin implementation: one etree-backed
// XML file per datastore under a configured directory.
type FilePlugin struct {
	dbdir   string
	rootTag string
}

// NewFilePlugin constructs a FilePlugin; SetOpt("dbdir", ...) must be called
// on the Session returned by Connect before any datastore operation, matching the
// original backend's "xmldb_setopt(h, dbdir, ...)" sequencing.
func NewFilePlugin() *FilePlugin {
	return &FilePlugin{rootTag: defaultRootTag}
}

func (p *FilePlugin) Connect(_ context.Context) (Session, error) {
	return &fileSession{
		plugin: p,
		trees:  map[string]*xmltree.Node{},
	}, nil
}

type fileSession struct {
	plugin *FilePlugin
	mu     sync.Mutex
	trees  map[string]*xmltree.Node
}

func (s *fileSession) Disconnect() error { return nil }

func (s *fileSession) SetOpt(name string, value any) error {
	switch name {
	case "dbdir":
		dir, ok := value.(string)
		if !ok {
			return fmt.Errorf("storage: dbdir option must be a string")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("storage: mkdir %s: %w", dir, err)
		}
		s.plugin.dbdir = dir
	case "rootTag":
		tag, ok := value.(string)
		if ok && tag != "" {
			s.plugin.rootTag = tag
		}
	}
	return nil
}

func (s *fileSession) path(db string) string {
	return filepath.Join(s.plugin.dbdir, db+".xml")
}

func (s *fileSession) Exists(db string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(db)
}

func (s *fileSession) existsLocked(db string) (bool, error) {
	if _, ok := s.trees[db]; ok {
		return true, nil
	}
	if _, err := os.Stat(s.path(db)); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("storage: stat %s: %w", db, err)
	}
	return false, nil
}

func (s *fileSession) Create(db string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.existsLocked(db)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("storage: create: datastore %q already exists", db)
	}
	tree := xmltree.New(s.plugin.rootTag)
	if err := s.persistTree(db, tree); err != nil {
		return err
	}
	s.trees[db] = tree
	return nil
}

func (s *fileSession) Delete(db string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.existsLocked(db)
	if err != nil {
		return err
	}
	if !ok {
		return newNotFound(db)
	}
	delete(s.trees, db)
	if err := os.Remove(s.path(db)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", db, err)
	}
	return nil
}

// Copy behaves as an atomic snapshot (spec.md §4.B): it clones src's
// in-memory tree and persists the clone as dst before dst's in-memory entry
// or on-disk file are touched, so a failed write (disk full, permission
// error) leaves dst — and its on-disk file — byte-for-byte as they were,
// never partially replaced (spec.md §4.D "on Abort, running is guaranteed
// unchanged"; the commit engine's Apply step is exactly this call with
// dst="running").
func (s *fileSession) Copy(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadLocked(src)
	if err != nil {
		return err
	}
	clone := tree.Clone()
	if err := s.persistTree(dst, clone); err != nil {
		return err
	}
	s.trees[dst] = clone
	return nil
}

func (s *fileSession) Get(db string, path string) (*xmltree.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadLocked(db)
	if err != nil {
		return nil, err
	}
	if path == "" || path == "/" {
		return tree.Clone(), nil
	}
	n := tree.Find(path)
	if n == nil {
		return nil, nil
	}
	return n.Clone(), nil
}

func (s *fileSession) Put(db string, op xmltree.Op, path string, sub *xmltree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadLocked(db)
	if err != nil {
		return err
	}
	if path == "" {
		path = "/"
	}
	// Mutate a clone, not the live tree, so a failed persist below leaves
	// the in-memory datastore (and its file) exactly as they were.
	working := tree.Clone()
	if path == "/" && op != xmltree.OpRemove {
		// whole-tree merge/replace: overlay directly at the root.
		if op == xmltree.OpReplace {
			working = sub.Clone()
			working.Tag = tree.Tag
		} else if err := rootMerge(working, sub); err != nil {
			return err
		}
	} else if err := working.Put(op, path, sub); err != nil {
		return err
	}
	if err := s.persistTree(db, working); err != nil {
		return err
	}
	s.trees[db] = working
	return nil
}

func rootMerge(dst, src *xmltree.Node) error {
	for _, c := range src.Children {
		if err := dst.Put(xmltree.OpMerge, xmltree.Path(c.Tag), c); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileSession) loadLocked(db string) (*xmltree.Node, error) {
	if t, ok := s.trees[db]; ok {
		return t, nil
	}
	if _, err := os.Stat(s.path(db)); err != nil {
		if os.IsNotExist(err) {
			return nil, newNotFound(db)
		}
		return nil, fmt.Errorf("storage: stat %s: %w", db, err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(s.path(db)); err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", db, err)
	}
	root := doc.Root()
	var tree *xmltree.Node
	if root == nil {
		tree = xmltree.New(s.plugin.rootTag)
	} else {
		tree = elementToNode(root)
	}
	s.trees[db] = tree
	return tree, nil
}

// persistTree writes tree as db's file via a temp file in the same
// directory followed by os.Rename. etree's WriteToFile alone truncates and
// rewrites the destination in place, so a write failure partway through
// (disk full, process killed) would otherwise leave a corrupt or truncated
// file on disk; the temp-then-rename makes the on-disk replacement atomic.
// It does not touch s.trees — callers swap that in only once this returns
// nil, so a failed persist never leaves memory and disk disagreeing.
func (s *fileSession) persistTree(db string, tree *xmltree.Node) error {
	path := s.path(db)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".confd-"+db+"-*.xml.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file for %s: %w", db, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	doc := etree.NewDocument()
	doc.Indent(2)
	doc.SetRoot(nodeToElement(tree))
	if _, err := doc.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", db, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp file for %s: %w", db, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("storage: rename into place %s: %w", db, err)
	}
	log.Debugf("storage: persisted datastore %s to %s", db, path)
	return nil
}
