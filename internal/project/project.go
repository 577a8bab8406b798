// Package project binds a project root to its persistent store.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/standardbeagle/grtags/internal/config"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
)

// Project is an indexed source tree.
type Project struct {
	Name string
	// Root is absolute, cleaned and always ends in filepath.Separator.
	Root string
	DB   *store.DB

	ownsDB bool
}

// New creates a project over an already opened store.
func New(root string, db *store.DB) (*Project, error) {
	abs, err := normalizeRoot(root)
	if err != nil {
		return nil, err
	}
	return &Project{Name: filepath.Base(strings.TrimSuffix(abs, string(filepath.Separator))), Root: abs, DB: db}, nil
}

// Open creates a project from configuration and opens its store.
func Open(cfg *config.Config) (*Project, error) {
	p, err := New(cfg.Project.Root, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Project.Name != "" {
		p.Name = cfg.Project.Name
	}

	dir := cfg.Store.Dir
	if dir == "" {
		dir = config.DefaultStoreDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.Root, dir)
	}

	db, err := store.Open(store.Options{Dir: dir, Sync: cfg.Store.Sync, InMemory: cfg.Store.InMemory})
	if err != nil {
		return nil, err
	}
	p.DB = db
	p.ownsDB = true
	return p, nil
}

// Close closes the store if Open created it.
func (p *Project) Close() error {
	if p.ownsDB && p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// Rel converts an absolute path inside the project to a store key.
func (p *Project) Rel(abs string) (string, bool) {
	if !strings.HasPrefix(abs, p.Root) {
		return "", false
	}
	rel := abs[len(p.Root):]
	if rel == "" {
		return "", false
	}
	return rel, true
}

// Abs converts a store key back to an absolute path.
func (p *Project) Abs(rel string) string {
	return p.Root + rel
}

// FileID returns the identifier used for abs in tag locations.
func (p *Project) FileID(abs string) (types.FileID, bool) {
	rel, ok := p.Rel(abs)
	if !ok {
		return 0, false
	}
	return types.FileIDFor(rel), true
}

func normalizeRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", grerrors.NewFileError("resolve", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", grerrors.NewFileError("stat", abs, err)
	}
	if !info.IsDir() {
		return "", grerrors.NewFileError("open", abs, fmt.Errorf("not a directory"))
	}
	if !strings.HasSuffix(abs, string(filepath.Separator)) {
		abs += string(filepath.Separator)
	}
	return abs, nil
}

// Ref is a weak handle on a project. Holders upgrade it with Get before each
// use and treat a failed upgrade as "the project is gone".
type Ref struct {
	p atomic.Pointer[Project]
}

// NewRef returns a live reference to p.
func NewRef(p *Project) *Ref {
	r := &Ref{}
	r.p.Store(p)
	return r
}

// Get upgrades the reference.
func (r *Ref) Get() (*Project, bool) {
	if r == nil {
		return nil, false
	}
	p := r.p.Load()
	return p, p != nil
}

// Release invalidates the reference for every holder.
func (r *Ref) Release() {
	r.p.Store(nil)
}
