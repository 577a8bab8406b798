// Package scanner walks a project root and classifies every file it finds.
package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/grtags/internal/config"
	"github.com/standardbeagle/grtags/internal/debug"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/types"
)

var errNotDirectory = errors.New("not a directory")

// SupportFunc reports whether a parser exists for path.
type SupportFunc func(path string) bool

// FileScanner discovers files under a root. Excluded and gitignored files
// are left out. Everything else is returned, marked indexable when it is
// included, supported by the parser, small enough and not binary.
type FileScanner struct {
	cfg            *config.Config
	supported      SupportFunc
	binaryDetector *BinaryDetector
	excludes       []string
	includes       []string
}

// New creates a scanner for cfg. A nil supported func accepts every file.
func New(cfg *config.Config, supported SupportFunc) *FileScanner {
	fs := &FileScanner{
		cfg:            cfg,
		supported:      supported,
		binaryDetector: NewBinaryDetector(),
	}
	for _, p := range cfg.Exclude {
		fs.excludes = append(fs.excludes, strings.TrimPrefix(filepath.ToSlash(p), "./"))
	}
	for _, p := range cfg.Include {
		fs.includes = append(fs.includes, strings.TrimPrefix(filepath.ToSlash(p), "./"))
	}
	return fs
}

type walkState struct {
	ctx         context.Context
	root        string
	gitignore   *config.GitignoreParser
	visitedDirs map[string]bool
	out         map[string]bool
}

// Scan implements jobs.Scanner. Keys of the returned map are absolute paths.
func (fs *FileScanner) Scan(ctx context.Context, root string) (map[string]bool, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, grerrors.NewScanError(root, err)
	}
	if !info.IsDir() {
		return nil, grerrors.NewScanError(root, errNotDirectory)
	}

	st := &walkState{
		ctx:         ctx,
		root:        root,
		visitedDirs: make(map[string]bool),
		out:         make(map[string]bool),
	}
	if fs.cfg.Index.RespectGitignore {
		st.gitignore = config.NewGitignoreParser()
		if err := st.gitignore.LoadGitignore(root); err != nil {
			debug.LogIndexing("failed to load .gitignore in %s: %v\n", root, err)
		}
	}

	if err := fs.walk(st, root); err != nil {
		return nil, grerrors.NewScanError(root, err)
	}
	debug.LogIndexing("scan of %s found %d files\n", root, len(st.out))
	return st.out, nil
}

func (fs *FileScanner) walk(st *walkState, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if cerr := st.ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			debug.LogIndexing("scanner error for %s: %v\n", path, err)
			return nil
		}

		if len(path) > types.MaxPathLen {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, ok := fs.relative(st.root, path)

		if info.Mode()&os.ModeSymlink != 0 {
			if !fs.cfg.Index.FollowSymlinks {
				return nil
			}
			target, serr := os.Stat(path)
			if serr != nil {
				return nil
			}
			if target.IsDir() {
				if ok && fs.excluded(st, rel, true) {
					return nil
				}
				return fs.walkLink(st, path)
			}
			info = target
		}

		if info.IsDir() {
			realPath, rerr := filepath.EvalSymlinks(path)
			if rerr != nil {
				return filepath.SkipDir
			}
			if st.visitedDirs[realPath] {
				return filepath.SkipDir
			}
			st.visitedDirs[realPath] = true

			if ok && fs.excluded(st, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() || !ok {
			return nil
		}
		if fs.excluded(st, rel, false) {
			return nil
		}
		st.out[path] = fs.indexable(path, rel, info)
		return nil
	})
}

// walkLink descends into a followed directory symlink under its link path.
func (fs *FileScanner) walkLink(st *walkState, link string) error {
	realPath, err := filepath.EvalSymlinks(link)
	if err != nil || st.visitedDirs[realPath] {
		return nil
	}
	// filepath.Walk does not descend into a symlink root, "link/." resolves it
	return fs.walk(st, link+string(filepath.Separator)+".")
}

// relative returns the slash-separated path of path below root.
func (fs *FileScanner) relative(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (fs *FileScanner) excluded(st *walkState, rel string, isDir bool) bool {
	for _, p := range fs.excludes {
		if matchGlob(p, rel, isDir) {
			return true
		}
	}
	return st.gitignore != nil && st.gitignore.ShouldIgnore(rel, isDir)
}

func (fs *FileScanner) indexable(path, rel string, info os.FileInfo) bool {
	if len(fs.includes) > 0 {
		included := false
		for _, p := range fs.includes {
			if matchGlob(p, rel, false) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	if fs.supported != nil && !fs.supported(path) {
		return false
	}
	if fs.binaryDetector.IsBinaryByExtension(path) {
		return false
	}
	if info.Size() > fs.cfg.Index.MaxFileSize {
		return false
	}
	if info.Size() > types.BinaryPreCheckSizeThreshold && fs.binaryDetector.preCheckFile(path) {
		return false
	}
	return true
}

// matchGlob matches a doublestar pattern. For directories "**/x/**" also
// matches "x" itself so it can be pruned before descending.
func matchGlob(pattern, rel string, isDir bool) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if isDir && strings.HasSuffix(pattern, "/**") {
		ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel)
		return ok
	}
	return false
}
