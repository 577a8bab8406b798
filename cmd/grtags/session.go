package main

import (
	"fmt"
	"io"
	"time"

	"github.com/standardbeagle/grtags/internal/config"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/indexing"
	"github.com/standardbeagle/grtags/internal/jobs"
	"github.com/standardbeagle/grtags/internal/parser"
	"github.com/standardbeagle/grtags/internal/project"
	"github.com/standardbeagle/grtags/internal/scanner"
	"github.com/standardbeagle/grtags/internal/watcher"
)

// session owns one opened project and, for indexing commands, the
// components that keep it current.
type session struct {
	cfg     *config.Config
	proj    *project.Project
	ref     *project.Ref
	parser  *parser.TagParser
	pool    *jobs.Pool
	watcher *watcher.DirectoryWatcher
	coord   *indexing.Coordinator
}

// openProject opens the store only.
func openProject(cfg *config.Config) (*session, error) {
	proj, err := project.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open project %s: %w", cfg.Project.Root, err)
	}
	return &session{
		cfg:    cfg,
		proj:   proj,
		ref:    project.NewRef(proj),
		parser: parser.New(cfg.Index.MaxFileSize),
	}, nil
}

// openIndexer opens the project and builds a coordinator over it. With
// watch set the coordinator reacts to directory events and periodic
// rescans.
func openIndexer(cfg *config.Config, watch bool, progress io.Writer) (*session, error) {
	s, err := openProject(cfg)
	if err != nil {
		return nil, err
	}

	s.pool = jobs.NewPool(cfg.Performance.ParallelFileWorkers)
	opts := indexing.Options{
		Scanner:  scanner.New(cfg, s.parser.SupportedExtension),
		Parser:   s.parser,
		Executor: s.pool,
	}
	if progress != nil {
		opts.OnProgress = func(p indexing.Progress) {
			fmt.Fprintln(progress, p.String())
		}
	}
	if watch {
		w, err := watcher.New(time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start directory watcher: %w", err)
		}
		s.watcher = w
		opts.Watcher = w
		opts.RescanInterval = time.Duration(cfg.Index.RescanIntervalSec) * time.Second
	}
	s.coord = indexing.New(opts)
	return s, nil
}

// Close tears the session down in dependency order.
func (s *session) Close() error {
	var errs []error
	if s.coord != nil {
		errs = append(errs, s.coord.Close())
	}
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	s.parser.Close()
	s.ref.Release()
	errs = append(errs, s.proj.Close())
	return grerrors.NewMultiError(errs).ErrOrNil()
}
