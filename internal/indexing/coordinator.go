// Package indexing keeps the tag store consistent with the files under a
// project root.
//
// The Coordinator mirrors the file-state namespace in memory, grouped by
// directory, and watches every directory that holds at least one tracked
// file. Scans discover files, parse jobs extract their tags, and completed
// parses are merged into the tag namespace unless the file changed while
// the job was running.
package indexing

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/grtags/internal/debug"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/jobs"
	"github.com/standardbeagle/grtags/internal/project"
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
	"github.com/standardbeagle/grtags/internal/watcher"
)

var (
	ErrReleased           = errors.New("project released")
	ErrClosed             = errors.New("coordinator closed")
	ErrAlreadyInitialized = errors.New("coordinator already initialized")
)

// DirWatcher reports modified directories.
type DirWatcher interface {
	Watch(dir string) error
	Unwatch(dir string) error
	Events() <-chan watcher.Event
}

// Submitter runs jobs asynchronously. Submit returns false if the job was
// rejected and will never run.
type Submitter interface {
	Submit(job jobs.Job) bool
}

// Options configures a Coordinator. Scanner, Parser and Executor are
// required.
type Options struct {
	Watcher  DirWatcher // nil disables watching
	Scanner  jobs.Scanner
	Parser   jobs.Parser
	Executor Submitter

	Invalidator Invalidator      // defaults to FullScanInvalidator
	Clock       func() time.Time // defaults to time.Now
	OnProgress  func(Progress)   // called after every finished parse job

	// RescanInterval > 0 starts a periodic full scan.
	RescanInterval time.Duration
}

// Stats is a snapshot of coordinator state and cumulative counters.
type Stats struct {
	TrackedFiles int
	WatchedDirs  int
	InFlight     int
	Scanning     bool

	WaveTotal       int
	WaveOutstanding int

	Scans              uint64
	ScanFailures       uint64
	Parses             uint64
	StaleReparses      uint64
	ParseFailures      uint64
	Removals           uint64
	InvalidatedEntries uint64
}

type pendingParse struct {
	flags jobs.Flags
	// again is set when a schedule request was folded into the job; the
	// file is re-checked once the job completes.
	again bool
}

type counters struct {
	scans         atomic.Uint64
	scanFailures  atomic.Uint64
	parses        atomic.Uint64
	stale         atomic.Uint64
	parseFailures atomic.Uint64
	removals      atomic.Uint64
	invalidated   atomic.Uint64
}

// Coordinator reconciles the store with the filesystem. All exported
// methods are safe for concurrent use.
type Coordinator struct {
	opts Options
	inv  Invalidator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards everything below. It is never held while acquiring a
	// store namespace lock.
	mu            sync.Mutex
	ref           *project.Ref
	files         map[string]map[string]int64 // dir -> base name -> indexed at
	inflight      map[string]*pendingParse
	scanning      bool
	rescanPending bool
	closed        bool

	progress jobCounter
	counters counters
}

// New creates a coordinator. Nothing runs until Init.
func New(opts Options) *Coordinator {
	if opts.Invalidator == nil {
		opts.Invalidator = FullScanInvalidator{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:     opts,
		inv:      opts.Invalidator,
		ctx:      ctx,
		cancel:   cancel,
		files:    make(map[string]map[string]int64),
		inflight: make(map[string]*pendingParse),
	}
}

// Init reconciles the file-state namespace against the disk and starts the
// first scan. Stored files that are gone are removed in one batch, present
// ones are mirrored and re-parsed when their mtime is newer than the stored
// timestamp.
func (c *Coordinator) Init(ctx context.Context, ref *project.Ref) error {
	proj, ok := ref.Get()
	if !ok {
		return ErrReleased
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ref != nil {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.ref = ref
	c.mu.Unlock()

	files := proj.DB.Files(store.WriteLock)
	defer files.Release()

	var missing, dirty []string
	err := files.Range(func(rel string, indexed int64) bool {
		if err := ctx.Err(); err != nil {
			return false
		}
		path := proj.Abs(rel)
		if len(path) > types.MaxPathLen {
			return true
		}
		info, err := os.Stat(path)
		if err != nil {
			missing = append(missing, path)
			return true
		}
		c.track(path, indexed)
		if info.ModTime().UnixNano() > indexed {
			dirty = append(dirty, path)
		}
		return true
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(missing) > 0 {
		if err := c.removeFiles(proj, files, missing); err != nil {
			return err
		}
	}
	debug.LogIndexing("startup: %d tracked, %d missing, %d modified\n", c.Stats().TrackedFiles, len(missing), len(dirty))

	for _, path := range dirty {
		c.schedule(proj, path, jobs.Dirty)
	}

	c.startLoops()
	c.Rescan()
	return nil
}

func (c *Coordinator) startLoops() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.opts.Watcher != nil {
		c.wg.Add(1)
		go c.watchLoop(c.opts.Watcher.Events())
	}
	if c.opts.RescanInterval > 0 {
		c.wg.Add(1)
		go c.rescanLoop(c.opts.RescanInterval)
	}
}

func (c *Coordinator) watchLoop(events <-chan watcher.Event) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.DirectoryModified(ev.Dir)
			// New files are only found by a scan
			if ev.Op.Has(watcher.OpCreated) {
				c.Rescan()
			}
		}
	}
}

func (c *Coordinator) rescanLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Rescan()
		}
	}
}

// project returns the live project, or false once it has been released.
func (c *Coordinator) project() (*project.Project, bool) {
	c.mu.Lock()
	ref := c.ref
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, false
	}
	return ref.Get()
}

// Rescan starts a scan of the project root. A request made while a scan is
// running is folded into a single follow-up scan.
func (c *Coordinator) Rescan() {
	proj, ok := c.project()
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.scanning {
		c.rescanPending = true
		c.mu.Unlock()
		return
	}
	c.scanning = true
	job := jobs.NewScanJob(proj.Root, c.opts.Scanner)
	c.progress.start()
	c.wg.Add(1)
	c.mu.Unlock()

	if !c.opts.Executor.Submit(job) {
		c.mu.Lock()
		c.scanning = false
		c.rescanPending = false
		c.mu.Unlock()
		c.wg.Done()
		c.progress.done()
		return
	}
	c.counters.scans.Add(1)

	go func() {
		defer c.wg.Done()
		defer c.progress.done()
		select {
		case res := <-job.Done():
			c.onScanDone(res)
		case <-c.ctx.Done():
		}
	}()
}

func (c *Coordinator) onScanDone(res jobs.ScanResult) {
	defer func() {
		c.mu.Lock()
		c.scanning = false
		again := c.rescanPending && !c.closed
		c.rescanPending = false
		c.mu.Unlock()
		if again {
			c.Rescan()
		}
	}()

	if res.Err != nil {
		// A partial result is no evidence of deletion
		c.counters.scanFailures.Add(1)
		if !errors.Is(res.Err, context.Canceled) {
			log.Printf("Warning: scan of %s failed: %v", res.Root, res.Err)
		}
		return
	}
	proj, ok := c.project()
	if !ok {
		return
	}
	debug.LogIndexing("scan of %s found %d files in %v\n", res.Root, len(res.Paths), res.Duration)
	if err := c.reconcileScan(proj, res.Paths); err != nil {
		log.Printf("Warning: reconciling scan of %s: %v", res.Root, err)
	}
}

// reconcileScan removes stored files missing from discovered, parses new
// indexable files and mirrors new non-indexable ones with timestamp 0.
func (c *Coordinator) reconcileScan(proj *project.Project, discovered map[string]bool) error {
	files := proj.DB.Files(store.WriteLock)
	defer files.Release()

	var removed []string
	err := files.Range(func(rel string, _ int64) bool {
		path := proj.Abs(rel)
		if len(path) > types.MaxPathLen {
			return true
		}
		if _, ok := discovered[path]; ok {
			delete(discovered, path)
		} else {
			removed = append(removed, path)
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		if err := c.removeFiles(proj, files, removed); err != nil {
			return err
		}
	}

	paths := make([]string, 0, len(discovered))
	for path := range discovered {
		if len(path) > types.MaxPathLen {
			continue
		}
		if _, ok := proj.Rel(path); !ok {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if discovered[path] {
			if c.indexedAt(path) == 0 {
				c.schedule(proj, path, jobs.None)
			}
			continue
		}
		c.trackIfAbsent(path)
	}

	c.dropVanishedUnindexed(discovered)
	return nil
}

// dropVanishedUnindexed forgets mirror-only records (timestamp 0) that the
// last scan no longer found. Indexed files are handled through the store.
func (c *Coordinator) dropVanishedUnindexed(discovered map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for dir, names := range c.files {
		for name, indexed := range names {
			if indexed != 0 {
				continue
			}
			path := filepath.Join(dir, name)
			if _, ok := discovered[path]; ok {
				continue
			}
			if _, ok := c.inflight[path]; ok {
				continue
			}
			c.untrackLocked(path)
		}
	}
}

// schedule submits a parse job for path, or folds the request into the job
// already in flight for it.
func (c *Coordinator) schedule(proj *project.Project, path string, flags jobs.Flags) {
	id, ok := proj.FileID(path)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if p, ok := c.inflight[path]; ok {
		p.flags |= flags
		p.again = true
		c.mu.Unlock()
		return
	}
	c.inflight[path] = &pendingParse{flags: flags}
	job := jobs.NewParseJob(path, id, flags, c.opts.Parser, c.opts.Clock)
	c.progress.startParse()
	c.wg.Add(1)
	c.mu.Unlock()

	if !c.opts.Executor.Submit(job) {
		c.mu.Lock()
		delete(c.inflight, path)
		c.mu.Unlock()
		c.wg.Done()
		c.progress.cancelParse()
		return
	}
	debug.LogIndexing("scheduled %s parse of %s\n", flags, path)

	go func() {
		defer c.wg.Done()
		defer c.progress.done()
		select {
		case res := <-job.Done():
			c.onParseDone(res)
		case <-c.ctx.Done():
		}
	}()
}

func (c *Coordinator) onParseDone(res jobs.ParseResult) {
	proj, ok := c.project()
	rel := res.Path
	if ok {
		if r, ok := proj.Rel(res.Path); ok {
			rel = r
		}
	}
	p := c.progress.finishParse(rel, len(res.Tags))
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	} else {
		debug.LogIndexing("%s\n", p)
	}

	if !ok {
		c.clearInflight(res.Path)
		return
	}

	if res.Err != nil {
		c.clearInflight(res.Path)
		switch {
		case errors.Is(res.Err, context.Canceled):
		case errors.Is(res.Err, fs.ErrNotExist) && !exists(res.Path):
			c.removeVanished(proj, res, rel)
		default:
			c.counters.parseFailures.Add(1)
			log.Printf("Warning: %v", res.Err)
		}
		return
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		c.clearInflight(res.Path)
		c.removeVanished(proj, res, rel)
		return
	}

	c.mu.Lock()
	flags := res.Flags
	if pending, ok := c.inflight[res.Path]; ok {
		flags |= pending.flags
	}
	c.mu.Unlock()

	indexed := res.Started
	if mtime := info.ModTime().UnixNano(); mtime > res.Started {
		// Changed while parsing, the result is superseded. An mtime ahead
		// of the clock would never settle, so it becomes the indexed time.
		if mtime <= c.opts.Clock().UnixNano() {
			c.counters.stale.Add(1)
			debug.LogIndexing("%s changed during parse, rescheduling\n", rel)
			c.clearInflight(res.Path)
			c.schedule(proj, res.Path, flags)
			return
		}
		indexed = mtime
	}

	if err := c.commit(proj, rel, res, flags, indexed); err != nil {
		c.clearInflight(res.Path)
		log.Printf("Warning: %v", grerrors.NewIndexingError("commit", err).WithFile(res.ID, rel))
		return
	}
	c.counters.parses.Add(1)

	c.mu.Lock()
	pending := c.inflight[res.Path]
	delete(c.inflight, res.Path)
	c.mu.Unlock()

	if pending != nil && pending.again {
		if info, err := os.Stat(res.Path); err != nil || info.ModTime().UnixNano() > indexed {
			c.schedule(proj, res.Path, pending.flags|jobs.Dirty)
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Coordinator) removeVanished(proj *project.Project, res jobs.ParseResult, rel string) {
	debug.LogIndexing("%s vanished, removing\n", rel)
	if err := c.removeFiles(proj, nil, []string{res.Path}); err != nil {
		log.Printf("Warning: %v", grerrors.NewIndexingError("remove", err).WithFile(res.ID, rel))
	}
}

// commit merges a parse result and records indexed as the file's timestamp
// in the same batch.
func (c *Coordinator) commit(proj *project.Project, rel string, res jobs.ParseResult, flags jobs.Flags, indexed int64) error {
	files := proj.DB.Files(store.WriteLock)
	defer files.Release()
	tags := proj.DB.Tags(store.WriteLock)
	defer tags.Release()

	batch := proj.DB.NewBatch(files, tags)
	defer batch.Close()
	tb := batch.Tags()

	invalidated := 0
	if flags.Has(jobs.Dirty) {
		n, err := c.inv.Invalidate(tags, tb, res.ID)
		if err != nil {
			return err
		}
		invalidated = n
	}

	for token, set := range res.Tags {
		merged, _, err := tb.Get(token)
		if err != nil {
			return err
		}
		for loc, flag := range set {
			merged[loc] = flag
		}
		if err := tb.Set(token, merged); err != nil {
			return err
		}
	}
	if err := batch.Files().Set(rel, indexed); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	c.counters.invalidated.Add(uint64(invalidated))
	c.track(res.Path, indexed)
	return nil
}

func (c *Coordinator) clearInflight(path string) {
	c.mu.Lock()
	delete(c.inflight, path)
	c.mu.Unlock()
}

// Remove forgets path and purges its tags.
func (c *Coordinator) Remove(path string) error {
	proj, ok := c.project()
	if !ok {
		return ErrReleased
	}
	return c.removeFiles(proj, nil, []string{filepath.Clean(path)})
}

// removeFiles deletes the file-state keys of paths and invalidates their
// tags in one batch, then drops them from the mirror. files may be a write
// handle the caller already holds.
func (c *Coordinator) removeFiles(proj *project.Project, files *store.FileStore, paths []string) error {
	if files == nil {
		files = proj.DB.Files(store.WriteLock)
		defer files.Release()
	}
	tags := proj.DB.Tags(store.WriteLock)
	defer tags.Release()

	batch := proj.DB.NewBatch(files, tags)
	defer batch.Close()
	fb := batch.Files()
	ids := make([]types.FileID, 0, len(paths))
	for _, path := range paths {
		rel, ok := proj.Rel(path)
		if !ok {
			continue
		}
		if err := fb.Remove(rel); err != nil {
			return err
		}
		ids = append(ids, types.FileIDFor(rel))
	}
	n, err := c.inv.Invalidate(tags, batch.Tags(), ids...)
	if err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	c.mu.Lock()
	for _, path := range paths {
		c.untrackLocked(path)
	}
	c.mu.Unlock()

	c.counters.removals.Add(uint64(len(ids)))
	c.counters.invalidated.Add(uint64(n))
	debug.LogIndexing("removed %d files, %d tag locations\n", len(ids), n)
	return nil
}

// DirectoryModified re-checks every file tracked in dir. Files that cannot
// be stat'ed are removed, indexed files with a newer mtime get a dirty
// parse. A directory left without tracked files is unwatched.
func (c *Coordinator) DirectoryModified(dir string) {
	proj, ok := c.project()
	if !ok {
		return
	}
	dir = filepath.Clean(dir)

	c.mu.Lock()
	records := make(map[string]int64, len(c.files[dir]))
	for name, indexed := range c.files[dir] {
		records[name] = indexed
	}
	c.mu.Unlock()

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	var removed []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if len(path) > types.MaxPathLen {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			removed = append(removed, path)
			continue
		}
		if indexed := records[name]; indexed != 0 && info.ModTime().UnixNano() > indexed {
			c.schedule(proj, path, jobs.Dirty)
		}
	}

	if len(removed) > 0 {
		if err := c.removeFiles(proj, nil, removed); err != nil {
			log.Printf("Warning: removing files in %s: %v", dir, err)
		}
	}

	c.mu.Lock()
	if len(c.files[dir]) == 0 {
		c.dropDirLocked(dir)
	}
	c.mu.Unlock()
}

// track records path with its indexed timestamp, watching its directory on
// the first record.
func (c *Coordinator) track(path string, indexed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackLocked(path, indexed)
}

// trackIfAbsent mirrors a non-indexable file without touching an existing
// record.
func (c *Coordinator) trackIfAbsent(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	if _, ok := c.files[dir][name]; ok {
		return
	}
	c.trackLocked(path, 0)
}

func (c *Coordinator) trackLocked(path string, indexed int64) {
	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	names, ok := c.files[dir]
	if !ok {
		names = make(map[string]int64)
		c.files[dir] = names
	}
	names[name] = indexed
	if len(names) == 1 && c.opts.Watcher != nil {
		if err := c.opts.Watcher.Watch(dir); err != nil {
			log.Printf("Warning: failed to watch %s: %v", dir, err)
		}
	}
}

func (c *Coordinator) untrackLocked(path string) {
	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	names, ok := c.files[dir]
	if !ok {
		return
	}
	delete(names, name)
	if len(names) == 0 {
		c.dropDirLocked(dir)
	}
}

func (c *Coordinator) dropDirLocked(dir string) {
	if _, ok := c.files[dir]; !ok {
		return
	}
	delete(c.files, dir)
	if c.opts.Watcher != nil {
		if err := c.opts.Watcher.Unwatch(dir); err != nil {
			debug.LogWatch("unwatch %s: %v\n", dir, err)
		}
	}
}

// indexedAt returns the mirrored timestamp of path, 0 if unknown.
func (c *Coordinator) indexedAt(path string) int64 {
	dir, name := filepath.Split(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[filepath.Clean(dir)][name]
}

// TrackedDirs returns the directories holding tracked files, sorted. Each
// of them is watched.
func (c *Coordinator) TrackedDirs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for dir := range c.files {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Tracked returns the mirrored timestamp of path and whether it is tracked.
func (c *Coordinator) Tracked(path string) (int64, bool) {
	dir, name := filepath.Split(filepath.Clean(path))
	c.mu.Lock()
	defer c.mu.Unlock()
	indexed, ok := c.files[filepath.Clean(dir)][name]
	return indexed, ok
}

// WaitIdle blocks until no scan or parse is pending or ctx is done.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	for {
		select {
		case <-c.progress.idleChan():
		case <-ctx.Done():
			return ctx.Err()
		}
		// A completion handler may have scheduled more work just before
		// the channel closed.
		select {
		case <-c.progress.idleChan():
			return nil
		default:
		}
	}
}

func (c *Coordinator) Stats() Stats {
	total, outstanding := c.progress.snapshot()

	c.mu.Lock()
	tracked := 0
	for _, names := range c.files {
		tracked += len(names)
	}
	s := Stats{
		TrackedFiles:    tracked,
		WatchedDirs:     len(c.files),
		InFlight:        len(c.inflight),
		Scanning:        c.scanning,
		WaveTotal:       total,
		WaveOutstanding: outstanding,
	}
	c.mu.Unlock()

	s.Scans = c.counters.scans.Load()
	s.ScanFailures = c.counters.scanFailures.Load()
	s.Parses = c.counters.parses.Load()
	s.StaleReparses = c.counters.stale.Load()
	s.ParseFailures = c.counters.parseFailures.Load()
	s.Removals = c.counters.removals.Load()
	s.InvalidatedEntries = c.counters.invalidated.Load()
	return s
}

// Close stops the watch and rescan loops and abandons pending completions.
// The executor and the project are owned by the caller.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
