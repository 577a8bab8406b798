// Package watcher reports modified directories from fsnotify events,
// debounced per directory.
package watcher

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/grtags/internal/debug"
)

// Op describes what happened inside a directory. A create is always also
// a modification.
type Op uint8

const (
	OpModified Op = 1 << iota
	OpCreated
)

func (op Op) Has(o Op) bool {
	return op&o == o && o != 0
}

func (op Op) String() string {
	var parts []string
	if op.Has(OpModified) {
		parts = append(parts, "modified")
	}
	if op.Has(OpCreated) {
		parts = append(parts, "created")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is delivered once per settled directory.
type Event struct {
	Dir string
	Op  Op
}

// Stats is a snapshot of watcher counters.
type Stats struct {
	Watched   int
	Raw       int64 // fsnotify events received
	Delivered int64 // debounced events delivered
	Errors    int64
}

// DirectoryWatcher watches individual directories, not trees. Events for
// entries of a watched directory are coalesced until the directory has been
// quiet for the debounce interval.
type DirectoryWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	events   chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watched map[string]bool
	closed  bool

	raw       atomic.Int64
	delivered atomic.Int64
	errors    atomic.Int64
}

// New starts a watcher. Events() is closed by Close.
func New(debounce time.Duration) (*DirectoryWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &DirectoryWatcher{
		watcher:  fsw,
		debounce: debounce,
		events:   make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
		watched:  make(map[string]bool),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Watch starts watching dir. Watching a directory twice is a no-op.
func (w *DirectoryWatcher) Watch(dir string) error {
	dir = filepath.Clean(dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.watched[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = true
	debug.LogWatch("watching %s\n", dir)
	return nil
}

// Unwatch stops watching dir. A directory that has already disappeared is
// not an error.
func (w *DirectoryWatcher) Unwatch(dir string) error {
	dir = filepath.Clean(dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watched[dir] {
		return nil
	}
	delete(w.watched, dir)
	debug.LogWatch("unwatching %s\n", dir)
	if w.closed {
		return nil
	}
	if err := w.watcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

// IsWatched reports whether dir is currently watched.
func (w *DirectoryWatcher) IsWatched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[filepath.Clean(dir)]
}

// Watched returns the watched directories, sorted.
func (w *DirectoryWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Events delivers debounced directory events.
func (w *DirectoryWatcher) Events() <-chan Event {
	return w.events
}

func (w *DirectoryWatcher) Stats() Stats {
	w.mu.Lock()
	watched := len(w.watched)
	w.mu.Unlock()
	return Stats{
		Watched:   watched,
		Raw:       w.raw.Load(),
		Delivered: w.delivered.Load(),
		Errors:    w.errors.Load(),
	}
}

// Close stops the watcher. Pending events are dropped.
func (w *DirectoryWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

var ErrClosed = errors.New("watcher closed")

func (w *DirectoryWatcher) run() {
	defer w.wg.Done()
	defer close(w.events)

	pending := make(map[string]Op)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.raw.Add(1)
			dir, op, ok := w.classify(ev)
			if !ok {
				continue
			}
			debug.LogWatch("%v on %s -> %s %v\n", ev.Op, ev.Name, dir, op)
			pending[dir] |= op
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.errors.Add(1)
			log.Printf("Warning: directory watcher error: %v", err)

		case <-timerC:
			timerC = nil
			if !w.flush(pending) {
				return
			}
			pending = make(map[string]Op)
		}
	}
}

// classify maps a raw event to the watched directory it modifies.
func (w *DirectoryWatcher) classify(ev fsnotify.Event) (string, Op, bool) {
	if ev.Op == fsnotify.Chmod || ev.Name == "" {
		return "", 0, false
	}
	name := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	// The watched directory itself went away
	if w.watched[name] && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		return name, OpModified, true
	}

	dir := filepath.Dir(name)
	if !w.watched[dir] {
		return "", 0, false
	}
	op := OpModified
	if ev.Has(fsnotify.Create) {
		op |= OpCreated
	}
	return dir, op, true
}

// flush delivers pending events in directory order. It returns false when
// the watcher was closed mid-delivery.
func (w *DirectoryWatcher) flush(pending map[string]Op) bool {
	dirs := make([]string, 0, len(pending))
	for dir := range pending {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		select {
		case w.events <- Event{Dir: dir, Op: pending[dir]}:
			w.delivered.Add(1)
		case <-w.ctx.Done():
			return false
		}
	}
	return true
}
