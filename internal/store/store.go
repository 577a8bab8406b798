// Package store persists the indexer state in a pebble database.
//
// Two namespaces share one database: the file-state namespace maps a
// project-relative path to the timestamp of its last successful parse, and the
// tag namespace maps a token to the encoded set of locations it occurs at.
// Each namespace is guarded by its own reader/writer lock that callers hold
// for the duration of an operation through a FileStore or TagStore handle.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/standardbeagle/grtags/internal/debug"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
)

// Key prefixes. The upper iteration bound of a namespace is prefix+1.
const (
	prefixFiles byte = 'f'
	prefixTags  byte = 't'
)

const (
	nsFiles = "files"
	nsTags  = "tags"
)

// LockMode selects shared or exclusive access to a namespace.
type LockMode int

const (
	ReadLock LockMode = iota
	WriteLock
)

func (m LockMode) String() string {
	if m == WriteLock {
		return "write"
	}
	return "read"
}

var (
	// ErrReadOnlyHandle is returned when a write is attempted through a read handle.
	ErrReadOnlyHandle = errors.New("store handle is read-only")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("store handle already released")
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("store is closed")
)

// Options configures Open.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps the database in a memory-backed filesystem.
	InMemory bool
	// Sync makes every commit durable before it returns.
	Sync bool
	// ReadOnly opens an existing database without write access.
	ReadOnly bool
}

// DB is the persistent store shared by the file-state and tag namespaces.
type DB struct {
	db   *pebble.DB
	wo   *pebble.WriteOptions
	path string

	filesMu sync.RWMutex
	tagsMu  sync.RWMutex

	mutations atomic.Uint64
	closed    atomic.Bool
}

// Open opens or creates the database described by opts.
func Open(opts Options) (*DB, error) {
	pOpts := &pebble.Options{ReadOnly: opts.ReadOnly}
	path := opts.Dir
	if opts.InMemory {
		pOpts.FS = vfs.NewMem()
		path = "grtags"
	}
	if path == "" {
		return nil, grerrors.NewStoreError("db", "open", "", errors.New("no directory given"))
	}

	pdb, err := pebble.Open(path, pOpts)
	if err != nil {
		return nil, grerrors.NewStoreError("db", "open", path, err)
	}

	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	debug.LogStore("opened %s (memory=%v sync=%v)\n", path, opts.InMemory, opts.Sync)
	return &DB{db: pdb, wo: wo, path: path}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return grerrors.NewStoreError("db", "close", d.path, err)
	}
	return nil
}

// Path returns the directory the database was opened at.
func (d *DB) Path() string {
	return d.path
}

// Pebble exposes the underlying database for metrics collection.
func (d *DB) Pebble() *pebble.DB {
	return d.db
}

// Mutations returns the number of key writes and deletes committed so far.
func (d *DB) Mutations() uint64 {
	return d.mutations.Load()
}

// Files acquires the file-state namespace in the given mode.
// The returned handle must be released.
func (d *DB) Files(mode LockMode) *FileStore {
	lockNamespace(&d.filesMu, mode)
	return &FileStore{handle: handle{db: d, mode: mode, mu: &d.filesMu, ns: nsFiles}}
}

// Tags acquires the tag namespace in the given mode.
// The returned handle must be released.
func (d *DB) Tags(mode LockMode) *TagStore {
	lockNamespace(&d.tagsMu, mode)
	return &TagStore{handle: handle{db: d, mode: mode, mu: &d.tagsMu, ns: nsTags}}
}

func lockNamespace(mu *sync.RWMutex, mode LockMode) {
	if mode == WriteLock {
		mu.Lock()
		return
	}
	mu.RLock()
}

// handle is the lock-scoped part shared by FileStore and TagStore.
type handle struct {
	db       *DB
	mode     LockMode
	mu       *sync.RWMutex
	ns       string
	released bool
}

// Release drops the namespace lock. Releasing twice is a no-op.
func (h *handle) Release() {
	if h.released {
		return
	}
	h.released = true
	if h.mode == WriteLock {
		h.mu.Unlock()
		return
	}
	h.mu.RUnlock()
}

func (h *handle) checkRead() error {
	if h.released {
		return ErrReleased
	}
	if h.db.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (h *handle) checkWrite() error {
	if err := h.checkRead(); err != nil {
		return err
	}
	if h.mode != WriteLock {
		return ErrReadOnlyHandle
	}
	return nil
}

func (h *handle) get(key []byte) ([]byte, bool, error) {
	val, closer, err := h.db.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, grerrors.NewStoreError(h.ns, "get", string(key[1:]), err)
	}
	out := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, false, grerrors.NewStoreError(h.ns, "get", string(key[1:]), err)
	}
	return out, true, nil
}

func (h *handle) set(key, val []byte) error {
	if err := h.db.db.Set(key, val, h.db.wo); err != nil {
		return grerrors.NewStoreError(h.ns, "set", string(key[1:]), err)
	}
	h.db.mutations.Add(1)
	return nil
}

func (h *handle) remove(key []byte) error {
	if err := h.db.db.Delete(key, h.db.wo); err != nil {
		return grerrors.NewStoreError(h.ns, "remove", string(key[1:]), err)
	}
	h.db.mutations.Add(1)
	return nil
}

// iterate walks every key of the namespace prefix in order.
func (h *handle) iterate(prefix byte, fn func(key, val []byte) (bool, error)) error {
	iter, err := h.db.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefix},
		UpperBound: []byte{prefix + 1},
	})
	if err != nil {
		return grerrors.NewStoreError(h.ns, "iterate", "", err)
	}

	for valid := iter.First(); valid; valid = iter.Next() {
		more, err := fn(iter.Key()[1:], iter.Value())
		if err != nil {
			_ = iter.Close()
			return err
		}
		if !more {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return grerrors.NewStoreError(h.ns, "iterate", "", err)
	}
	return nil
}

func key(prefix byte, name string) []byte {
	k := make([]byte, 1+len(name))
	k[0] = prefix
	copy(k[1:], name)
	return k
}

// batch wraps a pebble batch and counts its operations. Every handle in hs
// must still be held for write when the batch commits.
type batch struct {
	hs     []*handle
	b      *pebble.Batch
	n      int
	closed bool
}

func namespaceOf(k []byte) string {
	if k[0] == prefixFiles {
		return nsFiles
	}
	return nsTags
}

func (b *batch) set(k, v []byte) error {
	if err := b.b.Set(k, v, nil); err != nil {
		return grerrors.NewStoreError(namespaceOf(k), "batch set", string(k[1:]), err)
	}
	b.n++
	return nil
}

func (b *batch) remove(k []byte) error {
	if err := b.b.Delete(k, nil); err != nil {
		return grerrors.NewStoreError(namespaceOf(k), "batch remove", string(k[1:]), err)
	}
	b.n++
	return nil
}

// Len returns the number of operations staged in the batch.
func (b *batch) Len() int {
	return b.n
}

// Commit applies every staged operation atomically and closes the batch.
// Committing an empty batch writes nothing.
func (b *batch) Commit() error {
	if b.closed {
		return ErrReleased
	}
	for _, h := range b.hs {
		if err := h.checkWrite(); err != nil {
			return err
		}
	}
	defer b.Close()
	if b.n == 0 {
		return nil
	}
	db := b.hs[0].db
	if err := b.b.Commit(db.wo); err != nil {
		return grerrors.NewStoreError(b.namespaces(), "commit", "", err)
	}
	db.mutations.Add(uint64(b.n))
	debug.LogStore("committed %d %s operations\n", b.n, b.namespaces())
	return nil
}

func (b *batch) namespaces() string {
	if len(b.hs) == 1 {
		return b.hs[0].ns
	}
	return nsFiles + "+" + nsTags
}

// Close discards the batch if it was not committed.
func (b *batch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	_ = b.b.Close()
}

// Batch stages file-state and tag updates that are applied together on
// Commit. Reads through Tags observe the staged writes.
type Batch struct {
	*batch
}

// NewBatch starts an atomic batch spanning both namespaces. files and tags
// must be write handles and stay held until the batch is committed or
// closed.
func (d *DB) NewBatch(files *FileStore, tags *TagStore) *Batch {
	return &Batch{batch: &batch{
		hs: []*handle{&files.handle, &tags.handle},
		b:  d.db.NewIndexedBatch(),
	}}
}

// Files returns the file-state view of the batch.
func (b *Batch) Files() *FileBatch {
	return &FileBatch{batch: b.batch}
}

// Tags returns the tag view of the batch.
func (b *Batch) Tags() *TagBatch {
	return &TagBatch{batch: b.batch}
}

func (d *DB) String() string {
	return fmt.Sprintf("store(%s)", d.path)
}
