package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/grtags/internal/types"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func loc(file types.FileID, line, col uint32) types.Location {
	return types.Location{File: file, Position: types.Position{Line: line, Column: col}}
}

func TestFileStore_SetGetRemove(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	defer files.Release()

	_, ok, err := files.Get("a.go")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, files.Set("a.go", 1234))
	ts, ok, err := files.Get("a.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1234), ts)

	require.NoError(t, files.Remove("a.go"))
	_, ok, err = files.Get("a.go")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), db.Mutations())
}

func TestFileStore_RangeIsOrderedAndScoped(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	require.NoError(t, files.Set("b/z.go", 2))
	require.NoError(t, files.Set("a.go", 1))
	require.NoError(t, files.Set("b/c.go", 3))
	files.Release()

	// A tag key must never show up in the file namespace
	tags := db.Tags(WriteLock)
	require.NoError(t, tags.Set("Token", types.LocationSet{loc(1, 1, 1): types.FlagDefinition}))
	tags.Release()

	files = db.Files(ReadLock)
	defer files.Release()

	var got []string
	require.NoError(t, files.Range(func(rel string, _ int64) bool {
		got = append(got, rel)
		return true
	}))
	assert.Equal(t, []string{"a.go", "b/c.go", "b/z.go"}, got)

	n, err := files.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Early stop
	got = got[:0]
	require.NoError(t, files.Range(func(rel string, _ int64) bool {
		got = append(got, rel)
		return false
	}))
	assert.Equal(t, []string{"a.go"}, got)
}

func TestFileStore_ReadHandleRejectsWrites(t *testing.T) {
	db := openMem(t)

	files := db.Files(ReadLock)
	defer files.Release()

	assert.ErrorIs(t, files.Set("a.go", 1), ErrReadOnlyHandle)
	assert.ErrorIs(t, files.Remove("a.go"), ErrReadOnlyHandle)

	b := files.NewBatch()
	require.NoError(t, b.Set("a.go", 1))
	assert.ErrorIs(t, b.Commit(), ErrReadOnlyHandle)
	b.Close()
	assert.Equal(t, uint64(0), db.Mutations())
}

func TestFileStore_ReleasedHandle(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	files.Release()
	files.Release()

	_, _, err := files.Get("a.go")
	assert.ErrorIs(t, err, ErrReleased)

	// The lock must be free again
	again := db.Files(WriteLock)
	again.Release()
}

func TestFileBatch_Atomic(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	defer files.Release()

	require.NoError(t, files.Set("gone.go", 5))
	before := db.Mutations()

	b := files.NewBatch()
	require.NoError(t, b.Set("new.go", 7))
	require.NoError(t, b.Remove("gone.go"))
	assert.Equal(t, 2, b.Len())

	// Nothing visible before commit
	_, ok, err := files.Get("new.go")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Commit())
	assert.Equal(t, before+2, db.Mutations())

	_, ok, err = files.Get("gone.go")
	require.NoError(t, err)
	assert.False(t, ok)
	ts, ok, err := files.Get("new.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), ts)

	assert.ErrorIs(t, b.Commit(), ErrReleased, "a batch commits once")
}

func TestFileBatch_EmptyCommitWritesNothing(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	defer files.Release()

	b := files.NewBatch()
	require.NoError(t, b.Commit())
	assert.Equal(t, uint64(0), db.Mutations())
}

func TestTagStore_SetGetRange(t *testing.T) {
	db := openMem(t)

	tags := db.Tags(WriteLock)
	defer tags.Release()

	set := types.LocationSet{
		loc(1, 10, 2): types.FlagDefinition,
		loc(2, 3, 4):  types.FlagReference,
	}
	require.NoError(t, tags.Set("Open", set))
	require.NoError(t, tags.Set("Close", types.LocationSet{loc(1, 20, 2): types.FlagDefinition}))

	got, ok, err := tags.Get("Open")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, set, got)

	missing, ok, err := tags.Get("Nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)

	var tokens []string
	require.NoError(t, tags.Range(func(token string, _ types.LocationSet) bool {
		tokens = append(tokens, token)
		return true
	}))
	assert.Equal(t, []string{"Close", "Open"}, tokens)

	// Empty set deletes
	require.NoError(t, tags.Set("Open", types.LocationSet{}))
	_, ok, err = tags.Get("Open")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := tags.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTagBatch_ReadsOwnWrites(t *testing.T) {
	db := openMem(t)

	tags := db.Tags(WriteLock)
	defer tags.Release()

	require.NoError(t, tags.Set("Run", types.LocationSet{loc(1, 1, 1): types.FlagReference}))

	b := tags.NewBatch()
	defer b.Close()

	cur, ok, err := b.Get("Run")
	require.NoError(t, err)
	require.True(t, ok)
	cur.Add(loc(2, 5, 5), types.FlagDefinition)
	require.NoError(t, b.Set("Run", cur))

	staged, ok, err := b.Get("Run")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, staged, 2)

	// Store is unchanged until commit
	stored, _, err := tags.Get("Run")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.NoError(t, b.Remove("Run"))
	_, ok, err = b.Get("Run")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set("Run", staged))
	require.NoError(t, b.Commit())

	stored, _, err = tags.Get("Run")
	require.NoError(t, err)
	assert.Equal(t, staged, stored)
}

func TestBatch_SpansNamespaces(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	defer files.Release()
	tags := db.Tags(WriteLock)
	defer tags.Release()

	require.NoError(t, files.Set("old.go", 1))
	require.NoError(t, tags.Set("Old", types.LocationSet{loc(7, 1, 1): types.FlagDefinition}))

	b := db.NewBatch(files, tags)
	require.NoError(t, b.Files().Remove("old.go"))
	require.NoError(t, b.Files().Set("new.go", 2))
	require.NoError(t, b.Tags().Remove("Old"))
	require.NoError(t, b.Tags().Set("New", types.LocationSet{loc(8, 1, 1): types.FlagDefinition}))
	assert.Equal(t, 4, b.Len())

	_, ok, err := b.Tags().Get("New")
	require.NoError(t, err)
	assert.True(t, ok, "tag view reads staged writes")

	// Discarded batches leave both namespaces untouched
	b.Close()
	_, ok, err = files.Get("old.go")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = tags.Get("Old")
	require.NoError(t, err)
	assert.True(t, ok)

	b = db.NewBatch(files, tags)
	require.NoError(t, b.Files().Remove("old.go"))
	require.NoError(t, b.Tags().Remove("Old"))
	before := db.Mutations()
	require.NoError(t, b.Commit())
	assert.Equal(t, before+2, db.Mutations())

	_, ok, err = files.Get("old.go")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = tags.Get("Old")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, b.Commit(), ErrReleased)
}

func TestBatch_RequiresWriteHandles(t *testing.T) {
	db := openMem(t)

	files := db.Files(WriteLock)
	tags := db.Tags(ReadLock)
	defer tags.Release()

	b := db.NewBatch(files, tags)
	defer b.Close()
	require.NoError(t, b.Files().Set("a.go", 1))
	assert.ErrorIs(t, b.Commit(), ErrReadOnlyHandle)

	files.Release()
	reader := db.Files(ReadLock)
	defer reader.Release()
	_, ok, err := reader.Get("a.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_OnDiskReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	db, err := Open(Options{Dir: dir, Sync: true})
	require.NoError(t, err)
	files := db.Files(WriteLock)
	require.NoError(t, files.Set("main.go", 99))
	files.Release()
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "close is idempotent")

	db, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer db.Close()

	files = db.Files(ReadLock)
	defer files.Release()
	ts, ok, err := files.Get("main.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(99), ts)
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	files := db.Files(ReadLock)
	defer files.Release()
	_, _, err = files.Get("a.go")
	assert.ErrorIs(t, err, ErrClosed)
}
