package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

func newWatcher(t *testing.T) *DirectoryWatcher {
	t.Helper()
	w, err := New(testDebounce)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func nextEvent(t *testing.T, w *DirectoryWatcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a directory event")
		return Event{}
	}
}

func assertQuiet(t *testing.T, w *DirectoryWatcher, d time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(d):
	}
}

func TestWatch_CreateAndModify(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t)
	require.NoError(t, w.Watch(dir))
	require.NoError(t, w.Watch(dir), "second watch is a no-op")
	assert.True(t, w.IsWatched(dir))

	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0644))
	ev := nextEvent(t, w)
	assert.Equal(t, filepath.Clean(dir), ev.Dir)
	assert.True(t, ev.Op.Has(OpCreated))
	assert.True(t, ev.Op.Has(OpModified))

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nvar x = 1\n"), 0644))
	ev = nextEvent(t, w)
	assert.Equal(t, filepath.Clean(dir), ev.Dir)
	assert.True(t, ev.Op.Has(OpModified))
	assert.False(t, ev.Op.Has(OpCreated))
}

func TestWatch_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0644))

	w := newWatcher(t)
	require.NoError(t, w.Watch(dir))

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0644))
	}
	ev := nextEvent(t, w)
	assert.Equal(t, filepath.Clean(dir), ev.Dir)
	assertQuiet(t, w, 4*testDebounce)

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Greater(t, stats.Raw, int64(1))
}

func TestWatch_RemovalReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0644))

	w := newWatcher(t)
	require.NoError(t, w.Watch(dir))
	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, w)
	assert.Equal(t, filepath.Clean(dir), ev.Dir)
	assert.Equal(t, OpModified, ev.Op)
}

func TestUnwatch(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t)
	require.NoError(t, w.Watch(dir))
	require.NoError(t, w.Unwatch(dir))
	require.NoError(t, w.Unwatch(dir), "unwatching twice is a no-op")
	assert.False(t, w.IsWatched(dir))
	assert.Empty(t, w.Watched())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644))
	assertQuiet(t, w, 4*testDebounce)
}

func TestUnwatch_RemovedDirectory(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "sub")
	require.NoError(t, os.Mkdir(dir, 0755))

	w := newWatcher(t)
	require.NoError(t, w.Watch(dir))
	require.NoError(t, os.RemoveAll(dir))

	ev := nextEvent(t, w)
	assert.Equal(t, dir, ev.Dir)
	assert.NoError(t, w.Unwatch(dir))
}

func TestWatch_MissingDirectory(t *testing.T) {
	w := newWatcher(t)
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
	assert.Empty(t, w.Watched())
}

func TestClose(t *testing.T) {
	w, err := New(testDebounce)
	require.NoError(t, err)
	require.NoError(t, w.Watch(t.TempDir()))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel is closed")
	assert.ErrorIs(t, w.Watch(t.TempDir()), ErrClosed)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "modified", OpModified.String())
	assert.Equal(t, "modified|created", (OpModified | OpCreated).String())
	assert.Equal(t, "none", Op(0).String())
}
