//go:build leaktests
// +build leaktests

package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/grtags/internal/jobs"
	"github.com/standardbeagle/grtags/internal/project"
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/watcher"
)

// TestCoordinatorLeaks runs a full index with a real watcher and pool and
// checks that Close stops every goroutine.
func TestCoordinatorLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("alpha beta"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.go"), []byte("gamma"), 0644))

	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	proj, err := project.New(root, db)
	require.NoError(t, err)

	w, err := watcher.New(20 * time.Millisecond)
	require.NoError(t, err)
	pool := jobs.NewPool(2)

	c := New(Options{
		Watcher:        w,
		Scanner:        walkScanner{},
		Parser:         newWordParser(),
		Executor:       pool,
		RescanInterval: 10 * time.Millisecond,
	})
	require.NoError(t, c.Init(context.Background(), project.NewRef(proj)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.WaitIdle(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "c.go"), []byte("delta"), 0644))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, w.Close())
	require.NoError(t, pool.Close())
	require.NoError(t, db.Close())
}
