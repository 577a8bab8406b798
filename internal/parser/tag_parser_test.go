package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/types"
)

const goSource = `package main

type Server struct{}

func Hello() {}

func main() {
	Hello()
}
`

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func loc(id types.FileID, line, col uint32) types.Location {
	return types.Location{File: id, Position: types.Position{Line: line, Column: col}}
}

func TestParse_Go(t *testing.T) {
	p := New(0)
	defer p.Close()

	path := writeSource(t, "main.go", goSource)
	id := types.FileIDFor("main.go")

	tags, err := p.Parse(context.Background(), path, id)
	require.NoError(t, err)

	assert.Equal(t, types.LocationSet{
		loc(id, 5, 6): types.FlagDefinition,
		loc(id, 8, 2): types.FlagReference,
	}, tags["Hello"])
	assert.Equal(t, types.FlagDefinition, tags["Server"][loc(id, 3, 6)])
	assert.Equal(t, types.FlagDefinition, tags["main"][loc(id, 7, 6)])
	assert.NotContains(t, tags, "package")
}

func TestParse_Python(t *testing.T) {
	p := New(0)
	defer p.Close()

	path := writeSource(t, "greet.py", "def greet():\n    pass\n\ngreet()\n")
	id := types.FileIDFor("greet.py")

	tags, err := p.Parse(context.Background(), path, id)
	require.NoError(t, err)
	assert.Equal(t, types.LocationSet{
		loc(id, 1, 5): types.FlagDefinition,
		loc(id, 4, 1): types.FlagReference,
	}, tags["greet"])
}

func TestParse_Errors(t *testing.T) {
	p := New(16)
	defer p.Close()

	_, err := p.Parse(context.Background(), writeSource(t, "notes.txt", "hello"), 1)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = p.Parse(context.Background(), filepath.Join(t.TempDir(), "gone.go"), 1)
	var parseErr *grerrors.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "go", parseErr.Language)

	_, err = p.Parse(context.Background(), writeSource(t, "big.go", goSource), 1)
	var fileErr *grerrors.FileError
	require.True(t, errors.As(err, &fileErr))
	assert.Equal(t, grerrors.ErrorTypeFileTooLarge, fileErr.Type)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unlimited := New(0)
	defer unlimited.Close()
	_, err = unlimited.Parse(ctx, writeSource(t, "a.go", goSource), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_AfterClose(t *testing.T) {
	p := New(0)
	p.Close()
	p.Close()

	_, err := p.Parse(context.Background(), writeSource(t, "a.go", goSource), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParse_Concurrent(t *testing.T) {
	p := New(0)
	defer p.Close()
	path := writeSource(t, "main.go", goSource)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id types.FileID) {
			defer wg.Done()
			tags, err := p.Parse(context.Background(), path, id)
			if assert.NoError(t, err) {
				assert.Len(t, tags["Hello"], 2)
			}
		}(types.FileID(i))
	}
	wg.Wait()
}

func TestSupportedExtension(t *testing.T) {
	p := New(0)
	defer p.Close()

	for _, path := range []string{"a.go", "b.PY", "c.tsx", "d.cpp", "e.h", "f.zig", "g.cs", "h.php", "i.java", "j.rs", "k.js"} {
		assert.True(t, p.SupportedExtension(path), path)
	}
	for _, path := range []string{"README.md", "Makefile", "x.txt"} {
		assert.False(t, p.SupportedExtension(path), path)
	}
	assert.Equal(t, "typescript", p.Language("x.ts"))
	assert.Equal(t, "", p.Language("x.md"))
	assert.Contains(t, p.Extensions(), ".go")
}

func TestGrammarLoad_BadQuery(t *testing.T) {
	spec := languageSpecs[0]
	spec.query = `(no_such_node) @definition`
	g := &grammar{spec: &spec}

	err := g.load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), spec.name+" tag query: ")
	var qerr *tree_sitter.QueryError
	require.True(t, errors.As(err, &qerr), "query error is wrapped")
	assert.Equal(t, tree_sitter.QueryErrorNodeType, qerr.Kind)
	assert.Nil(t, g.query)

	// The failure is sticky
	assert.Equal(t, err, g.load())
}
