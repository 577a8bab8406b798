// Package parser extracts definition and reference tags from source files
// with tree-sitter.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/grtags/internal/debug"
	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/types"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrClosed      = errors.New("parser closed")
)

// grammar is a lazily loaded language. Query is shared between goroutines,
// tree-sitter parsers are not and come from the idle pool.
type grammar struct {
	spec *languageSpec

	once  sync.Once
	lang  *tree_sitter.Language
	query *tree_sitter.Query
	err   error

	idle chan *tree_sitter.Parser
}

func (g *grammar) load() error {
	g.once.Do(func() {
		g.lang = g.spec.language()
		// qerr is a *QueryError; assigning it to error before the nil check
		// would yield a non-nil interface
		query, qerr := tree_sitter.NewQuery(g.lang, g.spec.query)
		if qerr != nil {
			g.err = fmt.Errorf("failed to compile %s tag query: %w", g.spec.name, qerr)
			return
		}
		if query == nil {
			g.err = fmt.Errorf("failed to compile %s tag query", g.spec.name)
			return
		}
		g.query = query
		debug.LogParse("loaded %s grammar\n", g.spec.name)
	})
	return g.err
}

func (g *grammar) acquire() (*tree_sitter.Parser, error) {
	select {
	case p := <-g.idle:
		return p, nil
	default:
	}
	p := tree_sitter.NewParser()
	if err := p.SetLanguage(g.lang); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (g *grammar) release(p *tree_sitter.Parser) {
	select {
	case g.idle <- p:
	default:
		p.Close()
	}
}

// TagParser implements jobs.Parser for every bundled grammar.
type TagParser struct {
	maxFileSize int64
	byExt       map[string]*grammar
	grammars    []*grammar

	mu     sync.RWMutex
	closed bool
}

// New creates a parser. Files larger than maxFileSize are rejected; zero
// means types.DefaultMaxFileSize.
func New(maxFileSize int64) *TagParser {
	if maxFileSize <= 0 {
		maxFileSize = types.DefaultMaxFileSize
	}
	p := &TagParser{
		maxFileSize: maxFileSize,
		byExt:       make(map[string]*grammar),
	}
	for i := range languageSpecs {
		g := &grammar{
			spec: &languageSpecs[i],
			idle: make(chan *tree_sitter.Parser, runtime.NumCPU()),
		}
		p.grammars = append(p.grammars, g)
		for _, ext := range g.spec.extensions {
			p.byExt[ext] = g
		}
	}
	return p
}

// SupportedExtension reports whether path has a grammar. It does not load it.
func (p *TagParser) SupportedExtension(path string) bool {
	_, ok := p.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Language returns the grammar name for path, or "".
func (p *TagParser) Language(path string) string {
	if g, ok := p.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return g.spec.name
	}
	return ""
}

// Extensions lists every supported extension, sorted.
func (p *TagParser) Extensions() []string {
	out := make([]string, 0, len(p.byExt))
	for ext := range p.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Parse reads path and returns its tags, recording id in every location.
func (p *TagParser) Parse(ctx context.Context, path string, id types.FileID) (tags types.Tags, err error) {
	g, ok := p.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, grerrors.NewParseError(id, path, "", ErrUnsupported)
	}
	lang := g.spec.name

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, grerrors.NewParseError(id, path, lang, ErrClosed)
	}

	if err := g.load(); err != nil {
		return nil, grerrors.NewParseError(id, path, lang, err)
	}

	content, err := p.readFile(path)
	if err != nil {
		return nil, grerrors.NewParseError(id, path, lang, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser, err := g.acquire()
	if err != nil {
		return nil, grerrors.NewParseError(id, path, lang, err)
	}

	defer func() {
		if r := recover(); r != nil {
			debug.LogParse("tree-sitter panic in %s: %v\n", path, r)
			parser.Close()
			tags = nil
			err = grerrors.NewParseError(id, path, lang, fmt.Errorf("tree-sitter panic: %v", r))
			return
		}
		g.release(parser)
	}()

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, grerrors.NewParseError(id, path, lang, errors.New("no syntax tree produced"))
	}
	defer tree.Close()

	tags = extractTags(g.query, tree, content, id)
	debug.LogParse("%s: %d tokens, %d entries\n", path, len(tags), tags.Entries())
	return tags, nil
}

func (p *TagParser) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, grerrors.NewFileError("stat", path, err)
	}
	if info.Size() > p.maxFileSize {
		fe := grerrors.NewFileError("read", path,
			fmt.Errorf("size %d exceeds limit %d", info.Size(), p.maxFileSize))
		fe.Type = grerrors.ErrorTypeFileTooLarge
		return nil, fe
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, grerrors.NewFileError("read", path, err)
	}
	return content, nil
}

func extractTags(query *tree_sitter.Query, tree *tree_sitter.Tree, content []byte, id types.FileID) types.Tags {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	captureNames := query.CaptureNames()
	tags := make(types.Tags)

	matches := qc.Matches(query, tree.RootNode(), content)
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, c := range match.Captures {
			var flag types.Flag
			switch captureNames[c.Index] {
			case "definition":
				flag = types.FlagDefinition
			case "reference":
				flag = types.FlagReference
			default:
				continue
			}

			node := c.Node
			token := node.Utf8Text(content)
			if token == "" {
				continue
			}
			start := node.StartPosition()
			tags.Add(token, types.Location{
				File: id,
				Position: types.Position{
					Line:   uint32(start.Row) + 1,
					Column: uint32(start.Column) + 1,
				},
			}, flag)
		}
	}
	return tags
}

// Close releases every pooled tree-sitter parser and compiled query.
func (p *TagParser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, g := range p.grammars {
		for {
			select {
			case tp := <-g.idle:
				tp.Close()
				continue
			default:
			}
			break
		}
		if g.query != nil {
			g.query.Close()
		}
	}
}
