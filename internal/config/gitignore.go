package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreParser handles parsing and matching .gitignore files.
// Patterns are translated to doublestar globs over slash-separated paths
// relative to the directory holding the .gitignore.
type GitignoreParser struct {
	patterns []GitignorePattern
}

type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool

	// glob matches the path itself; inside matches anything below it
	glob   string
	inside string
}

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore loads patterns from rootPath/.gitignore. A missing file is
// not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gp.parse(file)
}

func (gp *GitignoreParser) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		gp.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// AddPattern adds a single gitignore line. Blank lines and comments are skipped.
func (gp *GitignoreParser) AddPattern(line string) {
	line = strings.TrimRight(line, " \t\r")
	line = strings.TrimLeft(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	if p, ok := parsePattern(line); ok {
		gp.patterns = append(gp.patterns, p)
	}
}

// Len returns the number of loaded patterns.
func (gp *GitignoreParser) Len() int {
	return len(gp.patterns)
}

func parsePattern(line string) (GitignorePattern, bool) {
	p := GitignorePattern{}

	if strings.HasPrefix(line, `\`) {
		// Escaped leading ! or #
		line = line[1:]
	} else if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}

	// A slash anywhere but the end anchors the pattern to the root
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") {
		p.Absolute = true
	}

	if line == "" {
		return p, false
	}
	p.Pattern = line

	if p.Absolute || strings.HasPrefix(line, "**/") {
		p.glob = line
	} else {
		p.glob = "**/" + line
	}
	p.inside = p.glob + "/**"

	if !doublestar.ValidatePattern(p.glob) {
		return p, false
	}
	return p, true
}

// ShouldIgnore reports whether path (relative, either separator) is ignored.
// The last matching pattern wins, so a later negation re-includes a path.
func (gp *GitignoreParser) ShouldIgnore(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	ignored := false
	for i := range gp.patterns {
		if gp.patterns[i].matches(path, isDir) {
			ignored = !gp.patterns[i].Negate
		}
	}
	return ignored
}

func (p *GitignorePattern) matches(path string, isDir bool) bool {
	if ok, _ := doublestar.Match(p.inside, path); ok {
		return true
	}
	if p.Directory && !isDir {
		return false
	}
	ok, _ := doublestar.Match(p.glob, path)
	return ok
}

// GetExclusionPatterns returns the non-negated patterns as exclusion globs
// in the form used by the config Exclude list.
func (gp *GitignoreParser) GetExclusionPatterns() []string {
	out := make([]string, 0, len(gp.patterns)*2)
	for _, p := range gp.patterns {
		if p.Negate {
			continue
		}
		if !p.Directory {
			out = append(out, p.glob)
		}
		out = append(out, p.inside)
	}
	return DeduplicatePatterns(out)
}
