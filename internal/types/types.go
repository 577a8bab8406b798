package types

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Common system-wide constants
const (
	// File size limits
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB per file

	// MaxPathLen bounds absolute paths handled by the indexer (Linux PATH_MAX).
	// Longer paths are skipped during scan reconciliation.
	MaxPathLen = 4096

	// Binary detection optimization threshold
	BinaryPreCheckSizeThreshold = 100 * 1024 // files above this size get pre-checked for binary content
	BinaryPreCheckBytes         = 512        // bytes read for binary magic number detection
)

// FileID identifies a file inside tag locations. It is derived from the
// slash-normalised project-relative path so that it is stable across runs.
type FileID uint64

// FileIDFor returns the FileID for a project-relative path.
func FileIDFor(rel string) FileID {
	return FileID(xxhash.Sum64String(filepath.ToSlash(rel)))
}

// Flag classifies an occurrence of a token.
type Flag uint8

const (
	FlagReference Flag = iota
	FlagDefinition
)

func (f Flag) String() string {
	switch f {
	case FlagDefinition:
		return "definition"
	case FlagReference:
		return "reference"
	default:
		return fmt.Sprintf("flag(%d)", uint8(f))
	}
}

// Position is a 1-based line and column inside a file.
type Position struct {
	Line   uint32
	Column uint32
}

// Location is a position in a specific file.
type Location struct {
	File FileID
	Position
}

// Less orders locations by file, line and column.
func (l Location) Less(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

func (l Location) String() string {
	return fmt.Sprintf("%016x:%d:%d", uint64(l.File), l.Line, l.Column)
}

// LocationSet maps every occurrence of a token to its flag.
type LocationSet map[Location]Flag

// Add records an occurrence. A definition is never downgraded to a reference.
func (s LocationSet) Add(loc Location, flag Flag) {
	if cur, ok := s[loc]; ok && cur >= flag {
		return
	}
	s[loc] = flag
}

// Merge unions other into s and returns the number of pairs that changed.
func (s LocationSet) Merge(other LocationSet) int {
	changed := 0
	for loc, flag := range other {
		cur, ok := s[loc]
		if ok && cur >= flag {
			continue
		}
		s[loc] = flag
		changed++
	}
	return changed
}

// RemoveFile drops every location belonging to id and returns how many were removed.
func (s LocationSet) RemoveFile(id FileID) int {
	removed := 0
	for loc := range s {
		if loc.File == id {
			delete(s, loc)
			removed++
		}
	}
	return removed
}

// HasFile reports whether any location belongs to id.
func (s LocationSet) HasFile(id FileID) bool {
	for loc := range s {
		if loc.File == id {
			return true
		}
	}
	return false
}

// Sorted returns the locations in a deterministic order.
func (s LocationSet) Sorted() []Location {
	out := make([]Location, 0, len(s))
	for loc := range s {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Tags is the output of a parse: token to occurrences.
type Tags map[string]LocationSet

// Add records an occurrence of token.
func (t Tags) Add(token string, loc Location, flag Flag) {
	set, ok := t[token]
	if !ok {
		set = make(LocationSet)
		t[token] = set
	}
	set.Add(loc, flag)
}

// Entries counts all (token, location) pairs.
func (t Tags) Entries() int {
	n := 0
	for _, set := range t {
		n += len(set)
	}
	return n
}

// Tokens returns the tokens in sorted order.
func (t Tags) Tokens() []string {
	out := make([]string, 0, len(t))
	for tok := range t {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
