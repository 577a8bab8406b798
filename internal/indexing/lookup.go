package indexing

import (
	"sort"

	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
)

// Hit is one resolved tag location.
type Hit struct {
	Path   string // relative to the project root, empty if the file is unknown
	File   types.FileID
	Line   uint32
	Column uint32
	Flag   types.Flag
}

// Lookup returns every location recorded for token, ordered by path and
// position. File identifiers are resolved through the file-state namespace.
func Lookup(db *store.DB, token string) ([]Hit, error) {
	tags := db.Tags(store.ReadLock)
	set, _, err := tags.Get(token)
	tags.Release()
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, nil
	}

	want := make(map[types.FileID]string)
	for loc := range set {
		want[loc.File] = ""
	}
	files := db.Files(store.ReadLock)
	err = files.Range(func(rel string, _ int64) bool {
		id := types.FileIDFor(rel)
		if _, ok := want[id]; ok {
			want[id] = rel
		}
		return true
	})
	files.Release()
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(set))
	for _, loc := range set.Sorted() {
		hits = append(hits, Hit{
			Path:   want[loc.File],
			File:   loc.File,
			Line:   loc.Line,
			Column: loc.Column,
			Flag:   set[loc],
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Path != hits[j].Path {
			return hits[i].Path < hits[j].Path
		}
		if hits[i].Line != hits[j].Line {
			return hits[i].Line < hits[j].Line
		}
		return hits[i].Column < hits[j].Column
	})
	return hits, nil
}
