package indexing

import (
	"github.com/standardbeagle/grtags/internal/store"
	"github.com/standardbeagle/grtags/internal/types"
)

// Invalidator stages the removal of every tag location that belongs to one
// of ids into batch. It returns the number of locations removed.
//
// Reads go through tags, so they observe committed state only. Callers run
// invalidation before staging any other tag update in batch.
type Invalidator interface {
	Invalidate(tags *store.TagStore, batch *store.TagBatch, ids ...types.FileID) (int, error)
}

// FullScanInvalidator walks the whole tag namespace. Changed entries are
// written back, emptied ones deleted.
type FullScanInvalidator struct{}

func (FullScanInvalidator) Invalidate(tags *store.TagStore, batch *store.TagBatch, ids ...types.FileID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[types.FileID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	removed := 0
	var stageErr error
	err := tags.Range(func(token string, set types.LocationSet) bool {
		n := 0
		for loc := range set {
			if _, ok := drop[loc.File]; ok {
				delete(set, loc)
				n++
			}
		}
		if n == 0 {
			return true
		}
		removed += n
		// An empty set stages a delete
		if stageErr = batch.Set(token, set); stageErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if stageErr != nil {
		return 0, stageErr
	}
	return removed, nil
}
