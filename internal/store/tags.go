package store

import (
	"errors"

	"github.com/cockroachdb/pebble"

	grerrors "github.com/standardbeagle/grtags/internal/errors"
	"github.com/standardbeagle/grtags/internal/types"
)

// TagStore is a lock-scoped handle on the tag namespace.
type TagStore struct {
	handle
}

// Get returns the location set stored for token. A missing token yields an
// empty set and false.
func (t *TagStore) Get(token string) (types.LocationSet, bool, error) {
	if err := t.checkRead(); err != nil {
		return nil, false, err
	}
	val, ok, err := t.get(key(prefixTags, token))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return make(types.LocationSet), false, nil
	}
	set, err := decodeLocationSet(val)
	if err != nil {
		return nil, false, grerrors.NewStoreError(nsTags, "decode", token, err)
	}
	return set, true, nil
}

// Set stores the location set for token. An empty set deletes the token.
func (t *TagStore) Set(token string, set types.LocationSet) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	if len(set) == 0 {
		return t.remove(key(prefixTags, token))
	}
	return t.set(key(prefixTags, token), encodeLocationSet(set))
}

// Remove deletes token.
func (t *TagStore) Remove(token string) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	return t.remove(key(prefixTags, token))
}

// Range calls fn for every token in key order until fn returns false.
func (t *TagStore) Range(fn func(token string, set types.LocationSet) bool) error {
	if err := t.checkRead(); err != nil {
		return err
	}
	return t.iterate(prefixTags, func(k, v []byte) (bool, error) {
		set, err := decodeLocationSet(v)
		if err != nil {
			return false, grerrors.NewStoreError(nsTags, "decode", string(k), err)
		}
		return fn(string(k), set), nil
	})
}

// Len counts the tokens in the namespace.
func (t *TagStore) Len() (int, error) {
	n := 0
	err := t.iterate(prefixTags, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// NewBatch starts an indexed batch: reads through the batch observe the
// batch's own staged writes.
func (t *TagStore) NewBatch() *TagBatch {
	return &TagBatch{batch: &batch{hs: []*handle{&t.handle}, b: t.db.db.NewIndexedBatch()}}
}

// TagBatch stages tag updates that are applied together on Commit.
type TagBatch struct {
	*batch
}

// Get reads token through the batch.
func (b *TagBatch) Get(token string) (types.LocationSet, bool, error) {
	k := key(prefixTags, token)
	val, closer, err := b.b.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return make(types.LocationSet), false, nil
	}
	if err != nil {
		return nil, false, grerrors.NewStoreError(nsTags, "batch get", token, err)
	}
	set, derr := decodeLocationSet(val)
	if err := closer.Close(); err != nil {
		return nil, false, grerrors.NewStoreError(nsTags, "batch get", token, err)
	}
	if derr != nil {
		return nil, false, grerrors.NewStoreError(nsTags, "decode", token, derr)
	}
	return set, true, nil
}

// Set stages a location set for token. An empty set stages a deletion.
func (b *TagBatch) Set(token string, set types.LocationSet) error {
	if len(set) == 0 {
		return b.remove(key(prefixTags, token))
	}
	return b.set(key(prefixTags, token), encodeLocationSet(set))
}

// Remove stages a token deletion.
func (b *TagBatch) Remove(token string) error {
	return b.remove(key(prefixTags, token))
}
