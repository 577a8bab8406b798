package store

import (
	"encoding/binary"
	"fmt"

	grerrors "github.com/standardbeagle/grtags/internal/errors"
)

// FileStore is a lock-scoped handle on the file-state namespace.
// Keys are project-relative paths; values are last-indexed timestamps in
// nanoseconds since the Unix epoch.
type FileStore struct {
	handle
}

// Get returns the last-indexed timestamp for rel.
func (f *FileStore) Get(rel string) (int64, bool, error) {
	if err := f.checkRead(); err != nil {
		return 0, false, err
	}
	val, ok, err := f.get(key(prefixFiles, rel))
	if err != nil || !ok {
		return 0, false, err
	}
	ts, err := decodeTimestamp(val)
	if err != nil {
		return 0, false, grerrors.NewStoreError(nsFiles, "decode", rel, err)
	}
	return ts, true, nil
}

// Set records the last-indexed timestamp for rel.
func (f *FileStore) Set(rel string, indexed int64) error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	return f.set(key(prefixFiles, rel), encodeTimestamp(indexed))
}

// Remove deletes the record for rel.
func (f *FileStore) Remove(rel string) error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	return f.remove(key(prefixFiles, rel))
}

// Range calls fn for every record in key order until fn returns false.
func (f *FileStore) Range(fn func(rel string, indexed int64) bool) error {
	if err := f.checkRead(); err != nil {
		return err
	}
	return f.iterate(prefixFiles, func(k, v []byte) (bool, error) {
		ts, err := decodeTimestamp(v)
		if err != nil {
			return false, grerrors.NewStoreError(nsFiles, "decode", string(k), err)
		}
		return fn(string(k), ts), nil
	})
}

// Len counts the records in the namespace.
func (f *FileStore) Len() (int, error) {
	n := 0
	err := f.Range(func(string, int64) bool {
		n++
		return true
	})
	return n, err
}

// NewBatch starts an atomic batch of file-state updates.
func (f *FileStore) NewBatch() *FileBatch {
	return &FileBatch{batch: &batch{hs: []*handle{&f.handle}, b: f.db.db.NewBatch()}}
}

// FileBatch stages file-state updates that are applied together on Commit.
type FileBatch struct {
	*batch
}

// Set stages a timestamp update.
func (b *FileBatch) Set(rel string, indexed int64) error {
	return b.set(key(prefixFiles, rel), encodeTimestamp(indexed))
}

// Remove stages a record deletion.
func (b *FileBatch) Remove(rel string) error {
	return b.remove(key(prefixFiles, rel))
}

func encodeTimestamp(ts int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	return buf[:]
}

func decodeTimestamp(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("timestamp has %d bytes, want 8", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
