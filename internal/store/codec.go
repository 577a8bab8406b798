package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/standardbeagle/grtags/internal/types"
)

const codecVersion byte = 1

var errShortLocationSet = errors.New("truncated location set")

// encodeLocationSet writes a version byte, the entry count and then every
// location in sorted order as (file, line, column, flag) varints. Sorting
// makes equal sets encode to equal bytes.
func encodeLocationSet(set types.LocationSet) []byte {
	locs := set.Sorted()
	buf := make([]byte, 0, 1+binary.MaxVarintLen32+len(locs)*8)
	buf = append(buf, codecVersion)
	buf = binary.AppendUvarint(buf, uint64(len(locs)))
	for _, loc := range locs {
		buf = binary.AppendUvarint(buf, uint64(loc.File))
		buf = binary.AppendUvarint(buf, uint64(loc.Line))
		buf = binary.AppendUvarint(buf, uint64(loc.Column))
		buf = append(buf, byte(set[loc]))
	}
	return buf
}

func decodeLocationSet(b []byte) (types.LocationSet, error) {
	if len(b) == 0 {
		return nil, errShortLocationSet
	}
	if b[0] != codecVersion {
		return nil, fmt.Errorf("unknown location set version %d", b[0])
	}
	b = b[1:]

	count, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, errShortLocationSet
	}
	b = b[n:]

	hint := count
	if hint > uint64(len(b)) {
		hint = uint64(len(b))
	}
	set := make(types.LocationSet, hint)
	for i := uint64(0); i < count; i++ {
		var fields [3]uint64
		for j := range fields {
			v, n := binary.Uvarint(b)
			if n <= 0 {
				return nil, errShortLocationSet
			}
			fields[j] = v
			b = b[n:]
		}
		if len(b) == 0 {
			return nil, errShortLocationSet
		}
		loc := types.Location{
			File:     types.FileID(fields[0]),
			Position: types.Position{Line: uint32(fields[1]), Column: uint32(fields[2])},
		}
		set[loc] = types.Flag(b[0])
		b = b[1:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after location set", len(b))
	}
	return set, nil
}
