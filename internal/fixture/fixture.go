// Package fixture generates and stores deterministic key-value sets used to
// exercise the maps end to end.
//
// File layout (little-endian):
//
//	Offset  Size  Field
//	0       4     Magic     "PHFX"
//	4       2     Version   0x0001
//	6       4     Count     uint32 number of records
//	10      ...   Records   [klen u16][key][vlen u16][value] per record
//	end-8   8     Checksum  xxhash64 of the records region
package fixture

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/errs/v2"
	"github.com/zeebo/mwc"

	phmaperrors "github.com/tamirms/phmap/errors"
)

const (
	// magic is "PHFX" read as a little-endian uint32.
	magic = uint32(0x58464850)

	version = uint16(0x0001)

	headerSize = 10
	footerSize = 8

	// DefaultCount is the number of pairs cmd/genfixture writes by default.
	DefaultCount = 2048

	maxFieldLen = 1<<16 - 1
)

// Entry is one key-value pair.
type Entry struct {
	Key   string
	Value string
}

// Generate returns n distinct pairs of the form
// "{lo}-test-key-{hi}" -> "test-val-{b}", where lo and hi are the halves of
// a 64-bit draw from an mwc stream seeded by seed and b is its low byte.
// The same n and seed always give the same pairs in the same order.
func Generate(n int, seed uint64) []Entry {
	rng := mwc.New(seed, seed^0x9e3779b97f4a7c15)
	seen := make(map[uint64]struct{}, n)
	entries := make([]Entry, 0, n)
	for len(entries) < n {
		h := rng.Uint64()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		entries = append(entries, Entry{
			Key:   fmt.Sprintf("%d-test-key-%d", uint32(h), h>>32),
			Value: fmt.Sprintf("test-val-%d", uint8(h)),
		})
	}
	return entries
}

// header is the fixed file prefix.
type header struct {
	Magic   uint32
	Version uint16
	Count   uint32
}

func (h *header) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint32(buf[6:10], h.Count)
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, errs.Wrap(phmaperrors.ErrTruncatedFile)
	}
	h := header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint16(buf[4:6]),
		Count:   binary.LittleEndian.Uint32(buf[6:10]),
	}
	if h.Magic != magic {
		return header{}, errs.Errorf("%w: 0x%08x", phmaperrors.ErrInvalidMagic, h.Magic)
	}
	if h.Version != version {
		return header{}, errs.Errorf("%w: %d", phmaperrors.ErrInvalidVersion, h.Version)
	}
	return h, nil
}

// encodedSize returns the file size needed for entries.
func encodedSize(entries []Entry) (int, error) {
	size := headerSize + footerSize
	for i, e := range entries {
		if len(e.Key) > maxFieldLen || len(e.Value) > maxFieldLen {
			return 0, errs.Errorf("entry %d exceeds %d bytes", i, maxFieldLen)
		}
		size += 4 + len(e.Key) + len(e.Value)
	}
	return size, nil
}

// putRecord writes one record at buf and returns the bytes used.
func putRecord(buf []byte, e Entry) int {
	n := 0
	binary.LittleEndian.PutUint16(buf[n:], uint16(len(e.Key)))
	n += 2
	n += copy(buf[n:], e.Key)
	binary.LittleEndian.PutUint16(buf[n:], uint16(len(e.Value)))
	n += 2
	n += copy(buf[n:], e.Value)
	return n
}

// nextRecord parses the record at buf and returns it with its length.
func nextRecord(buf []byte) (key, value []byte, n int, err error) {
	if len(buf) < 2 {
		return nil, nil, 0, errs.Wrap(phmaperrors.ErrTruncatedFile)
	}
	klen := int(binary.LittleEndian.Uint16(buf))
	n = 2
	if len(buf) < n+klen+2 {
		return nil, nil, 0, errs.Wrap(phmaperrors.ErrTruncatedFile)
	}
	key = buf[n : n+klen]
	n += klen
	vlen := int(binary.LittleEndian.Uint16(buf[n:]))
	n += 2
	if len(buf) < n+vlen {
		return nil, nil, 0, errs.Wrap(phmaperrors.ErrTruncatedFile)
	}
	value = buf[n : n+vlen]
	n += vlen
	return key, value, n, nil
}
