package fixture

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/zeebo/errs/v2"
)

// WriteFile writes entries to path, replacing any existing file.
//
// The file is preallocated to its final size and filled through a writable
// mapping. On error the partial file is removed.
func WriteFile(path string, entries []Entry) (err error) {
	size, err := encodedSize(entries)
	if err != nil {
		return err
	}
	if uint64(len(entries)) > uint64(^uint32(0)) {
		return errs.Errorf("too many entries: %d", len(entries))
	}

	file, err := os.Create(path)
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, os.Remove(path))
		}
	}()

	if err := preallocate(file, int64(size)); err != nil {
		return errs.Combine(errs.Errorf("allocate %d bytes: %w", size, err), file.Close())
	}

	mm, err := mmap.MapRegion(file, size, mmap.RDWR, 0, 0)
	if err != nil {
		return errs.Combine(errs.Errorf("mmap: %w", err), file.Close())
	}
	data := []byte(mm)

	hdr := header{Magic: magic, Version: version, Count: uint32(len(entries))}
	hdr.encodeTo(data[:headerSize])

	off := headerSize
	for _, e := range entries {
		off += putRecord(data[off:], e)
	}
	sum := xxhash.Sum64(data[headerSize:off])
	binary.LittleEndian.PutUint64(data[off:], sum)

	if err := mm.Flush(); err != nil {
		return errs.Combine(errs.Errorf("mmap flush: %w", err), mm.Unmap(), file.Close())
	}
	if err := mm.Unmap(); err != nil {
		return errs.Combine(errs.Errorf("mmap unmap: %w", err), file.Close())
	}
	return errs.Wrap(file.Close())
}
