package fixture

import (
	"encoding/binary"
	"iter"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/zeebo/errs/v2"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// File is an opened fixture. Its checksum has been verified.
type File struct {
	mmap    mmap.MMap
	data    []byte
	count   int
	records []byte
}

// Open maps the fixture at path read-only and verifies it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if stat.Size() < headerSize+footerSize {
		return nil, errs.Errorf("%w: %d bytes", phmaperrors.ErrTruncatedFile, stat.Size())
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errs.Errorf("mmap %s: %w", path, err)
	}
	fx := &File{mmap: mm, data: []byte(mm)}
	if err := fx.init(); err != nil {
		return nil, errs.Combine(err, fx.Close())
	}
	return fx, nil
}

// OpenBytes verifies an in-memory fixture. data must not be modified while
// the File is in use; Close is a no-op.
func OpenBytes(data []byte) (*File, error) {
	fx := &File{data: data}
	if err := fx.init(); err != nil {
		return nil, err
	}
	return fx, nil
}

func (fx *File) init() error {
	if len(fx.data) < headerSize+footerSize {
		return errs.Wrap(phmaperrors.ErrTruncatedFile)
	}
	hdr, err := decodeHeader(fx.data[:headerSize])
	if err != nil {
		return err
	}

	end := len(fx.data) - footerSize
	records := fx.data[headerSize:end]
	want := binary.LittleEndian.Uint64(fx.data[end:])
	if got := xxhash.Sum64(records); got != want {
		return errs.Errorf("%w: got 0x%016x, want 0x%016x", phmaperrors.ErrChecksumFailed, got, want)
	}

	// Walk once so iteration cannot fail later.
	off := 0
	for range hdr.Count {
		_, _, n, err := nextRecord(records[off:])
		if err != nil {
			return err
		}
		off += n
	}
	if off != len(records) {
		return errs.Errorf("%w: %d trailing bytes", phmaperrors.ErrTruncatedFile, len(records)-off)
	}

	fx.count = int(hdr.Count)
	fx.records = records
	return nil
}

// Len returns the number of entries.
func (fx *File) Len() int {
	return fx.count
}

// All yields every entry in file order. Keys and values are copied out of
// the mapping.
func (fx *File) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		off := 0
		for range fx.count {
			k, v, n, _ := nextRecord(fx.records[off:])
			off += n
			if !yield(string(k), string(v)) {
				return
			}
		}
	}
}

// Entries returns every entry in file order.
func (fx *File) Entries() []Entry {
	entries := make([]Entry, 0, fx.count)
	for k, v := range fx.All() {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries
}

// Close unmaps the file. It is safe to call more than once.
func (fx *File) Close() error {
	if fx.mmap == nil {
		return nil
	}
	err := fx.mmap.Unmap()
	fx.mmap = nil
	fx.data = nil
	fx.records = nil
	fx.count = 0
	return errs.Wrap(err)
}

// ReadFile opens path, returns its entries and closes it.
func ReadFile(path string) ([]Entry, error) {
	fx, err := Open(path)
	if err != nil {
		return nil, err
	}
	entries := fx.Entries()
	return entries, fx.Close()
}
