package phmap

import (
	"fmt"

	phmaperrors "github.com/tamirms/phmap/errors"
	intbits "github.com/tamirms/phmap/internal/bits"
	"github.com/tamirms/phmap/internal/ptrhash"
	"github.com/tamirms/phmap/internal/sorted"
)

// Algorithm identifies the index function construction used by a map.
type Algorithm uint16

const (
	// AlgoPTRHash builds a PTRHash minimal perfect hash function with 8-bit
	// pilots. It needs a few bits per key and answers in O(1).
	AlgoPTRHash Algorithm = 0

	// AlgoSorted maps each hash to its rank in sorted order. It costs 64
	// bits per key and O(log n) per query; use it as a predictable baseline.
	AlgoSorted Algorithm = 1
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AlgoPTRHash:
		return "ptrhash"
	case AlgoSorted:
		return "sorted"
	default:
		return "unknown"
	}
}

// ParseAlgorithm returns the Algorithm named s.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "ptrhash":
		return AlgoPTRHash, nil
	case "sorted":
		return AlgoSorted, nil
	default:
		return 0, fmt.Errorf("%w: %q", phmaperrors.ErrUnknownAlgorithm, s)
	}
}

// IndexFunction maps key hashes to slots.
//
// For every hash the function was built over, Slot returns a distinct slot
// in [0, NumSlots()). For any other hash it may return any slot, including
// one owned by a member; callers verify membership themselves. ok is false
// only when the function cannot produce a slot at all, such as when it was
// built over no keys.
//
// An IndexFunction is immutable and safe for concurrent use.
type IndexFunction interface {
	Slot(hash uint64) (slot int, ok bool)
	NumSlots() int
}

// BuildParams carries the construction parameters handed to an IndexBuilder.
type BuildParams struct {
	// Seed perturbs construction. A retry after a failed build gets a
	// different seed.
	Seed uint64

	// Workers bounds the goroutines the builder may use.
	Workers int

	// SizeHint is the next power of two of the key count; builders scale
	// their internal tables from it.
	SizeHint int
}

// IndexBuilder constructs an IndexFunction over a set of distinct hashes.
//
// Build must be deterministic for a fixed hash set and parameters, and the
// result must be injective over the hashes. Errors wrapping
// ErrIndistinguishableHashes, ErrBlockOverflow or ErrDuplicateKey are
// treated as transient and retried with a new seed.
type IndexBuilder interface {
	Build(hashes []uint64, params BuildParams) (IndexFunction, error)
}

// newIndexBuilder creates the builder for the configured algorithm.
func newIndexBuilder(algo Algorithm) (IndexBuilder, error) {
	switch algo {
	case AlgoPTRHash:
		return ptrhashBuilder{}, nil
	case AlgoSorted:
		return sortedBuilder{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", phmaperrors.ErrUnknownAlgorithm, algo)
	}
}

type ptrhashBuilder struct{}

func (ptrhashBuilder) Build(hashes []uint64, params BuildParams) (IndexFunction, error) {
	f, err := ptrhash.Build(hashes, params.Seed, params.Workers)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type sortedBuilder struct{}

func (sortedBuilder) Build(hashes []uint64, _ BuildParams) (IndexFunction, error) {
	f, err := sorted.Build(hashes)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// emptyIndex is the index of a map holding no keys.
type emptyIndex struct{}

func (emptyIndex) Slot(uint64) (int, bool) { return 0, false }
func (emptyIndex) NumSlots() int           { return 0 }

func buildParams(numKeys int, seed uint64, workers int) BuildParams {
	return BuildParams{
		Seed:     seed,
		Workers:  workers,
		SizeHint: intbits.NextPowerOfTwo(numKeys),
	}
}
