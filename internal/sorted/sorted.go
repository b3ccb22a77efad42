// Package sorted provides a reference bijection from a set of 64-bit hashes
// onto [0, n): each hash maps to its rank in sorted order.
//
// It needs 64 bits per key and O(log n) lookups, so it only serves as a
// deterministic baseline for testing the maps against a function whose
// slot assignment is easy to predict.
package sorted

import (
	"fmt"
	"slices"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// Function maps hashes to their rank among the training hashes.
type Function struct {
	hashes []uint64
}

// Build sorts a copy of hashes. Equal hashes yield ErrDuplicateKey.
func Build(hashes []uint64) (*Function, error) {
	sorted := slices.Clone(hashes)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: hash 0x%016x", phmaperrors.ErrDuplicateKey, sorted[i])
		}
	}
	return &Function{hashes: sorted}, nil
}

// Slot returns the rank of hash. Non-members get the rank of their
// insertion point, clamped to the last slot.
func (f *Function) Slot(hash uint64) (int, bool) {
	n := len(f.hashes)
	if n == 0 {
		return 0, false
	}
	i, _ := slices.BinarySearch(f.hashes, hash)
	return min(i, n-1), true
}

// NumSlots returns the number of training hashes.
func (f *Function) NumSlots() int {
	return len(f.hashes)
}
