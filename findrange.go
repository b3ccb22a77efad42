package phmap

import (
	"fmt"
	"math"
	"slices"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// Range is a half-open byte range [Start, End) of a key.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Slice returns key restricted to r. key must be at least r.End bytes long.
func (r Range) Slice(key string) string {
	return key[r.Start:r.End]
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// FindRange returns the smallest byte range that still tells every key
// apart. Start skips the prefix shared by all keys; End is the shortest
// bound such that key[Start:End] is unique for every key.
//
// Zero keys give the empty range and a single key gives its whole length.
// Two equal keys return ErrDuplicateKey. A key shorter than End, which
// happens when one key is a prefix of another, returns ErrKeyTooShort.
func FindRange[S ~string | ~[]byte](keys []S) (Range, error) {
	switch len(keys) {
	case 0:
		return Range{}, nil
	case 1:
		return Range{Start: 0, End: len(keys[0])}, nil
	}

	// In sorted order the longest common prefix of any pair is at most the
	// smaller LCP of the neighbours between them, so adjacent pairs give both
	// the shared prefix (min) and the first byte that separates every pair
	// (max).
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, compareKeys[S])

	start, end := math.MaxInt, 0
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		lcp := commonPrefixLen(a, b)
		if lcp == len(a) && lcp == len(b) {
			return Range{}, fmt.Errorf("%w: %q", phmaperrors.ErrDuplicateKey, string(a))
		}
		start = min(start, lcp)
		end = max(end, lcp+1)
	}

	for _, k := range keys {
		if len(k) < end {
			return Range{}, fmt.Errorf("%w: %q is %d bytes, range needs %d",
				phmaperrors.ErrKeyTooShort, string(k), len(k), end)
		}
	}
	return Range{Start: start, End: end}, nil
}

func commonPrefixLen[S ~string | ~[]byte](a, b S) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func compareKeys[S ~string | ~[]byte](a, b S) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
