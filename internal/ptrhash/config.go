// Package ptrhash implements an in-memory PTRHash minimal perfect hash
// function over 64-bit key hashes.
//
// Hashes are routed to independent blocks; each block assigns its keys to
// buckets and searches an 8-bit pilot per bucket so that every key lands in
// a distinct slot. Slots past the block's key count are remapped into holes,
// so the function is minimal: n keys map onto exactly [0, n).
package ptrhash

import (
	"math"

	intbits "github.com/tamirms/phmap/internal/bits"
)

// Algorithm constants
const (
	// lambda is the average keys per bucket.
	lambda = 3.16

	// alpha is the slot load factor.
	alpha = 0.99

	// targetKeysPerBlock is the expected key count of a block. Blocks are
	// independent, which is what lets them be solved on separate workers.
	targetKeysPerBlock = 1 << 14

	// maxKeysPerBlock keeps slot indices, cumulative bucket counts and remap
	// entries inside uint16. ceil(maxKeysPerBlock/alpha) must stay <= 65536.
	maxKeysPerBlock = 64000

	// maxBucketsPerBlock caps the bucket count derived from the key count:
	// ceil(targetKeysPerBlock / lambda).
	maxBucketsPerBlock = 5185

	// numPilotValues is the total number of pilot values to try (0-255).
	numPilotValues = 256

	// maxBlockRetries is how many times a block is re-solved with a fresh
	// phase-2 RNG stream after hitting the eviction limit.
	maxBlockRetries = 10

	// MaxKeys is the largest key set a Function can be built over. Cumulative
	// per-block key counts are stored as uint32.
	MaxKeys = math.MaxUint32
)

// computeNumSlots returns the number of slots for a given key count.
// numSlots = ceil(numKeys / alpha), but always at least numKeys.
func computeNumSlots(numKeys int) uint32 {
	n := uint32(math.Ceil(float64(numKeys) / alpha))
	if n < uint32(numKeys) {
		n = uint32(numKeys)
	}
	return n
}

// geometry returns the block and per-block bucket counts for numKeys.
// Bucket counts are sized from the next power of two of the key count, so
// small sets get a handful of buckets instead of a full block's worth.
func geometry(numKeys int) (numBlocks uint32, bucketsPerBlock int) {
	if numKeys == 0 {
		return 0, 0
	}
	numBlocks = uint32(intbits.CeilDiv(numKeys, targetKeysPerBlock))

	hint := intbits.NextPowerOfTwo(numKeys)
	if hint > targetKeysPerBlock {
		hint = targetKeysPerBlock
	}
	bucketsPerBlock = int(math.Ceil(float64(hint) / lambda))
	if bucketsPerBlock > maxBucketsPerBlock {
		bucketsPerBlock = maxBucketsPerBlock
	}
	if bucketsPerBlock < 1 {
		bucketsPerBlock = 1
	}
	return numBlocks, bucketsPerBlock
}
