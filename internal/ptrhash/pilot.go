package ptrhash

import (
	"math/bits"

	intbits "github.com/tamirms/phmap/internal/bits"
)

// pilotHashC is the mixing constant used by PTRHash for pilot hashing.
// Origin: PTRHash paper (https://arxiv.org/abs/2104.10402).
const pilotHashC = 0x517cc1b727220a95

// suffixMixer decorrelates the bucket input k1 from the routing input k0.
const suffixMixer = 0x9e3779b97f4a7c15

// splitMix64 is the SplitMix64 finalizer (Stafford variant).
func splitMix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// splitHash derives the two solver inputs from a 64-bit key hash.
// k0 routes the key to a block, k1 picks the bucket, k0^k1 feeds the slot.
// Folding the seed in here means a retry with a new seed reshuffles
// routing, bucketing and slots at once.
func splitHash(hash, seed uint64) (k0, k1 uint64) {
	k0 = splitMix64(hash ^ seed)
	k1 = splitMix64(k0 ^ suffixMixer)
	return k0, k1
}

// pilotHash computes the pilot hash value for a given pilot and seed.
// The SplitMix64 finalizer keeps the 256 pilots behaving as independent
// trials; "| 1" keeps the multiplier odd so the product is a bijection.
func pilotHash(pilot uint8, seed uint64) uint64 {
	return splitMix64(pilotHashC*(uint64(pilot)^seed)) | 1
}

// foldSlotInput precomputes h ^ (h >> 32) from h = k0 ^ k1.
func foldSlotInput(k0, k1 uint64) uint64 {
	h := k0 ^ k1
	return h ^ (h >> 32)
}

// pilotSlotFolded maps a folded hash and pilot hash to [0, numSlots).
func pilotSlotFolded(hFolded uint64, hp uint64, numSlots uint32) uint32 {
	hi, _ := bits.Mul64(hFolded*hp, uint64(numSlots))
	return uint32(hi)
}

// cubicEpsBucket computes the local bucket index using the CubicEps
// distribution: x² × (1+x)/2 × 255/256 + x/256. Skewed bucket sizes let the
// large buckets be placed first while the slot pool is still empty.
func cubicEpsBucket(x uint64, numBuckets uint32) uint32 {
	if numBuckets <= 1 {
		return 0
	}

	x2, _ := bits.Mul64(x, x)
	xHalf := (x >> 1) | (1 << 63)
	cubic, _ := bits.Mul64(x2, xHalf)
	scaled := (cubic/256)*255 + x/256

	return intbits.FastRange32(scaled, numBuckets)
}

// remapSlot resolves an overflow slot (>= numKeys) through the block's
// remap table. Slots already inside [0, numKeys) are returned unchanged.
func remapSlot(remap []uint16, slot uint32, numKeys uint32) uint32 {
	if slot < numKeys {
		return slot
	}
	return uint32(remap[slot-numKeys])
}
