package phmap

import (
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Keyer converts owned keys into lookup views and hashes those views.
//
// K is the owned key type a map stores; Q is the borrowed view used for
// lookups, so a query need not allocate an owned key. Hash must be stable:
// the same view and seed always produce the same value, at build time and
// at query time.
type Keyer[K, Q any] interface {
	View(key K) Q
	Hash(view Q, seed uint64) uint64
}

// StringKeyer hashes string keys with XXH3.
type StringKeyer struct{}

func (StringKeyer) View(key string) string { return key }

func (StringKeyer) Hash(view string, seed uint64) uint64 {
	return xxh3.HashStringSeed(view, seed)
}

// BytesKeyer hashes byte-slice keys with XXH3. Keys must not be modified
// while a map holds them.
type BytesKeyer struct{}

func (BytesKeyer) View(key []byte) []byte { return key }

func (BytesKeyer) Hash(view []byte, seed uint64) uint64 {
	return xxh3.HashSeed(view, seed)
}

// Murmur3Keyer hashes string keys with 64-bit MurmurHash3. murmur3 takes a
// 32-bit seed, so both halves of seed are folded together.
type Murmur3Keyer struct{}

func (Murmur3Keyer) View(key string) string { return key }

func (Murmur3Keyer) Hash(view string, seed uint64) uint64 {
	return murmur3.Sum64WithSeed([]byte(view), uint32(seed)^uint32(seed>>32))
}
