package phmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"math/rand/v2"
	"testing"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// fillFromRNG fills buf with pseudo-random bytes from rng.
func fillFromRNG(rng *rand.Rand, buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], rng.Uint64())
	}
	if tail := len(buf) % 8; tail > 0 {
		v := rng.Uint64()
		start := len(buf) - tail
		for j := range tail {
			buf[start+j] = byte(v >> (j * 8))
		}
	}
}

// generateRandomKeys creates n distinct pseudo-random keys of keySize bytes.
func generateRandomKeys(rng *rand.Rand, n, keySize int) []string {
	seen := make(map[string]bool, n)
	keys := make([]string, 0, n)
	buf := make([]byte, keySize)
	for len(keys) < n {
		fillFromRNG(rng, buf)
		k := string(buf)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// numberedKeys returns n keys sharing prefix, distinguished by a decimal
// suffix padded to a fixed width.
func numberedKeys(prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s%08d", prefix, i)
	}
	return keys
}

// pairs yields keys[i] -> value(i).
func pairs[K, V any](keys []K, value func(i int) V) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i, k := range keys {
			if !yield(k, value(i)) {
				return
			}
		}
	}
}

func identity(i int) int { return i }

// resource counts Close calls so tests can check values are released once.
type resource struct {
	id     int
	closes *int
	err    error
}

func (r *resource) Close() error {
	*r.closes++
	return r.err
}

// closeLog records how often each resource was closed.
type closeLog map[int]*int

func (l closeLog) newResource(id int) *resource {
	n := new(int)
	l[id] = n
	return &resource{id: id, closes: n}
}

func (l closeLog) checkEachClosedOnce(t *testing.T) {
	t.Helper()
	for id, n := range l {
		if *n != 1 {
			t.Errorf("resource %d closed %d times, want 1", id, *n)
		}
	}
}

// flakyKeyer hashes like StringKeyer until armed, then returns a hash that
// changes on every call.
type flakyKeyer struct {
	armed bool
	calls uint64
}

func (k *flakyKeyer) View(key string) string { return key }

func (k *flakyKeyer) Hash(view string, seed uint64) uint64 {
	if !k.armed {
		return StringKeyer{}.Hash(view, seed)
	}
	k.calls++
	return StringKeyer{}.Hash(view, seed+k.calls)
}

// collidingBuilder returns an index that sends every hash to slot 0.
type collidingBuilder struct{}

func (collidingBuilder) Build(hashes []uint64, _ BuildParams) (IndexFunction, error) {
	return constIndex(len(hashes)), nil
}

type constIndex int

func (c constIndex) Slot(uint64) (int, bool) { return 0, c > 0 }
func (c constIndex) NumSlots() int           { return int(c) }

// failingBuilder fails the first failures builds with a transient error,
// then delegates to the sorted algorithm.
type failingBuilder struct {
	failures int
	calls    int
	seeds    []uint64
}

var errPermanent = errors.New("permanent build failure")

func (b *failingBuilder) Build(hashes []uint64, params BuildParams) (IndexFunction, error) {
	b.calls++
	b.seeds = append(b.seeds, params.Seed)
	if b.failures < 0 {
		return nil, errPermanent
	}
	if b.calls <= b.failures {
		return nil, fmt.Errorf("%w: forced", phmaperrors.ErrIndistinguishableHashes)
	}
	return sortedBuilder{}.Build(hashes, params)
}
