package phmap

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// MaxKeys is the largest number of keys a map can hold.
const MaxKeys = math.MaxUint32

// Map is a static key-value map addressed through a minimal perfect hash
// index. Every mutation rebuilds the index over the full key set; lookups
// hash the key once, ask the index for a slot and verify the stored hash.
//
// Membership is confirmed by 64-bit hash equality, so a non-member query
// reports a false hit with probability about n/2^64.
//
// A Map is not safe for concurrent mutation. Concurrent reads are safe when
// no mutation is in progress.
type Map[K, Q, V any] struct {
	keyer   Keyer[K, Q]
	cfg     *config
	builder IndexBuilder
	log     *zap.Logger

	keys     []K
	values   []V
	hashes   []uint64
	occupied *bitset.BitSet
	index    IndexFunction
}

// New creates an empty map that hashes keys with keyer.
func New[K, Q, V any](keyer Keyer[K, Q], opts ...Option) (*Map[K, Q, V], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	builder := cfg.indexBuilder
	if builder == nil {
		var err error
		if builder, err = newIndexBuilder(cfg.algorithm); err != nil {
			return nil, err
		}
	}

	return &Map[K, Q, V]{
		keyer:    keyer,
		cfg:      cfg,
		builder:  builder,
		log:      cfg.logger,
		occupied: bitset.New(0),
		index:    emptyIndex{},
	}, nil
}

// Len returns the number of keys held.
func (m *Map[K, Q, V]) Len() int {
	return len(m.keys)
}

// NumSlots returns the size of the slot array.
func (m *Map[K, Q, V]) NumSlots() int {
	return len(m.values)
}

func (m *Map[K, Q, V]) hash(view Q) uint64 {
	return m.keyer.Hash(view, m.cfg.seed)
}

// slotOf returns the slot the current index assigns to h, or false when the
// index has no slot inside the slot array.
func (m *Map[K, Q, V]) slotOf(h uint64) (int, bool) {
	i, ok := m.index.Slot(h)
	if !ok || i < 0 || i >= len(m.values) {
		return 0, false
	}
	return i, true
}

// lookup returns the slot holding view, verified by hash.
func (m *Map[K, Q, V]) lookup(view Q) (int, bool) {
	h := m.hash(view)
	i, ok := m.slotOf(h)
	if !ok || !m.occupied.Test(uint(i)) || m.hashes[i] != h {
		return 0, false
	}
	return i, true
}

// Get returns the value stored for key.
func (m *Map[K, Q, V]) Get(key Q) (V, bool) {
	i, ok := m.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// GetPtr returns a pointer to the value stored for key, or nil. The pointer
// is valid until the next Insert, Extend or Close.
func (m *Map[K, Q, V]) GetPtr(key Q) *V {
	i, ok := m.lookup(key)
	if !ok {
		return nil
	}
	return &m.values[i]
}

// GetUnchecked returns the value in key's slot without verifying that key
// is a member. For a non-member it returns whatever the slot holds. It
// panics on an empty map.
func (m *Map[K, Q, V]) GetUnchecked(key Q) V {
	i, _ := m.index.Slot(m.hash(key))
	return m.values[i]
}

// GetPtrUnchecked is the pointer form of GetUnchecked.
func (m *Map[K, Q, V]) GetPtrUnchecked(key Q) *V {
	i, _ := m.index.Slot(m.hash(key))
	return &m.values[i]
}

// Insert adds one key-value pair and rebuilds the index.
func (m *Map[K, Q, V]) Insert(key K, value V) error {
	return m.Extend(func(yield func(K, V) bool) {
		yield(key, value)
	})
}

// Extend adds pairs to the map and rebuilds the index over the held keys
// plus the new ones. An empty sequence still rebuilds.
//
// On error the map is left exactly as it was; ownership of the new values
// stays with the caller.
func (m *Map[K, Q, V]) Extend(pairs iter.Seq2[K, V]) error {
	start := time.Now()

	held := len(m.keys)
	keys := slices.Clone(m.keys)
	var newValues []V
	for k, v := range pairs {
		keys = append(keys, k)
		newValues = append(newValues, v)
	}
	n := len(keys)
	if uint64(n) > MaxKeys {
		return fmt.Errorf("%w: %d keys", phmaperrors.ErrTooManyKeys, n)
	}

	hashes := make([]uint64, n)
	for i, k := range keys {
		hashes[i] = m.hash(m.keyer.View(k))
	}
	if err := checkDuplicates(hashes); err != nil {
		return err
	}

	// Locate every held value through the current index before anything
	// is built, so a keyer that changed its mind fails the call cleanly.
	oldSlots := make([]int, held)
	for i := range held {
		s, ok := m.slotOf(hashes[i])
		if !ok || !m.occupied.Test(uint(s)) || m.hashes[s] != hashes[i] {
			return fmt.Errorf("%w: held key %d", phmaperrors.ErrUnstableHash, i)
		}
		oldSlots[i] = s
	}

	index, slots, numSlots, attempts, err := m.buildIndex(hashes)
	if err != nil {
		return err
	}

	values := make([]V, numSlots)
	slotHashes := make([]uint64, numSlots)
	occupied := bitset.New(uint(numSlots))
	for i, s := range slots {
		if i < held {
			values[s] = m.values[oldSlots[i]]
		} else {
			values[s] = newValues[i-held]
		}
		slotHashes[s] = hashes[i]
		occupied.Set(uint(s))
	}

	m.keys = keys
	m.values = values
	m.hashes = slotHashes
	m.occupied = occupied
	m.index = index

	m.log.Debug("rebuilt index",
		zap.Int("keys", n),
		zap.Int("added", n-held),
		zap.Int("slots", numSlots),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// buildIndex builds an index over hashes and assigns every hash its slot.
// Transient construction failures and injectivity violations are retried
// with a derived seed. It returns the slot array size, max slot + 1.
func (m *Map[K, Q, V]) buildIndex(hashes []uint64) (IndexFunction, []int, int, int, error) {
	if len(hashes) == 0 {
		return emptyIndex{}, nil, 0, 0, nil
	}

	seed := m.cfg.seed
	var lastErr error
	for attempt := 0; attempt <= m.cfg.maxRetries; attempt++ {
		index, err := m.builder.Build(hashes, buildParams(len(hashes), seed, m.cfg.workers))
		if err == nil {
			var slots []int
			var numSlots int
			slots, numSlots, err = assignSlots(index, hashes)
			if err == nil {
				return index, slots, numSlots, attempt + 1, nil
			}
		}
		if !isTransient(err) {
			return nil, nil, 0, 0, err
		}
		lastErr = err
		m.log.Warn("index build failed, retrying with derived seed",
			zap.Int("attempt", attempt+1),
			zap.Int("keys", len(hashes)),
			zap.Error(err))
		seed = deriveSeed(seed, attempt)
	}
	return nil, nil, 0, 0, fmt.Errorf("index build failed after %d attempts: %w", m.cfg.maxRetries+1, lastErr)
}

// assignSlots queries index for every hash and rejects any slot handed out
// twice. Slot uniqueness is tracked in a roaring bitmap.
func assignSlots(index IndexFunction, hashes []uint64) ([]int, int, error) {
	slots := make([]int, len(hashes))
	seen := roaring.New()
	maxSlot := -1
	for i, h := range hashes {
		s, ok := index.Slot(h)
		if !ok || s < 0 || uint64(s) > math.MaxUint32 {
			return nil, 0, fmt.Errorf("%w: no valid slot for key %d", phmaperrors.ErrIndexCollision, i)
		}
		if !seen.CheckedAdd(uint32(s)) {
			return nil, 0, fmt.Errorf("%w: slot %d", phmaperrors.ErrIndexCollision, s)
		}
		slots[i] = s
		maxSlot = max(maxSlot, s)
	}
	return slots, maxSlot + 1, nil
}

// checkDuplicates reports two equal hashes as ErrDuplicateKey. Keys that
// differ but hash equal are indistinguishable to the map and rejected too.
func checkDuplicates(hashes []uint64) error {
	sorted := slices.Clone(hashes)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return fmt.Errorf("%w: hash 0x%016x", phmaperrors.ErrDuplicateKey, sorted[i])
		}
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, phmaperrors.ErrIndistinguishableHashes) ||
		errors.Is(err, phmaperrors.ErrBlockOverflow) ||
		errors.Is(err, phmaperrors.ErrIndexCollision) ||
		errors.Is(err, phmaperrors.ErrDuplicateKey)
}

// deriveSeed produces the seed for the next build attempt.
func deriveSeed(seed uint64, attempt int) uint64 {
	x := seed + 0x9e3779b97f4a7c15*uint64(attempt+1)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Close releases every held value exactly once and empties the map.
// Values implementing io.Closer are closed; their errors are joined.
//
// Values are first released by walking the keys through the index, then
// any occupied slot the walk missed is released by a sweep. A keyer that
// hashes inconsistently can make the walk miss or revisit slots, but each
// slot is still released once.
func (m *Map[K, Q, V]) Close() error {
	released := roaring.New()
	var errs []error

	for _, k := range m.keys {
		i, ok := m.slotOf(m.hash(m.keyer.View(k)))
		if !ok || !m.occupied.Test(uint(i)) || !released.CheckedAdd(uint32(i)) {
			continue
		}
		errs = append(errs, release(&m.values[i]))
	}

	swept := 0
	for i, ok := m.occupied.NextSet(0); ok; i, ok = m.occupied.NextSet(i + 1) {
		if released.Contains(uint32(i)) {
			continue
		}
		errs = append(errs, release(&m.values[i]))
		swept++
	}
	if swept > 0 {
		m.log.Warn("released values missed by key walk", zap.Int("count", swept))
	}

	m.keys = nil
	m.values = nil
	m.hashes = nil
	m.occupied = bitset.New(0)
	m.index = emptyIndex{}
	return errors.Join(errs...)
}

// release closes *v if it is an io.Closer and clears the cell.
func release[V any](v *V) error {
	var err error
	if c, ok := any(*v).(io.Closer); ok {
		err = c.Close()
	}
	var zero V
	*v = zero
	return err
}
