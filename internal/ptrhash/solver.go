package ptrhash

import (
	"errors"
	"math"
	"math/rand/v2"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// errEvictionLimitExceeded is returned when a block exceeds the allowed
// number of evictions. The block is re-solved with a fresh RNG stream; it
// is never returned to callers of Build.
var errEvictionLimitExceeded = errors.New("ptrhash solver: eviction limit exceeded")

const (
	// pinnedSize is the size of the circular buffer of recently placed
	// buckets that may not be evicted, which prevents eviction cycles.
	pinnedSize = 16

	// maxEvictionMultiplier limits total evictions to this many times numSlots.
	maxEvictionMultiplier = 10

	// minBufferAlloc is the floor for reusable scratch buffers.
	minBufferAlloc = 16
)

// bucketEntry holds the two solver inputs of one key.
type bucketEntry struct {
	k1 uint64 // bucket input
	k0 uint64 // routing input, combined with k1 for the slot
}

// solver holds state for solving one block at a time. It is reused across
// blocks by a single goroutine and is not safe for concurrent use.
//
// Slot occupancy and bucket "processed" flags are generation-stamped: a
// slot is taken iff slotGen[slot] == generation, so moving to the next
// block is a counter increment rather than a clear.
type solver struct {
	numBuckets uint32
	numSlots   uint32
	numKeys    int

	pilotHPs [numPilotValues]uint64

	buckets     [][]bucketEntry
	bucketOrder []uint16
	sortCounts  []int

	pilots       []uint8 // output, one per bucket
	slotOwner    []uint16
	slotGen      []uint8
	processedGen []uint8
	generation   uint8

	phase2SlotGen []uint32
	phase2Gen     uint32

	pinned    [pinnedSize]int
	pinnedIdx int
	evictions int

	slotsBuffer   []uint16
	foldedBuffer  []uint64
	bestSlots     []uint16
	evictedOwners []uint16
	pendingHeap   *bucketHeap
}

// newSolver creates a solver with buffers sized for blocks of up to
// maxNumBuckets buckets and maxNumKeys keys. Larger blocks grow the buffers.
func newSolver(maxNumBuckets, maxNumKeys int) *solver {
	maxNumSlots := computeNumSlots(maxNumKeys)
	maxBucketSize := max(int(math.Ceil(lambda*3)), minBufferAlloc)

	return &solver{
		bucketOrder:   make([]uint16, maxNumBuckets),
		sortCounts:    make([]int, maxBucketSize+1),
		slotOwner:     make([]uint16, maxNumSlots),
		slotGen:       make([]uint8, maxNumSlots),
		processedGen:  make([]uint8, maxNumBuckets),
		generation:    1, // generation 0 means "never taken"
		phase2SlotGen: make([]uint32, maxNumSlots),
		slotsBuffer:   make([]uint16, maxBucketSize),
		foldedBuffer:  make([]uint64, maxBucketSize),
		bestSlots:     make([]uint16, 0, maxBucketSize),
		evictedOwners: make([]uint16, 0, minBufferAlloc),
		pendingHeap:   newBucketHeap(max(maxNumBuckets/10, minBufferAlloc)),
	}
}

// reset prepares the solver for a new block. Pilots are written into
// pilotsDst, which must hold len(buckets) bytes.
func (s *solver) reset(buckets [][]bucketEntry, numKeys int, seed uint64, pilotsDst []uint8) {
	numBuckets := uint32(len(buckets))
	numSlots := computeNumSlots(numKeys)

	s.numBuckets = numBuckets
	s.numSlots = numSlots
	s.numKeys = numKeys
	s.buckets = buckets
	s.pilots = pilotsDst[:numBuckets]
	s.evictions = 0
	s.pinnedIdx = 0
	for i := range s.pinned {
		s.pinned[i] = -1
	}

	for p := range s.pilotHPs {
		s.pilotHPs[p] = pilotHash(uint8(p), seed)
	}

	if int(numSlots) > len(s.slotGen) {
		s.slotOwner = make([]uint16, numSlots)
		s.slotGen = make([]uint8, numSlots)
		s.phase2SlotGen = make([]uint32, numSlots)
	}
	if int(numBuckets) > len(s.processedGen) {
		s.processedGen = make([]uint8, numBuckets)
		s.bucketOrder = make([]uint16, numBuckets)
	}

	maxBucketSize := 0
	for _, b := range buckets {
		maxBucketSize = max(maxBucketSize, len(b))
	}
	if maxBucketSize > len(s.slotsBuffer) {
		s.slotsBuffer = make([]uint16, maxBucketSize)
		s.foldedBuffer = make([]uint64, maxBucketSize)
	}
	if maxBucketSize+1 > len(s.sortCounts) {
		s.sortCounts = make([]int, maxBucketSize+1)
	}
	orderBucketsBySize(buckets, s.bucketOrder[:numBuckets], s.sortCounts)

	// hasNoDuplicateSlots borrows generation+1 as a scratch marker, so wrap
	// before generation reaches 255.
	s.generation++
	if s.generation >= 254 {
		s.generation = 1
		clear(s.slotGen)
		clear(s.processedGen)
	}
}

func (s *solver) bucketSize(idx int) int {
	return len(s.buckets[idx])
}

func (s *solver) isProcessed(bucketIdx int) bool {
	return s.processedGen[bucketIdx] == s.generation
}

func (s *solver) setProcessed(bucketIdx int) {
	s.processedGen[bucketIdx] = s.generation
}

func (s *solver) clearProcessed(bucketIdx int) {
	s.processedGen[bucketIdx] = 0
}

// getOwner returns the bucket owning slot, or -1 if the slot is free.
func (s *solver) getOwner(slot uint32) int {
	if s.slotGen[slot] != s.generation {
		return -1
	}
	return int(s.slotOwner[slot])
}

func (s *solver) isPinned(bucketIdx int) bool {
	for _, p := range s.pinned {
		if p == bucketIdx {
			return true
		}
	}
	return false
}

func (s *solver) pin(bucketIdx int) {
	s.pinned[s.pinnedIdx] = bucketIdx
	s.pinnedIdx = (s.pinnedIdx + 1) % pinnedSize
}

// solve assigns a pilot to every bucket and returns the remap table for
// slots in [numKeys, numSlots). rng drives the phase-2 pilot start offsets;
// callers seed it deterministically so identical input builds identically.
func (s *solver) solve(rng *rand.Rand) ([]uint16, error) {
	if s.numKeys == 0 {
		clear(s.pilots)
		return nil, nil
	}

	maxEvictions := maxEvictionMultiplier * int(s.numSlots)
	s.pendingHeap.clear()

	for _, bucketIdx16 := range s.bucketOrder[:s.numBuckets] {
		bucketIdx := int(bucketIdx16)
		if s.bucketSize(bucketIdx) == 0 {
			s.pilots[bucketIdx] = 0
			s.setProcessed(bucketIdx)
			continue
		}
		if s.isProcessed(bucketIdx) {
			continue
		}

		if err := s.processBucket(bucketIdx, rng); err != nil {
			return nil, err
		}

		for s.pendingHeap.len() > 0 {
			currentIdx, _ := s.pendingHeap.pop()
			if s.isProcessed(currentIdx) {
				continue
			}
			if err := s.processBucket(currentIdx, rng); err != nil {
				return nil, err
			}
			if s.evictions > maxEvictions {
				return nil, errEvictionLimitExceeded
			}
		}
	}

	return s.buildRemap(), nil
}

// processBucket places one bucket. Phase 1 looks for a pilot whose slots are
// all free; phase 2 picks the pilot with the cheapest set of evictions,
// scoring each displaced bucket by its size squared.
func (s *solver) processBucket(bucketIdx int, rng *rand.Rand) error {
	bucket := s.buckets[bucketIdx]
	bucketSize := len(bucket)

	folded := s.foldedBuffer[:bucketSize]
	for i, e := range bucket {
		folded[i] = foldSlotInput(e.k0, e.k1)
	}
	slots := s.slotsBuffer[:bucketSize]

	if pilot, ok := s.findFreePilot(folded, slots); ok {
		s.placeBucket(bucketIdx, pilot, slots)
		s.setProcessed(bucketIdx)
		return nil
	}

	p0 := rng.IntN(numPilotValues)
	bestPilot := uint8(0)
	bestScore := math.MaxInt
	s.bestSlots = s.bestSlots[:0]
	minPossibleScore := bucketSize * bucketSize

	for delta := range numPilotValues {
		pilot := uint8((p0 + delta) % numPilotValues)
		hp := s.pilotHPs[pilot]
		for i := range slots {
			slots[i] = uint16(pilotSlotFolded(folded[i], hp, s.numSlots))
		}

		score := 0
		viable := true
		for _, slot := range slots {
			owner := s.getOwner(uint32(slot))
			if owner < 0 {
				continue
			}
			if s.isPinned(owner) {
				viable = false
				break
			}
			ownerSize := s.bucketSize(owner)
			score += ownerSize * ownerSize
			if score >= bestScore {
				viable = false
				break
			}
		}
		if !viable || !s.hasNoDuplicateSlotsPhase2(slots) {
			continue
		}

		bestPilot, bestScore = pilot, score
		s.bestSlots = append(s.bestSlots[:0], slots...)
		if score <= minPossibleScore {
			break
		}
	}

	if len(s.bestSlots) == 0 {
		// Identical slot inputs collide under every pilot.
		if hasDuplicateSlotInput(bucket) {
			return phmaperrors.ErrDuplicateKey
		}
		// Every pilot hit a pinned bucket; a different eviction path may not.
		return errEvictionLimitExceeded
	}

	s.evictedOwners = s.evictedOwners[:0]
	for _, slot := range s.bestSlots {
		owner := s.getOwner(uint32(slot))
		if owner < 0 || owner == bucketIdx {
			continue
		}
		seen := false
		for _, e := range s.evictedOwners {
			if int(e) == owner {
				seen = true
				break
			}
		}
		if !seen {
			s.evictedOwners = append(s.evictedOwners, uint16(owner))
		}
	}
	for _, owner16 := range s.evictedOwners {
		owner := int(owner16)
		s.evictBucket(owner)
		s.clearProcessed(owner)
		s.pendingHeap.push(owner, s.bucketSize(owner))
		s.evictions++
	}

	s.placeBucket(bucketIdx, bestPilot, s.bestSlots)
	s.pin(bucketIdx)
	s.setProcessed(bucketIdx)
	return nil
}

// findFreePilot returns the first pilot whose slots are all free and
// pairwise distinct. On success slots holds the computed slots.
func (s *solver) findFreePilot(folded []uint64, slots []uint16) (uint8, bool) {
	numSlots := s.numSlots
	gen := s.generation
	slotGen := s.slotGen

next:
	for p := range numPilotValues {
		hp := s.pilotHPs[p]
		for i, hf := range folded {
			slot := pilotSlotFolded(hf, hp, numSlots)
			if slotGen[slot] == gen {
				continue next
			}
			slots[i] = uint16(slot)
		}
		if s.hasNoDuplicateSlots(slots) {
			return uint8(p), true
		}
	}
	return 0, false
}

// hasNoDuplicateSlots reports whether all slots are distinct. It borrows
// generation+1 as a temporary marker in slotGen and restores every touched
// entry to 0 (free) before returning; callers only pass free slots.
func (s *solver) hasNoDuplicateSlots(slots []uint16) bool {
	marker := s.generation + 1
	ok := true
	n := 0
	for _, slot := range slots {
		if s.slotGen[slot] == marker {
			ok = false
			break
		}
		s.slotGen[slot] = marker
		n++
	}
	for _, slot := range slots[:n] {
		s.slotGen[slot] = 0
	}
	return ok
}

// hasNoDuplicateSlotsPhase2 reports whether all slots are distinct, using a
// separate stamp array because phase-2 slots may be taken.
func (s *solver) hasNoDuplicateSlotsPhase2(slots []uint16) bool {
	s.phase2Gen++
	if s.phase2Gen == 0 {
		clear(s.phase2SlotGen)
		s.phase2Gen = 1
	}
	stamp := s.phase2Gen
	for _, slot := range slots {
		if s.phase2SlotGen[slot] == stamp {
			return false
		}
		s.phase2SlotGen[slot] = stamp
	}
	return true
}

// hasDuplicateSlotInput reports whether two entries share k0 ^ k1 and can
// therefore never be separated by any pilot.
func hasDuplicateSlotInput(bucket []bucketEntry) bool {
	for i := range bucket {
		xi := bucket[i].k0 ^ bucket[i].k1
		for j := i + 1; j < len(bucket); j++ {
			if xi == bucket[j].k0^bucket[j].k1 {
				return true
			}
		}
	}
	return false
}

func (s *solver) placeBucket(bucketIdx int, pilot uint8, slots []uint16) {
	s.pilots[bucketIdx] = pilot
	gen := s.generation
	for _, slot := range slots {
		s.slotOwner[slot] = uint16(bucketIdx)
		s.slotGen[slot] = gen
	}
}

// evictBucket frees the slots still owned by bucketIdx.
func (s *solver) evictBucket(bucketIdx int) {
	hp := s.pilotHPs[s.pilots[bucketIdx]]
	gen := s.generation
	for _, e := range s.buckets[bucketIdx] {
		slot := pilotSlotFolded(foldSlotInput(e.k0, e.k1), hp, s.numSlots)
		if s.slotGen[slot] == gen && s.slotOwner[slot] == uint16(bucketIdx) {
			s.slotGen[slot] = 0
		}
	}
}

// buildRemap maps every occupied overflow slot in [numKeys, numSlots) to a
// free hole in [0, numKeys). Unoccupied overflow entries stay 0; no member
// key reaches them.
func (s *solver) buildRemap() []uint16 {
	numKeys := uint32(s.numKeys)
	remap := make([]uint16, s.numSlots-numKeys)
	gen := s.generation

	hole := uint32(0)
	for overflow := numKeys; overflow < s.numSlots; overflow++ {
		if s.slotGen[overflow] != gen {
			continue
		}
		for s.slotGen[hole] == gen {
			hole++
			if hole >= numKeys {
				panic("ptrhash buildRemap: out of holes in valid range")
			}
		}
		remap[overflow-numKeys] = uint16(hole)
		hole++
	}
	return remap
}
