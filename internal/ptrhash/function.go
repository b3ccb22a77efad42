package ptrhash

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	phmaperrors "github.com/tamirms/phmap/errors"
	intbits "github.com/tamirms/phmap/internal/bits"
)

// Function is a minimal perfect hash function over a fixed set of 64-bit
// hashes. Every member hash maps to a distinct slot in [0, NumSlots()).
// Non-member hashes map to some slot in the same range.
//
// A Function is immutable once built and safe for concurrent use.
type Function struct {
	seed            uint64
	numKeys         int
	numBlocks       uint32
	bucketsPerBlock int

	keysBefore []uint32 // numBlocks+1 cumulative key counts
	pilots     []uint8  // numBlocks*bucketsPerBlock
	remapStart []uint32 // numBlocks+1 offsets into remap
	remap      []uint16
}

// blockInput is the routed, bucketed content of one block.
type blockInput struct {
	entries []bucketEntry
	buckets [][]bucketEntry
}

// Build constructs a Function over hashes. hashes must be distinct: two
// equal hashes can never be separated and yield ErrDuplicateKey. workers > 1
// solves blocks concurrently; the result does not depend on workers.
func Build(hashes []uint64, seed uint64, workers int) (*Function, error) {
	n := len(hashes)
	if uint64(n) > MaxKeys {
		return nil, fmt.Errorf("%w: %d keys", phmaperrors.ErrTooManyKeys, n)
	}

	numBlocks, bucketsPerBlock := geometry(n)
	f := &Function{
		seed:            seed,
		numKeys:         n,
		numBlocks:       numBlocks,
		bucketsPerBlock: bucketsPerBlock,
		keysBefore:      make([]uint32, numBlocks+1),
		pilots:          make([]uint8, int(numBlocks)*bucketsPerBlock),
		remapStart:      make([]uint32, numBlocks+1),
	}
	if n == 0 {
		return f, nil
	}

	blocks, err := f.route(hashes)
	if err != nil {
		return nil, err
	}

	remaps := make([][]uint16, numBlocks)
	workers = max(1, min(workers, int(numBlocks)))

	if workers == 1 {
		s := newSolver(bucketsPerBlock, targetKeysPerBlock)
		for b := range blocks {
			if remaps[b], err = f.solveBlock(s, uint32(b), blocks[b]); err != nil {
				return nil, err
			}
		}
	} else {
		g, ctx := errgroup.WithContext(context.Background())
		for w := range workers {
			g.Go(func() error {
				s := newSolver(bucketsPerBlock, targetKeysPerBlock)
				for b := w; b < len(blocks); b += workers {
					if err := ctx.Err(); err != nil {
						return err
					}
					remap, err := f.solveBlock(s, uint32(b), blocks[b])
					if err != nil {
						return err
					}
					remaps[b] = remap
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	total := 0
	for b, r := range remaps {
		f.remapStart[b] = uint32(total)
		total += len(r)
	}
	f.remapStart[numBlocks] = uint32(total)
	f.remap = make([]uint16, 0, total)
	for _, r := range remaps {
		f.remap = append(f.remap, r...)
	}
	return f, nil
}

// route splits every hash into its solver inputs and groups them by block
// and then by bucket.
func (f *Function) route(hashes []uint64) ([]blockInput, error) {
	blockOf := make([]uint32, len(hashes))
	counts := make([]int, f.numBlocks)
	for i, h := range hashes {
		k0, _ := splitHash(h, f.seed)
		b := intbits.FastRange32(k0, f.numBlocks)
		blockOf[i] = b
		counts[b]++
	}

	for b, c := range counts {
		if c > maxKeysPerBlock {
			return nil, fmt.Errorf("%w: block %d has %d keys, limit %d",
				phmaperrors.ErrBlockOverflow, b, c, maxKeysPerBlock)
		}
		f.keysBefore[b+1] = f.keysBefore[b] + uint32(c)
	}

	// Scatter into one shared array, block-contiguous.
	all := make([]bucketEntry, len(hashes))
	next := make([]uint32, f.numBlocks)
	copy(next, f.keysBefore[:f.numBlocks])
	for i, h := range hashes {
		k0, k1 := splitHash(h, f.seed)
		b := blockOf[i]
		all[next[b]] = bucketEntry{k0: k0, k1: k1}
		next[b]++
	}

	blocks := make([]blockInput, f.numBlocks)
	bucketCounts := make([]int, f.bucketsPerBlock)
	numBuckets := uint32(f.bucketsPerBlock)
	for b := range blocks {
		entries := all[f.keysBefore[b]:f.keysBefore[b+1]]
		sorted := make([]bucketEntry, len(entries))

		clear(bucketCounts)
		for _, e := range entries {
			bucketCounts[cubicEpsBucket(e.k1, numBuckets)]++
		}
		buckets := make([][]bucketEntry, f.bucketsPerBlock)
		pos := 0
		for i, c := range bucketCounts {
			buckets[i] = sorted[pos : pos : pos+c]
			pos += c
		}
		for _, e := range entries {
			i := cubicEpsBucket(e.k1, numBuckets)
			buckets[i] = append(buckets[i], e)
		}
		blocks[b] = blockInput{entries: sorted, buckets: buckets}
	}
	return blocks, nil
}

// solveBlock assigns pilots for block b. An eviction-limit failure is
// retried with a new phase-2 stream; the stream is derived from the seed,
// the block index and the attempt so the outcome is reproducible.
func (f *Function) solveBlock(s *solver, b uint32, in blockInput) ([]uint16, error) {
	numKeys := len(in.entries)
	pilots := f.pilots[int(b)*f.bucketsPerBlock : int(b+1)*f.bucketsPerBlock]

	for attempt := range uint64(maxBlockRetries) {
		s.reset(in.buckets, numKeys, f.seed, pilots)
		rng := rand.New(rand.NewPCG(f.seed^attempt, uint64(b)))
		remap, err := s.solve(rng)
		if err == nil {
			return remap, nil
		}
		if !errors.Is(err, errEvictionLimitExceeded) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: block %d did not converge after %d attempts",
		phmaperrors.ErrIndistinguishableHashes, b, maxBlockRetries)
}

// Slot returns the slot of hash. ok is false only when the function has no
// slot to offer: it was built over zero keys, or hash routes to an empty
// block. Member hashes always get ok == true.
func (f *Function) Slot(hash uint64) (slot int, ok bool) {
	if f.numKeys == 0 {
		return 0, false
	}
	k0, k1 := splitHash(hash, f.seed)
	b := intbits.FastRange32(k0, f.numBlocks)

	base := f.keysBefore[b]
	blockKeys := f.keysBefore[b+1] - base
	if blockKeys == 0 {
		return 0, false
	}

	bucket := cubicEpsBucket(k1, uint32(f.bucketsPerBlock))
	pilot := f.pilots[int(b)*f.bucketsPerBlock+int(bucket)]
	local := pilotSlotFolded(foldSlotInput(k0, k1), pilotHash(pilot, f.seed), computeNumSlots(int(blockKeys)))
	local = remapSlot(f.remap[f.remapStart[b]:f.remapStart[b+1]], local, blockKeys)
	return int(base + local), true
}

// NumSlots returns the size of the slot range, which equals the number of
// keys the function was built over.
func (f *Function) NumSlots() int {
	return f.numKeys
}

// Seed returns the seed the function was built with.
func (f *Function) Seed() uint64 {
	return f.seed
}

// SizeBytes reports the memory held by the function's tables.
func (f *Function) SizeBytes() int {
	return 4*len(f.keysBefore) + len(f.pilots) + 4*len(f.remapStart) + 2*len(f.remap)
}
