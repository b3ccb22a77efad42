package ptrhash

import (
	"errors"
	"fmt"
	"testing"

	phmaperrors "github.com/tamirms/phmap/errors"
)

func randomHashes(t *testing.T, n int) []uint64 {
	t.Helper()
	rng := newTestRNG(t)
	seen := make(map[uint64]struct{}, n)
	hashes := make([]uint64, 0, n)
	for len(hashes) < n {
		h := rng.Uint64()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}

// checkMinimalPerfect verifies every hash gets a distinct slot in [0, n).
func checkMinimalPerfect(t *testing.T, f *Function, hashes []uint64) {
	t.Helper()
	if f.NumSlots() != len(hashes) {
		t.Fatalf("NumSlots = %d, want %d", f.NumSlots(), len(hashes))
	}
	seen := make([]bool, len(hashes))
	for i, h := range hashes {
		slot, ok := f.Slot(h)
		if !ok {
			t.Fatalf("hash %d: Slot reported no slot", i)
		}
		if slot < 0 || slot >= len(hashes) {
			t.Fatalf("hash %d: slot %d out of range [0, %d)", i, slot, len(hashes))
		}
		if seen[slot] {
			t.Fatalf("hash %d: slot %d already taken", i, slot)
		}
		seen[slot] = true
	}
}

func TestBuildMinimalPerfect(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 100, 1000, 16384, 16385, 50000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			hashes := randomHashes(t, n)
			f, err := Build(hashes, testGlobalSeed, 1)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			checkMinimalPerfect(t, f, hashes)
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	f, err := Build(nil, testGlobalSeed, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if f.NumSlots() != 0 {
		t.Fatalf("NumSlots = %d, want 0", f.NumSlots())
	}
	if _, ok := f.Slot(12345); ok {
		t.Fatal("empty function returned a slot")
	}
}

// TestBuildParallelMatchesSerial expects the same tables regardless of the
// worker count.
func TestBuildParallelMatchesSerial(t *testing.T) {
	hashes := randomHashes(t, 100000)

	serial, err := Build(hashes, testGlobalSeed, 1)
	if err != nil {
		t.Fatalf("serial Build: %v", err)
	}
	for _, workers := range []int{2, 3, 8, 64} {
		parallel, err := Build(hashes, testGlobalSeed, workers)
		if err != nil {
			t.Fatalf("Build(workers=%d): %v", workers, err)
		}
		for i, h := range hashes {
			s1, _ := serial.Slot(h)
			s2, _ := parallel.Slot(h)
			if s1 != s2 {
				t.Fatalf("workers=%d: hash %d slot %d, serial slot %d", workers, i, s2, s1)
			}
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	hashes := randomHashes(t, 5000)
	a, err := Build(hashes, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(hashes, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hashes {
		sa, _ := a.Slot(h)
		sb, _ := b.Slot(h)
		if sa != sb {
			t.Fatalf("slot of 0x%X differs between identical builds: %d vs %d", h, sa, sb)
		}
	}
}

// TestBuildSeedChangesLayout checks a different seed gives a different but
// still valid assignment.
func TestBuildSeedChangesLayout(t *testing.T) {
	hashes := randomHashes(t, 2000)
	a, err := Build(hashes, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(hashes, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	checkMinimalPerfect(t, a, hashes)
	checkMinimalPerfect(t, b, hashes)

	differ := 0
	for _, h := range hashes {
		sa, _ := a.Slot(h)
		sb, _ := b.Slot(h)
		if sa != sb {
			differ++
		}
	}
	if differ == 0 {
		t.Fatal("seed had no effect on slot assignment")
	}
	if a.Seed() != 1 || b.Seed() != 2 {
		t.Fatalf("Seed() = %d, %d; want 1, 2", a.Seed(), b.Seed())
	}
}

func TestBuildDuplicateHash(t *testing.T) {
	hashes := randomHashes(t, 500)
	hashes = append(hashes, hashes[123])

	_, err := Build(hashes, testGlobalSeed, 1)
	if !errors.Is(err, phmaperrors.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

// TestSlotNonMember checks unknown hashes still land inside the slot range.
func TestSlotNonMember(t *testing.T) {
	hashes := randomHashes(t, 3000)
	f, err := Build(hashes[:1000], testGlobalSeed, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hashes[1000:] {
		if slot, ok := f.Slot(h); ok && (slot < 0 || slot >= 1000) {
			t.Fatalf("non-member slot %d out of range", slot)
		}
	}
}

func TestSizeBytes(t *testing.T) {
	hashes := randomHashes(t, 10000)
	f, err := Build(hashes, testGlobalSeed, 1)
	if err != nil {
		t.Fatal(err)
	}
	bitsPerKey := float64(f.SizeBytes()*8) / float64(len(hashes))
	if bitsPerKey > 8 {
		t.Fatalf("index uses %.2f bits/key, expected well under 8", bitsPerKey)
	}
}
