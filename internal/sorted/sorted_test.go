package sorted

import (
	"errors"
	"testing"

	phmaperrors "github.com/tamirms/phmap/errors"
)

func TestSlotIsRank(t *testing.T) {
	hashes := []uint64{50, 10, 40, 30, 20}
	f, err := Build(hashes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := map[uint64]int{10: 0, 20: 1, 30: 2, 40: 3, 50: 4}
	for h, rank := range want {
		slot, ok := f.Slot(h)
		if !ok || slot != rank {
			t.Errorf("Slot(%d) = (%d, %v), want (%d, true)", h, slot, ok, rank)
		}
	}
	if f.NumSlots() != len(hashes) {
		t.Errorf("NumSlots = %d, want %d", f.NumSlots(), len(hashes))
	}
	if hashes[0] != 50 {
		t.Error("Build reordered the caller's slice")
	}
}

func TestSlotNonMemberClamped(t *testing.T) {
	f, err := Build([]uint64{10, 20, 30})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		hash uint64
		want int
	}{
		{0, 0}, {15, 1}, {25, 2}, {1 << 63, 2},
	}
	for _, tt := range tests {
		if got, ok := f.Slot(tt.hash); !ok || got != tt.want {
			t.Errorf("Slot(%d) = (%d, %v), want (%d, true)", tt.hash, got, ok, tt.want)
		}
	}
}

func TestEmpty(t *testing.T) {
	f, err := Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Slot(1); ok {
		t.Fatal("empty function returned a slot")
	}
}

func TestDuplicate(t *testing.T) {
	_, err := Build([]uint64{3, 1, 3})
	if !errors.Is(err, phmaperrors.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}
