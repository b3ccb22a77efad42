package ptrhash

// bucketHeap is a max-heap of evicted buckets ordered by size, so the
// largest displaced bucket is re-placed first.
type bucketHeap struct {
	indices []uint16
	sizes   []uint16
}

func newBucketHeap(capacity int) *bucketHeap {
	return &bucketHeap{
		indices: make([]uint16, 0, capacity),
		sizes:   make([]uint16, 0, capacity),
	}
}

func (h *bucketHeap) clear() {
	h.indices = h.indices[:0]
	h.sizes = h.sizes[:0]
}

func (h *bucketHeap) len() int {
	return len(h.indices)
}

func (h *bucketHeap) push(idx int, size int) {
	h.indices = append(h.indices, uint16(idx))
	h.sizes = append(h.sizes, uint16(size))
	h.up(len(h.indices) - 1)
}

// pop removes and returns the largest bucket (index, size).
func (h *bucketHeap) pop() (int, int) {
	n := len(h.indices) - 1
	h.swap(0, n)
	h.down(0, n)
	idx, size := h.indices[n], h.sizes[n]
	h.indices = h.indices[:n]
	h.sizes = h.sizes[:n]
	return int(idx), int(size)
}

func (h *bucketHeap) swap(i, j int) {
	h.indices[i], h.indices[j] = h.indices[j], h.indices[i]
	h.sizes[i], h.sizes[j] = h.sizes[j], h.sizes[i]
}

// less orders by size descending, then by index for a deterministic pop order.
func (h *bucketHeap) less(i, j int) bool {
	if h.sizes[i] != h.sizes[j] {
		return h.sizes[i] > h.sizes[j]
	}
	return h.indices[i] < h.indices[j]
}

func (h *bucketHeap) up(j int) {
	for j > 0 {
		parent := (j - 1) / 2
		if !h.less(j, parent) {
			return
		}
		h.swap(parent, j)
		j = parent
	}
}

func (h *bucketHeap) down(i, n int) {
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		j := left
		if right := left + 1; right < n && h.less(right, left) {
			j = right
		}
		if !h.less(j, i) {
			return
		}
		h.swap(i, j)
		i = j
	}
}

// orderBucketsBySize fills order with bucket indices, largest bucket first,
// using a counting sort over bucket sizes. counts must have room for
// maxBucketSize+1 entries.
func orderBucketsBySize(buckets [][]bucketEntry, order []uint16, counts []int) {
	maxSize := 0
	for _, b := range buckets {
		maxSize = max(maxSize, len(b))
	}

	clear(counts[:maxSize+1])
	for _, b := range buckets {
		counts[len(b)]++
	}

	// Convert counts to start positions, largest size first.
	pos := 0
	for size := maxSize; size >= 0; size-- {
		c := counts[size]
		counts[size] = pos
		pos += c
	}

	for i, b := range buckets {
		order[counts[len(b)]] = uint16(i)
		counts[len(b)]++
	}
}
