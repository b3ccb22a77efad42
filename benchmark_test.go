package phmap

import (
	"fmt"
	"runtime"
	"testing"
)

func benchmarkExtendN(b *testing.B, n int, opts ...Option) {
	rng := newTestRNG(b)
	keys := generateRandomKeys(rng, n, 24)

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		m, err := New[string, string, int](StringKeyer{}, opts...)
		if err != nil {
			b.Fatal(err)
		}
		if err := m.Extend(pairs(keys, identity)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExtend1K(b *testing.B)   { benchmarkExtendN(b, 1000) }
func BenchmarkExtend10K(b *testing.B)  { benchmarkExtendN(b, 10000) }
func BenchmarkExtend100K(b *testing.B) { benchmarkExtendN(b, 100000) }

func BenchmarkExtendParallel1M(b *testing.B) {
	benchmarkExtendN(b, 1_000_000, WithWorkers(runtime.NumCPU()))
}

func BenchmarkExtendSorted100K(b *testing.B) {
	benchmarkExtendN(b, 100000, WithAlgorithm(AlgoSorted))
}

// BenchmarkInsertIncremental measures growing a map one batch at a time,
// each batch rebuilding over everything held.
func BenchmarkInsertIncremental(b *testing.B) {
	const n, batch = 10000, 1000
	rng := newTestRNG(b)
	keys := generateRandomKeys(rng, n, 24)

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		m, err := New[string, string, int](StringKeyer{})
		if err != nil {
			b.Fatal(err)
		}
		for start := 0; start < n; start += batch {
			if err := m.Extend(pairs(keys[start:start+batch], identity)); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func benchmarkGetN(b *testing.B, n int, keyer Keyer[string, string], opts ...Option) {
	rng := newTestRNG(b)
	keys := generateRandomKeys(rng, n, 24)
	m, err := New[string, string, int](keyer, opts...)
	if err != nil {
		b.Fatal(err)
	}
	if err := m.Extend(pairs(keys, identity)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := range b.N {
		_, _ = m.Get(keys[i%n])
	}
}

func BenchmarkGet(b *testing.B) {
	keyers := []struct {
		name  string
		keyer Keyer[string, string]
	}{
		{"xxh3", StringKeyer{}},
		{"murmur3", Murmur3Keyer{}},
	}
	for _, k := range keyers {
		for _, n := range []int{1000, 100000} {
			b.Run(fmt.Sprintf("%s/n=%d", k.name, n), func(b *testing.B) {
				benchmarkGetN(b, n, k.keyer)
			})
		}
	}
	b.Run("sorted/n=100000", func(b *testing.B) {
		benchmarkGetN(b, 100000, StringKeyer{}, WithAlgorithm(AlgoSorted))
	})
}

func BenchmarkGetUnchecked100K(b *testing.B) {
	const n = 100000
	rng := newTestRNG(b)
	keys := generateRandomKeys(rng, n, 24)
	m, err := New[string, string, int](StringKeyer{})
	if err != nil {
		b.Fatal(err)
	}
	if err := m.Extend(pairs(keys, identity)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := range b.N {
		_ = m.GetUnchecked(keys[i%n])
	}
}

func BenchmarkStrMapGet100K(b *testing.B) {
	const n = 100000
	keys := numberedKeys("bench-key-", n)
	m, err := NewStrMap[int]()
	if err != nil {
		b.Fatal(err)
	}
	if err := m.Extend(pairs(keys, identity)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := range b.N {
		_, _ = m.Get(keys[i%n])
	}
}

// BenchmarkGoMapGet100K is the built-in map baseline for BenchmarkGet.
func BenchmarkGoMapGet100K(b *testing.B) {
	const n = 100000
	rng := newTestRNG(b)
	keys := generateRandomKeys(rng, n, 24)
	m := make(map[string]int, n)
	for i, k := range keys {
		m[k] = i
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := range b.N {
		_ = m[keys[i%n]]
	}
}

func BenchmarkFindRange(b *testing.B) {
	keys := numberedKeys("bench-key-", 100000)

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		if _, err := FindRange(keys); err != nil {
			b.Fatal(err)
		}
	}
}
