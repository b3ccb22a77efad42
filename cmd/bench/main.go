// Bench is a benchmarking tool for measuring phmap build time, lookup
// latency and memory use against the built-in map.
//
// Usage:
//
//	go run ./cmd/bench -keys 1000000 -workers 4 -algo ptrhash -hash xxh3
//
// Flags:
//
//	-keys      Number of keys (default: 1,000,000)
//	-workers   Number of parallel workers for index construction (default: 1)
//	-algo      Index algorithm: ptrhash or sorted (default: ptrhash)
//	-hash      Key hash for the generic map: xxh3 or murmur3 (default: xxh3)
//	-seed      Seed for key generation (default: 1)
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zeebo/mwc"
	"go.uber.org/zap"

	"github.com/tamirms/phmap"
)

// getMaxRSS returns the maximum resident set size in bytes.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// peakSampler tracks peak heap and RSS every 10ms. It reads runtime/metrics
// rather than ReadMemStats to avoid stop-the-world pauses.
type peakSampler struct {
	baseHeap uint64
	baseRSS  uint64
	heap     atomic.Uint64
	rss      atomic.Uint64
	done     chan struct{}
}

func startSampler() *peakSampler {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	p := &peakSampler{baseHeap: ms.Alloc, baseRSS: getMaxRSS(), done: make(chan struct{})}
	p.heap.Store(p.baseHeap)
	p.rss.Store(p.baseRSS)
	go func() {
		samples := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				storeMax(&p.heap, samples[0].Value.Uint64())
				storeMax(&p.rss, getMaxRSS())
			}
		}
	}()
	return p
}

func storeMax(v *atomic.Uint64, x uint64) {
	for {
		old := v.Load()
		if x <= old || v.CompareAndSwap(old, x) {
			return
		}
	}
}

// stop ends sampling and returns peak heap and RSS growth over the baseline.
func (p *peakSampler) stop() (heap, rss uint64) {
	close(p.done)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	storeMax(&p.heap, ms.Alloc)
	storeMax(&p.rss, getMaxRSS())
	return p.heap.Load() - p.baseHeap, p.rss.Load() - p.baseRSS
}

type result struct {
	name    string
	build   time.Duration
	latency float64 // ns per lookup
	heap    uint64
	rss     uint64
}

// measure runs build under the sampler, then times lookup over order.
func measure(name string, build func() error, lookup func(i int), order []int) (result, error) {
	sampler := startSampler()
	start := time.Now()
	err := build()
	elapsed := time.Since(start)
	heap, rss := sampler.stop()
	if err != nil {
		return result{}, fmt.Errorf("%s: %w", name, err)
	}

	for i := range min(10000, len(order)) {
		lookup(order[i])
	}
	const numQueries = 1_000_000
	queryStart := time.Now()
	for i := range numQueries {
		lookup(order[i%len(order)])
	}
	latency := float64(time.Since(queryStart).Nanoseconds()) / numQueries

	return result{name: name, build: elapsed, latency: latency, heap: heap, rss: rss}, nil
}

// generateKeys returns n fixed-length keys that share a prefix, so the
// string map has a range to trim.
func generateKeys(n int, seed uint64) []string {
	rng := mwc.New(seed, seed^0x9e3779b97f4a7c15)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench/key/%016x%016x", rng.Uint64(), rng.Uint64())
	}
	return keys
}

func run(log *zap.Logger) error {
	keysFlag := flag.Int("keys", 1_000_000, "number of keys")
	workersFlag := flag.Int("workers", 1, "number of parallel workers for index construction")
	algoFlag := flag.String("algo", "ptrhash", "index algorithm: ptrhash or sorted")
	hashFlag := flag.String("hash", "xxh3", "key hash for the generic map: xxh3 or murmur3")
	seedFlag := flag.Uint64("seed", 1, "seed for key generation")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (build phases only)")
	flag.Parse()

	algo, err := phmap.ParseAlgorithm(*algoFlag)
	if err != nil {
		return err
	}
	var keyer phmap.Keyer[string, string]
	switch *hashFlag {
	case "xxh3":
		keyer = phmap.StringKeyer{}
	case "murmur3":
		keyer = phmap.Murmur3Keyer{}
	default:
		return fmt.Errorf("unknown hash %q (use xxh3 or murmur3)", *hashFlag)
	}

	numKeys := *keysFlag
	if numKeys < 1 {
		return fmt.Errorf("-keys must be positive, got %d", numKeys)
	}
	log.Info("generating keys", zap.Int("keys", numKeys))
	keys := generateKeys(numKeys, *seedFlag)
	pairs := func(yield func(string, uint32) bool) {
		for i, k := range keys {
			if !yield(k, uint32(i)) {
				return
			}
		}
	}
	order := mwcPerm(numKeys, *seedFlag)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	opts := []phmap.Option{
		phmap.WithAlgorithm(algo),
		phmap.WithWorkers(*workersFlag),
		phmap.WithLogger(log.Named("phmap")),
	}
	var results []result

	log.Info("building string map")
	strMap, err := phmap.NewStrMap[uint32](opts...)
	if err != nil {
		return err
	}
	r, err := measure("StrMap", func() error { return strMap.Extend(pairs) },
		func(i int) { _, _ = strMap.Get(keys[i]) }, order)
	if err != nil {
		return err
	}
	results = append(results, r)
	log.Info("string map range", zap.Stringer("range", strMap.Range()))
	if err := strMap.Close(); err != nil {
		return err
	}

	log.Info("building generic map", zap.String("hash", *hashFlag))
	genMap, err := phmap.New[string, string, uint32](keyer, opts...)
	if err != nil {
		return err
	}
	r, err = measure("Map/"+*hashFlag, func() error { return genMap.Extend(pairs) },
		func(i int) { _, _ = genMap.Get(keys[i]) }, order)
	if err != nil {
		return err
	}
	results = append(results, r)
	if err := genMap.Close(); err != nil {
		return err
	}

	log.Info("building go map")
	var goMap map[string]uint32
	r, err = measure("map[string]", func() error {
		goMap = make(map[string]uint32, numKeys)
		for k, v := range pairs {
			goMap[k] = v
		}
		return nil
	}, func(i int) { _ = goMap[keys[i]] }, order)
	if err != nil {
		return err
	}
	results = append(results, r)

	fmt.Printf("\n")
	fmt.Printf("Keys: %d  Algo: %s  Workers: %d\n", numKeys, algo, *workersFlag)
	fmt.Printf("╔═════════════════╦══════════════╦══════════════╦══════════════╦══════════════╗\n")
	fmt.Printf("║ Structure       ║ Build (sec)  ║ Lookup (ns)  ║ Peak heap MB ║ Peak RSS MB  ║\n")
	fmt.Printf("╠═════════════════╬══════════════╬══════════════╬══════════════╬══════════════╣\n")
	for _, r := range results {
		fmt.Printf("║ %-15s ║ %12.3f ║ %12.1f ║ %12.1f ║ %12.1f ║\n",
			r.name, r.build.Seconds(), r.latency, float64(r.heap)/1_000_000, float64(r.rss)/1_000_000)
	}
	fmt.Printf("╚═════════════════╩══════════════╩══════════════╩══════════════╩══════════════╝\n")
	return nil
}

// mwcPerm returns a deterministic permutation of [0, n) so lookups do not
// follow insertion order.
func mwcPerm(n int, seed uint64) []int {
	rng := mwc.New(seed^0x5851f42d4c957f2d, seed)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(rng.Uint64() % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Error("bench failed", zap.Error(err))
		os.Exit(1)
	}
}
