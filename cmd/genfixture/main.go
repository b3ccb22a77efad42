// Genfixture writes a deterministic key-value fixture file.
//
// Usage:
//
//	go run ./cmd/genfixture -n 2048 -seed 1 -out fixture.phfx
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tamirms/phmap/internal/fixture"
)

func main() {
	n := flag.Int("n", fixture.DefaultCount, "number of pairs")
	seed := flag.Uint64("seed", 1, "generator seed")
	out := flag.String("out", "fixture.phfx", "output path")
	verify := flag.Bool("verify", true, "read the file back and compare")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, *n, *seed, *out, *verify); err != nil {
		log.Error("genfixture failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.Logger, n int, seed uint64, out string, verify bool) error {
	if n < 0 {
		return fmt.Errorf("-n must not be negative, got %d", n)
	}

	start := time.Now()
	entries := fixture.Generate(n, seed)
	if err := fixture.WriteFile(out, entries); err != nil {
		return err
	}
	log.Info("wrote fixture",
		zap.String("path", out),
		zap.Int("pairs", len(entries)),
		zap.Uint64("seed", seed),
		zap.Duration("elapsed", time.Since(start)))

	if !verify {
		return nil
	}
	got, err := fixture.ReadFile(out)
	if err != nil {
		return err
	}
	if len(got) != len(entries) {
		return fmt.Errorf("read back %d pairs, wrote %d", len(got), len(entries))
	}
	for i := range got {
		if got[i] != entries[i] {
			return fmt.Errorf("pair %d differs: read %q, wrote %q", i, got[i].Key, entries[i].Key)
		}
	}
	log.Info("verified fixture", zap.String("path", out))
	return nil
}
