package phmap

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring a map.
type Option func(*config)

type config struct {
	seed         uint64
	workers      int
	algorithm    Algorithm
	indexBuilder IndexBuilder // overrides algorithm when set
	maxRetries   int
	logger       *zap.Logger
}

func defaultConfig() *config {
	return &config{
		seed:       0x1234567890abcdef, // Arbitrary default; overridden via WithSeed
		workers:    1,
		algorithm:  AlgoPTRHash,
		maxRetries: 8,
		logger:     zap.NewNop(),
	}
}

// WithSeed sets the seed used for key hashing and index construction.
// Maps built with the same seed over the same keys lay out identically.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithWorkers sets the number of goroutines used to solve index blocks
// during a rebuild. Values below 1 mean a single worker.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = max(n, 1)
	}
}

// WithAlgorithm selects the index function construction.
// Default is AlgoPTRHash.
func WithAlgorithm(algo Algorithm) Option {
	return func(c *config) {
		c.algorithm = algo
	}
}

// WithIndexBuilder installs a custom index function builder. It takes
// precedence over WithAlgorithm.
func WithIndexBuilder(b IndexBuilder) Option {
	return func(c *config) {
		c.indexBuilder = b
	}
}

// WithMaxRetries sets how many times a failed index build is retried with a
// derived seed before Extend gives up.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = max(n, 0)
	}
}

// WithLogger sets the logger for rebuild diagnostics. A nil logger
// disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l == nil {
			l = zap.NewNop()
		}
		c.logger = l
	}
}
