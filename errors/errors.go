// Package errors defines all exported error sentinels for the phmap library.
//
// Both the top-level phmap package and the internal index packages import
// from here, so errors.Is checks work across package boundaries.
package errors

import "errors"

// Build errors
var (
	ErrDuplicateKey   = errors.New("phmap: duplicate key detected")
	ErrTooManyKeys    = errors.New("phmap: key count exceeds maximum (2^32-1)")
	ErrKeyTooShort    = errors.New("phmap: key is shorter than the distinguishing range")
	ErrRangeMismatch  = errors.New("phmap: distinguishing range differs from the established range")
	ErrIndexCollision = errors.New("phmap: index function mapped two keys to one slot")
	ErrUnstableHash   = errors.New("phmap: keyer returned a different hash for a held key")
)

// Index construction errors
var (
	ErrIndistinguishableHashes = errors.New("phmap: indistinguishable hashes in bucket - retry with different seed")
	ErrBlockOverflow           = errors.New("phmap: block overflow")
	ErrUnknownAlgorithm        = errors.New("phmap: unknown index algorithm")
)

// Fixture errors
var (
	ErrInvalidMagic   = errors.New("phmap: invalid fixture magic number")
	ErrInvalidVersion = errors.New("phmap: unsupported fixture version")
	ErrTruncatedFile  = errors.New("phmap: fixture file is truncated")
	ErrChecksumFailed = errors.New("phmap: fixture checksum verification failed")
)
