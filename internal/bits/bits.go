// Package bits provides the integer range helpers shared by the index
// builders.
package bits

import "math/bits"

// FastRange32 maps a 64-bit hash onto [0, n) by taking the high word of
// hash*n. n == 0 yields 0.
func FastRange32(hash uint64, n uint32) uint32 {
	if n == 0 {
		return 0
	}
	hi, _ := bits.Mul64(hash, uint64(n))
	return uint32(hi)
}

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
