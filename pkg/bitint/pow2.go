/*
Package bitint provides integer helpers used when sizing and indexing
analysis frames. Everything here is allocation free and O(1), so it is
safe to call from the capture callback and the analysis tick alike.

Usage:

	// Suggest a transform size for a non power-of-two buffer
	size := bitint.NextPowerOfTwo(5000) // Returns 8192

	// Keep a spectrum index inside [0, n)
	k := bitint.ClampIndex(bin-3, len(spectrum))

----------------------------------------------------------------------

What NextPowerOfTwo does:

	For powers of 2 it returns the same value, otherwise the next
	higher power of 2. The subtraction (size-1) is what keeps an
	exact power of 2 from being doubled:

	- input 8: size-1 = 7 (0111), bits.Len64(7) = 3, 1 << 3 = 8
	- without it: bits.Len64(8) = 4, 1 << 4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return int(1 << bits.Len64(uint64(size-1)))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// IsEven reports whether n is divisible by two.
func IsEven(n int) bool {
	return n&1 == 0
}

// ClampIndex limits i to the valid index range of a slice of length n.
// For n <= 0 it returns 0.
func ClampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
