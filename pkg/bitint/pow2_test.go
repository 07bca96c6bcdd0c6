// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{1000, 1024}, // Large number
		{5000, 8192}, // Analysis frame suggestion
		{4096, 4096}, // Typical analysis frame
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := NextPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{8, true},       // Power of two
		{10, false},     // Not power of two
		{8000, false},   // Even but not a power of two
		{1 << 20, true}, // Large power of two
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func TestIsEven(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-3, false},
		{-2, true},
		{0, true},
		{63, false},
		{64, true},
		{8000, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			if got := IsEven(tt.n); got != tt.expected {
				t.Errorf("IsEven(%d) = %v, expected %v", tt.n, got, tt.expected)
			}
		})
	}
}

func TestClampIndex(t *testing.T) {
	tests := []struct {
		i, n     int
		expected int
	}{
		{-5, 10, 0}, // Below range
		{0, 10, 0},  // Lower edge
		{4, 10, 4},  // Inside
		{9, 10, 9},  // Upper edge
		{12, 10, 9}, // Above range
		{3, 0, 0},   // Empty slice
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d→%d", tt.i, tt.n, tt.expected), func(t *testing.T) {
			if got := ClampIndex(tt.i, tt.n); got != tt.expected {
				t.Errorf("ClampIndex(%d, %d) = %d, expected %d", tt.i, tt.n, got, tt.expected)
			}
		})
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}

func BenchmarkClampIndex(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		ClampIndex(i%3000-500, 2048)
		i++
	}
}
