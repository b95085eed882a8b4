package bsp

import (
	"math/bits"
	"sync/atomic"
)

// Bits is a bit set packed into 32-bit words. Leaf and surface visibility use
// it so whole batches of 32 can be tested and combined at once.
type Bits []uint32

// NewBits returns a zeroed set able to hold n bits.
func NewBits(n int) Bits {
	return make(Bits, (n+31)/32)
}

// Test reports whether bit i is set.
func (b Bits) Test(i int) bool {
	return b[i>>5]&(1<<(i&31)) != 0
}

// Set sets bit i.
func (b Bits) Set(i int) {
	b[i>>5] |= 1 << (i & 31)
}

// Clear clears bit i.
func (b Bits) Clear(i int) {
	b[i>>5] &^= 1 << (i & 31)
}

// OrAtomic sets bit i with an atomic OR, for sets written by several workers.
func (b Bits) OrAtomic(i int) {
	atomic.OrUint32(&b[i>>5], 1<<(i&31))
}

// Reset clears all bits.
func (b Bits) Reset() {
	clear(b)
}

// Fill sets every bit of every word.
func (b Bits) Fill() {
	for i := range b {
		b[i] = ^uint32(0)
	}
}

// MaskTail clears the bits at and above n in the last word.
func (b Bits) MaskTail(n int) {
	if n%32 != 0 && n/32 < len(b) {
		b[n/32] &= (1 << (n % 32)) - 1
	}
	for i := (n + 31) / 32; i < len(b); i++ {
		b[i] = 0
	}
}

// Count returns the number of set bits.
func (b Bits) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount32(w)
	}
	return n
}

// Equal reports whether both sets hold the same bits.
func (b Bits) Equal(o Bits) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// ForEach calls fn for every set bit in ascending order.
func (b Bits) ForEach(fn func(i int)) {
	for wi, w := range b {
		for w != 0 {
			j := bits.TrailingZeros32(w)
			w &^= 1 << j
			fn(wi*32 + j)
		}
	}
}

// Copy copies o into b.
func (b Bits) Copy(o Bits) {
	copy(b, o)
}

// setByte stores an 8-bit group of the little-endian bit stream.
func (b Bits) setByte(k int, v byte) {
	w := k >> 2
	if w >= len(b) {
		return
	}
	shift := uint(k&3) * 8
	b[w] = b[w]&^(0xff<<shift) | uint32(v)<<shift
}

// byteAt returns the k-th 8-bit group of the little-endian bit stream.
func (b Bits) byteAt(k int) byte {
	w := k >> 2
	if w >= len(b) {
		return 0
	}
	return byte(b[w] >> (uint(k&3) * 8))
}
