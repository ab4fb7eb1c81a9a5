// Package bitvec provides the fixed-width bit vector that carries frames
// between processing stages.
package bitvec

import (
	"fmt"
	"math/bits"
	"strings"
)

// MaxSize is the widest vector a frame can carry.
const MaxSize = 64

// BV is a bit vector of at most MaxSize bits. Bit 0 is the least significant.
// The zero value is an empty vector.
type BV struct {
	val  uint64
	size int
}

func mask(size int) uint64 {
	if size >= MaxSize {
		return ^uint64(0)
	}
	return (uint64(1) << uint(size)) - 1
}

func checkSize(size int) {
	if size < 0 || size > MaxSize {
		panic(fmt.Sprintf("bitvec: size %d outside [0, %d]", size, MaxSize))
	}
}

// New creates a vector of the given size holding the low bits of val.
func New(val uint64, size int) BV {
	checkSize(size)
	return BV{val: val & mask(size), size: size}
}

// Ones creates a vector of the given size with every bit set.
func Ones(size int) BV {
	return New(^uint64(0), size)
}

// FromInt creates a vector from an integer. Signed vectors use offset
// encoding: value v is stored as v + 2^(size-1).
func FromInt(v int, size int, twos bool) BV {
	checkSize(size)
	if size == 0 {
		return BV{}
	}
	if twos {
		offset := int64(1) << uint(size-1)
		if int64(v) < -offset || int64(v) >= offset {
			panic(fmt.Sprintf("bitvec: signed value %d does not fit %d bits", v, size))
		}
		return New(uint64(int64(v)+offset), size)
	}
	if v < 0 || (size < MaxSize && uint64(v) > mask(size)) {
		panic(fmt.Sprintf("bitvec: unsigned value %d does not fit %d bits", v, size))
	}
	return New(uint64(v), size)
}

// Size returns the number of bits.
func (b BV) Size() int { return b.size }

// Uint64 returns the raw bits.
func (b BV) Uint64() uint64 { return b.val }

// Int interprets the vector as an integer, decoding the offset for signed
// vectors.
func (b BV) Int(twos bool) int {
	if twos && b.size > 0 {
		return int(int64(b.val) - int64(1)<<uint(b.size-1))
	}
	return int(b.val)
}

// Test reports whether bit i is set.
func (b BV) Test(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	return b.val&(uint64(1)<<uint(i)) != 0
}

// Set sets bit i.
func (b *BV) Set(i int) {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("bitvec: bit %d outside vector of size %d", i, b.size))
	}
	b.val |= uint64(1) << uint(i)
}

// Reset clears bit i.
func (b *BV) Reset(i int) {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("bitvec: bit %d outside vector of size %d", i, b.size))
	}
	b.val &^= uint64(1) << uint(i)
}

// Count returns the number of set bits.
func (b BV) Count() int { return bits.OnesCount64(b.val) }

// CountRange returns the number of bits in [begin, end) equal to v.
func (b BV) CountRange(begin, end int, v bool) int {
	n := 0
	for i := begin; i < end && i < b.size; i++ {
		if b.Test(i) == v {
			n++
		}
	}
	return n
}

// PLEncode returns the position of the least significant bit equal to v,
// or Size() when there is none.
func (b BV) PLEncode(v bool) int {
	for i := 0; i < b.size; i++ {
		if b.Test(i) == v {
			return i
		}
	}
	return b.size
}

// PMEncode returns the position of the most significant bit equal to v,
// or Size() when there is none.
func (b BV) PMEncode(v bool) int {
	for i := b.size - 1; i >= 0; i-- {
		if b.Test(i) == v {
			return i
		}
	}
	return b.size
}

// Attach appends a field of the given width below the current bits, so the
// first attached field ends up most significant.
func (b *BV) Attach(field BV) {
	checkSize(b.size + field.size)
	if field.size == MaxSize {
		b.val = field.val
	} else {
		b.val = b.val<<uint(field.size) | field.val
	}
	b.size += field.size
}

// Pop removes the n least significant bits and returns them as a vector.
func (b *BV) Pop(n int) BV {
	if n > b.size {
		panic(fmt.Sprintf("bitvec: cannot pop %d bits from vector of size %d", n, b.size))
	}
	out := New(b.val, n)
	if n == MaxSize {
		b.val = 0
	} else {
		b.val >>= uint(n)
	}
	b.size -= n
	return out
}

// Slice returns the bits [lo, hi) as a new vector.
func (b BV) Slice(lo, hi int) BV {
	if lo < 0 || hi > b.size || lo > hi {
		panic(fmt.Sprintf("bitvec: slice [%d, %d) of vector of size %d", lo, hi, b.size))
	}
	return New(b.val>>uint(lo), hi-lo)
}

// Low returns the n least significant bits.
func (b BV) Low(n int) BV {
	return b.Slice(0, n)
}

// Resize returns the vector widened or narrowed to size bits.
func (b BV) Resize(size int) BV {
	return New(b.val, size)
}

// Equal reports whether both vectors have the same size and bits.
func (b BV) Equal(o BV) bool {
	return b.size == o.size && b.val == o.val
}

// Hex formats the bits as zero padded hexadecimal of the given digit count.
func (b BV) Hex(digits int) string {
	return fmt.Sprintf("%0*x", digits, b.val)
}

// String formats the vector as a binary string, most significant bit first.
func (b BV) String() string {
	var sb strings.Builder
	sb.Grow(b.size)
	for i := b.size - 1; i >= 0; i-- {
		if b.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
