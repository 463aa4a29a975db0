// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitmap provides a fixed-size bitmap.
package bitmap

import (
	"fmt"
	"math/bits"
)

// Bitmap is a fixed-size set of small integers.
type Bitmap struct {
	// numOnes is the number of ones in the bitmap.
	numOnes uint32

	// size is the number of bits.
	size uint32

	// bitBlock holds the bits, 64 entries per word.
	bitBlock []uint64
}

// New creates an empty Bitmap holding size bits.
func New(size uint32) Bitmap {
	return Bitmap{
		size:     size,
		bitBlock: make([]uint64, (size+63)/64),
	}
}

// Size returns the number of bits in the bitmap.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint32 {
	return b.numOnes
}

func (b *Bitmap) check(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range [0, %d)", i, b.size))
	}
}

// Has returns true iff bit i is set.
func (b *Bitmap) Has(i uint32) bool {
	b.check(i)
	return b.bitBlock[i/64]&(1<<(i%64)) != 0
}

// Add sets bit i and reports whether it was previously clear.
func (b *Bitmap) Add(i uint32) bool {
	b.check(i)
	mask := uint64(1) << (i % 64)
	if b.bitBlock[i/64]&mask != 0 {
		return false
	}
	b.bitBlock[i/64] |= mask
	b.numOnes++
	return true
}

// Remove clears bit i and reports whether it was previously set.
func (b *Bitmap) Remove(i uint32) bool {
	b.check(i)
	mask := uint64(1) << (i % 64)
	if b.bitBlock[i/64]&mask == 0 {
		return false
	}
	b.bitBlock[i/64] &^= mask
	b.numOnes--
	return true
}

// ForEach calls fn for every set bit in ascending order.
func (b *Bitmap) ForEach(fn func(i uint32)) {
	for blk, w := range b.bitBlock {
		for w != 0 {
			r := bits.TrailingZeros64(w)
			fn(uint32(blk*64 + r))
			w &= w - 1
		}
	}
}
