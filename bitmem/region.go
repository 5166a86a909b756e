// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bitmem provides bit-addressable views over byte buffers and the
// variable-length integer encodings used by bit-packed tables.
package bitmem

import (
	"encoding/binary"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// BitsPerByte is the number of bits in a byte.
const BitsPerByte = 8

// MaxLoadBits is the widest value LoadBits and StoreBits operate on.
const MaxLoadBits = 32

// Region is a bit-granular view of a byte slice. The bit at offset 0 is the
// least significant bit of the first byte covered by the region.
//
// A Region does not own its memory. Stores are performed one byte at a time
// and never touch bytes outside of the bits being written, so independent
// regions that share a byte slice (even a byte) may be written to without
// clobbering each other.
//
// Accesses are bounds checked only in invariant builds; callers are trusted
// to stay within [0, Size()).
type Region struct {
	data     []byte
	bitStart int
	bitSize  int
}

// MakeRegion returns a Region covering all bits of data.
func MakeRegion(data []byte) Region {
	return Region{data: data, bitSize: len(data) * BitsPerByte}
}

// MakeRegionBits returns a Region covering bitLength bits of data starting at
// bitOffset.
func MakeRegionBits(data []byte, bitOffset, bitLength int) Region {
	return MakeRegion(data).Subregion(bitOffset, bitLength)
}

// IsValid returns true if the region has backing memory.
func (r Region) IsValid() bool {
	return r.data != nil
}

// Size returns the size of the region in bits.
func (r Region) Size() int {
	return r.bitSize
}

// Subregion returns a zero-copy view of bitLength bits starting at bitOffset.
func (r Region) Subregion(bitOffset, bitLength int) Region {
	invariants.CheckRange(bitOffset, bitLength, r.bitSize)
	return Region{
		data:     r.data,
		bitStart: r.bitStart + bitOffset,
		bitSize:  bitLength,
	}
}

// LoadBit returns the bit at bitOffset.
func (r Region) LoadBit(bitOffset int) bool {
	invariants.CheckBounds(bitOffset, r.bitSize)
	pos := r.bitStart + bitOffset
	return r.data[pos/BitsPerByte]&(1<<uint(pos%BitsPerByte)) != 0
}

// StoreBit sets the bit at bitOffset to value. Only the byte containing the
// bit is read and written.
func (r Region) StoreBit(bitOffset int, value bool) {
	invariants.CheckBounds(bitOffset, r.bitSize)
	pos := r.bitStart + bitOffset
	index, shift := pos/BitsPerByte, uint(pos%BitsPerByte)
	r.data[index] &^= 1 << shift
	if value {
		r.data[index] |= 1 << shift
	}
}

// LoadBits returns bitLength (<= 32) bits starting at bitOffset. The least
// significant bit of the result is the bit stored at the smallest offset.
func (r Region) LoadBits(bitOffset, bitLength int) uint32 {
	if invariants.Enabled {
		if bitLength > MaxLoadBits {
			panic(errors.AssertionFailedf("cannot load %d bits", bitLength))
		}
		invariants.CheckRange(bitOffset, bitLength, r.bitSize)
	}
	if bitLength == 0 {
		return 0
	}
	pos := r.bitStart + bitOffset
	index, shift := pos/BitsPerByte, uint(pos%BitsPerByte)
	var word uint64
	if index+8 <= len(r.data) {
		// Fast path: one unaligned 64-bit load covers shift+32 bits.
		word = binary.LittleEndian.Uint64(r.data[index:])
	} else {
		n := (int(shift) + bitLength + BitsPerByte - 1) / BitsPerByte
		for i := 0; i < n; i++ {
			word |= uint64(r.data[index+i]) << (i * BitsPerByte)
		}
	}
	return uint32((word >> shift) & (uint64(1)<<uint(bitLength) - 1))
}

// StoreBits stores the low bitLength (<= 32) bits of value at bitOffset. The
// write is performed byte by byte; bits outside of the target range are
// preserved even when they share a byte with it.
func (r Region) StoreBits(bitOffset int, value uint32, bitLength int) {
	if invariants.Enabled {
		if bitLength > MaxLoadBits {
			panic(errors.AssertionFailedf("cannot store %d bits", bitLength))
		}
		invariants.CheckRange(bitOffset, bitLength, r.bitSize)
		if bitLength < MaxLoadBits && value>>uint(bitLength) != 0 {
			panic(errors.AssertionFailedf("value %d does not fit in %d bits", value, bitLength))
		}
	}
	if bitLength == 0 {
		return
	}
	pos := r.bitStart + bitOffset
	index, shift := pos/BitsPerByte, uint(pos%BitsPerByte)
	mask := (uint64(1)<<uint(bitLength) - 1) << shift
	v := (uint64(value) << shift) & mask
	n := (int(shift) + bitLength + BitsPerByte - 1) / BitsPerByte
	for i := 0; i < n; i++ {
		s := uint(i * BitsPerByte)
		r.data[index+i] = r.data[index+i]&^byte(mask>>s) | byte(v>>s)
	}
	if invariants.Enabled && r.LoadBits(bitOffset, bitLength) != value {
		panic(errors.AssertionFailedf("stored %d bits at %d but read back a different value", bitLength, bitOffset))
	}
}

// StoreRegion copies bitLength bits from the start of src to bitOffset.
func (r Region) StoreRegion(bitOffset int, src Region, bitLength int) {
	invariants.CheckRange(bitOffset, bitLength, r.bitSize)
	bit := 0
	for ; bit+MaxLoadBits <= bitLength; bit += MaxLoadBits {
		r.StoreBits(bitOffset+bit, src.LoadBits(bit, MaxLoadBits), MaxLoadBits)
	}
	n := bitLength - bit
	r.StoreBits(bitOffset+bit, src.LoadBits(bit, n), n)
}

// PopCount returns the number of set bits in [bitOffset, bitOffset+bitLength).
func (r Region) PopCount(bitOffset, bitLength int) int {
	invariants.CheckRange(bitOffset, bitLength, r.bitSize)
	count := 0
	bit := 0
	for ; bit+MaxLoadBits <= bitLength; bit += MaxLoadBits {
		count += bits.OnesCount32(r.LoadBits(bitOffset+bit, MaxLoadBits))
	}
	return count + bits.OnesCount32(r.LoadBits(bitOffset+bit, bitLength-bit))
}

// Equal returns true if both regions view the same bits of the same memory.
// It does not compare contents; see ContentEquals.
func (r Region) Equal(o Region) bool {
	return r.bitStart == o.bitStart && r.bitSize == o.bitSize &&
		len(r.data) == len(o.data) && (len(r.data) == 0 || &r.data[0] == &o.data[0])
}

// ContentEquals returns true if both regions have the same size and hold the
// same bits.
func (r Region) ContentEquals(o Region) bool {
	if r.bitSize != o.bitSize {
		return false
	}
	bit := 0
	for ; bit+MaxLoadBits <= r.bitSize; bit += MaxLoadBits {
		if r.LoadBits(bit, MaxLoadBits) != o.LoadBits(bit, MaxLoadBits) {
			return false
		}
	}
	return r.LoadBits(bit, r.bitSize-bit) == o.LoadBits(bit, r.bitSize-bit)
}

// String returns the bits of the region, most significant (highest offset)
// first.
func (r Region) String() string {
	b := make([]byte, r.bitSize)
	for i := range b {
		b[i] = '0'
		if r.LoadBit(r.bitSize - 1 - i) {
			b[i] = '1'
		}
	}
	return string(b)
}

// BitsToBytesRoundUp returns the number of bytes needed to hold n bits.
func BitsToBytesRoundUp(n int) int {
	return (n + BitsPerByte - 1) / BitsPerByte
}

// MinimumBitsToStore returns the number of bits needed to represent v.
func MinimumBitsToStore(v uint32) int {
	return bits.Len32(v)
}
