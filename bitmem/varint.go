// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitmem

const (
	// VarintHeaderBits is the size of the varint header.
	VarintHeaderBits = 4
	// VarintSmallValue is the largest value stored directly in the header.
	VarintSmallValue = 11
)

// DecodeVarintBits reads a variable-length bit-packed integer at *bitOffset
// and advances *bitOffset past it. The four header bits determine the
// encoding:
//
//	0..11   the value itself; nothing follows
//	12..15  the value follows in the next 8, 16, 24 or 32 bits
func DecodeVarintBits(r Region, bitOffset *int) uint32 {
	x := r.LoadBits(*bitOffset, VarintHeaderBits)
	*bitOffset += VarintHeaderBits
	if x > VarintSmallValue {
		n := int(x-VarintSmallValue) * BitsPerByte
		x = r.LoadBits(*bitOffset, n)
		*bitOffset += n
	}
	return x
}

// EncodeVarintBits appends value using the shortest encoding accepted by
// DecodeVarintBits.
func EncodeVarintBits(w *Writer, value uint32) {
	if value <= VarintSmallValue {
		w.WriteBits(value, VarintHeaderBits)
		return
	}
	numBits := (MinimumBitsToStore(value) + BitsPerByte - 1) / BitsPerByte * BitsPerByte
	w.WriteBits(uint32(VarintSmallValue+numBits/BitsPerByte), VarintHeaderBits)
	w.WriteBits(value, numBits)
}

// VarintBitSize returns the number of bits EncodeVarintBits uses for value.
func VarintBitSize(value uint32) int {
	if value <= VarintSmallValue {
		return VarintHeaderBits
	}
	return VarintHeaderBits + (MinimumBitsToStore(value)+BitsPerByte-1)/BitsPerByte*BitsPerByte
}
