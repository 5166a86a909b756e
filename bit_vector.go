// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"strings"

	"github.com/cockroachdb/stackmap/bitmem"
)

// BitVector is a growable set of bits. The zero value is empty.
type BitVector struct {
	data []byte
}

// MakeBitVector returns a vector with the given bits set.
func MakeBitVector(bits ...int) BitVector {
	var v BitVector
	for _, b := range bits {
		v.SetBit(b)
	}
	return v
}

// SetBit sets bit i, growing the vector if needed.
func (v *BitVector) SetBit(i int) {
	if n := i/bitmem.BitsPerByte + 1; n > len(v.data) {
		v.data = append(v.data, make([]byte, n-len(v.data))...)
	}
	v.data[i/bitmem.BitsPerByte] |= 1 << uint(i%bitmem.BitsPerByte)
}

// ClearBit clears bit i.
func (v *BitVector) ClearBit(i int) {
	if i/bitmem.BitsPerByte < len(v.data) {
		v.data[i/bitmem.BitsPerByte] &^= 1 << uint(i%bitmem.BitsPerByte)
	}
}

// ClearAllBits clears every bit, retaining storage.
func (v *BitVector) ClearAllBits() {
	clear(v.data)
}

// IsBitSet returns true if bit i is set.
func (v *BitVector) IsBitSet(i int) bool {
	return i/bitmem.BitsPerByte < len(v.data) &&
		v.data[i/bitmem.BitsPerByte]&(1<<uint(i%bitmem.BitsPerByte)) != 0
}

// NumBits returns the number of bits of storage. Bits at or past NumBits are
// clear.
func (v *BitVector) NumBits() int {
	return len(v.data) * bitmem.BitsPerByte
}

// HighestBitSet returns the index of the highest set bit, or -1.
func (v *BitVector) HighestBitSet() int {
	for i := len(v.data) - 1; i >= 0; i-- {
		if b := v.data[i]; b != 0 {
			hi := bitmem.BitsPerByte - 1
			for b>>uint(hi) == 0 {
				hi--
			}
			return i*bitmem.BitsPerByte + hi
		}
	}
	return -1
}

// Region returns a view of the vector's bits.
func (v *BitVector) Region() bitmem.Region {
	return bitmem.MakeRegion(v.data)
}

// Clone returns a copy of v.
func (v *BitVector) Clone() BitVector {
	return BitVector{data: append([]byte(nil), v.data...)}
}

// String returns the bits, lowest index first.
func (v *BitVector) String() string {
	var b strings.Builder
	for i := 0; i <= v.HighestBitSet(); i++ {
		if v.IsBitSet(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// StackMask is the set of stack slots holding references at a stack map. The
// compiler may still be adjusting the mask when the stack map is recorded, so
// a mask is either captured immediately with SnapshotStackMask or read once
// at PrepareForFillIn with DeferredStackMask. The zero value is an empty
// mask.
type StackMask struct {
	vector   *BitVector
	deferred bool
}

// SnapshotStackMask returns a mask holding a copy of v.
func SnapshotStackMask(v *BitVector) StackMask {
	if v == nil {
		return StackMask{}
	}
	c := v.Clone()
	return StackMask{vector: &c}
}

// DeferredStackMask returns a mask that reads v when the stream is finalized.
// The caller may keep modifying v until Stream.PrepareForFillIn returns, and
// must not modify it afterwards.
func DeferredStackMask(v *BitVector) StackMask {
	return StackMask{vector: v, deferred: true}
}

// IsDeferred returns true if the mask's contents are read at finalization.
func (m StackMask) IsDeferred() bool { return m.deferred }

// resolve returns the current contents of the mask. The result is a copy
// whenever the mask is deferred.
func (m StackMask) resolve() *BitVector {
	if m.vector == nil {
		return nil
	}
	if m.deferred {
		c := m.vector.Clone()
		return &c
	}
	return m.vector
}
