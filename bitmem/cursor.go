// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitmem

import "slices"

// Reader reads consecutive bit fields from a Region.
type Reader struct {
	region Region
	offset int
}

// MakeReader returns a Reader positioned at bitOffset within region.
func MakeReader(region Region, bitOffset int) Reader {
	return Reader{region: region, offset: bitOffset}
}

// Region returns the region being read.
func (r *Reader) Region() Region { return r.region }

// BitOffset returns the current read position in bits.
func (r *Reader) BitOffset() int { return r.offset }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return r.region.Size() - r.offset }

// ReadBits reads bitLength (<= 32) bits and advances past them.
func (r *Reader) ReadBits(bitLength int) uint32 {
	v := r.region.LoadBits(r.offset, bitLength)
	r.offset += bitLength
	return v
}

// ReadVarint reads a varint encoded by Writer.WriteVarint.
func (r *Reader) ReadVarint() uint32 {
	return DecodeVarintBits(r.region, &r.offset)
}

// Skip returns the next bitLength bits as a subregion and advances past them.
func (r *Reader) Skip(bitLength int) Region {
	sub := r.region.Subregion(r.offset, bitLength)
	r.offset += bitLength
	return sub
}

// AlignToByte advances the read position to the next byte boundary of the
// underlying memory.
func (r *Reader) AlignToByte() {
	abs := r.region.bitStart + r.offset
	r.offset += (BitsPerByte - abs%BitsPerByte) % BitsPerByte
}

// Writer appends bit fields to a growable byte buffer. Bits past the write
// position are always zero.
type Writer struct {
	data   []byte
	offset int
}

// MakeWriter returns a Writer that appends to buf starting at bitOffset. The
// bytes of buf at or after bitOffset are cleared.
func MakeWriter(buf []byte, bitOffset int) Writer {
	w := Writer{data: buf[:BitsToBytesRoundUp(bitOffset)], offset: bitOffset}
	if rem := bitOffset % BitsPerByte; rem != 0 {
		w.data[len(w.data)-1] &= byte(1)<<uint(rem) - 1
	}
	return w
}

// Reset truncates the writer to zero bits, retaining its buffer.
func (w *Writer) Reset() {
	w.data = w.data[:0]
	w.offset = 0
}

// BitOffset returns the current write position in bits.
func (w *Writer) BitOffset() int { return w.offset }

// Data returns the written bytes. The final byte may be partially written.
func (w *Writer) Data() []byte { return w.data }

// Allocate reserves the next bitLength bits and returns a region over them.
// The region aliases the writer's buffer and is only valid until the next
// call that grows the buffer.
func (w *Writer) Allocate(bitLength int) Region {
	start := w.offset
	w.offset += bitLength
	if n := BitsToBytesRoundUp(w.offset); n > len(w.data) {
		old := len(w.data)
		w.data = slices.Grow(w.data, n-old)[:n]
		clear(w.data[old:])
	}
	return MakeRegion(w.data).Subregion(start, bitLength)
}

// WriteBits appends the low bitLength (<= 32) bits of value.
func (w *Writer) WriteBits(value uint32, bitLength int) {
	w.Allocate(bitLength).StoreBits(0, value, bitLength)
}

// WriteRegion appends the contents of src.
func (w *Writer) WriteRegion(src Region) {
	w.Allocate(src.Size()).StoreRegion(0, src, src.Size())
}

// WriteVarint appends value using the varint bit encoding.
func (w *Writer) WriteVarint(value uint32) {
	EncodeVarintBits(w, value)
}

// AlignToByte pads the output with zero bits up to the next byte boundary.
func (w *Writer) AlignToByte() {
	w.Allocate((BitsPerByte - w.offset%BitsPerByte) % BitsPerByte)
}

// WriteBytes appends b. The write position must be byte aligned.
func (w *Writer) WriteBytes(b []byte) {
	if w.offset%BitsPerByte != 0 {
		panic("bitmem: unaligned WriteBytes")
	}
	w.data = append(w.data, b...)
	w.offset += len(b) * BitsPerByte
}

// TryReadVarint is like ReadVarint but returns false, without advancing,
// if the varint would extend past the end of the region.
func (r *Reader) TryReadVarint() (uint32, bool) {
	if r.Remaining() < VarintHeaderBits {
		return 0, false
	}
	n := VarintHeaderBits
	if h := r.region.LoadBits(r.offset, VarintHeaderBits); h > VarintSmallValue {
		n += int(h-VarintSmallValue) * BitsPerByte
	}
	if r.Remaining() < n {
		return 0, false
	}
	return r.ReadVarint(), true
}
