// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/swiss"
)

// The location catalog holds every distinct live DexRegisterLocation of a
// method. It is a byte-aligned sub-blob:
//
//	varint(numEntries) varint(numBytes) <pad to byte> entries
//
// Each entry is either a one-byte short entry or a five-byte large entry:
//
//	short: bits 0-2 kind (0..5), bits 3-7 packed value (0..31)
//	large: bits 0-2 catalogLargeStack or catalogLargeConstant, then the
//	       packed value as a little-endian int32
//
// Stack offsets are packed in units of frameSlotSize. Register numbers
// always fit in a short entry.
const (
	frameSlotSize        = 4
	catalogKindBits      = 3
	catalogShortMax      = 1<<(bitmem.BitsPerByte-catalogKindBits) - 1
	catalogLargeStack    = 6
	catalogLargeConstant = 7
	catalogLargeSize     = 5
)

func packLocationValue(loc DexRegisterLocation) int32 {
	if loc.Kind == LocationInStack {
		if loc.Value%frameSlotSize != 0 {
			panic(errors.AssertionFailedf("stack offset %d is not a multiple of %d", loc.Value, frameSlotSize))
		}
		return loc.Value / frameSlotSize
	}
	return loc.Value
}

func unpackLocationValue(kind LocationKind, packed int32) int32 {
	if kind == LocationInStack {
		return packed * frameSlotSize
	}
	return packed
}

func appendCatalogEntry(buf []byte, loc DexRegisterLocation) []byte {
	packed := packLocationValue(loc)
	if packed >= 0 && packed <= catalogShortMax {
		return append(buf, byte(loc.Kind)|byte(packed)<<catalogKindBits)
	}
	var code byte
	switch loc.Kind {
	case LocationInStack:
		code = catalogLargeStack
	case LocationConstant:
		code = catalogLargeConstant
	default:
		panic(errors.AssertionFailedf("location %s does not fit in a catalog entry", loc))
	}
	buf = append(buf, code)
	return binary.LittleEndian.AppendUint32(buf, uint32(packed))
}

// catalogBuilder deduplicates locations and assigns them catalog indexes in
// insertion order.
type catalogBuilder struct {
	index   swiss.Map[DexRegisterLocation, uint32]
	entries []DexRegisterLocation
	buf     []byte
}

func (c *catalogBuilder) init() {
	c.index.Init(0)
	c.entries = c.entries[:0]
}

func (c *catalogBuilder) dedup(loc DexRegisterLocation) uint32 {
	if i, ok := c.index.Get(loc); ok {
		return i
	}
	i := uint32(len(c.entries))
	c.entries = append(c.entries, loc)
	c.index.Put(loc, i)
	return i
}

func (c *catalogBuilder) encode(w *bitmem.Writer) {
	c.buf = c.buf[:0]
	for _, loc := range c.entries {
		c.buf = appendCatalogEntry(c.buf, loc)
	}
	w.WriteVarint(uint32(len(c.entries)))
	w.WriteVarint(uint32(len(c.buf)))
	w.AlignToByte()
	w.WriteBytes(c.buf)
}

// catalog is a read-only view of an encoded location catalog.
type catalog struct {
	numEntries int
	region     bitmem.Region
	headerBits int
}

func (c *catalog) decode(r *bitmem.Reader) error {
	start := r.BitOffset()
	numEntries, ok := r.TryReadVarint()
	if !ok {
		return errors.New("truncated location catalog header")
	}
	numBytes, ok := r.TryReadVarint()
	if !ok {
		return errors.New("truncated location catalog header")
	}
	r.AlignToByte()
	if r.Remaining() < int(numBytes)*bitmem.BitsPerByte {
		return errors.Newf("location catalog of %d bytes overruns input", numBytes)
	}
	c.numEntries = int(numEntries)
	c.headerBits = r.BitOffset() - start
	c.region = r.Skip(int(numBytes) * bitmem.BitsPerByte)
	return nil
}

// validate walks every entry, checking that the entries exactly fill the
// catalog.
func (c *catalog) validate() error {
	off := 0
	for i := 0; i < c.numEntries; i++ {
		if off >= c.region.Size() {
			return errors.Newf("location catalog entry %d is out of bounds", i)
		}
		off += c.entrySize(off)
	}
	if off != c.region.Size() {
		return errors.Newf("location catalog has %d entries in %d bits; expected %d bits",
			c.numEntries, off, c.region.Size())
	}
	return nil
}

func (c *catalog) entrySize(bitOffset int) int {
	if c.region.LoadBits(bitOffset, catalogKindBits) >= catalogLargeStack {
		return catalogLargeSize * bitmem.BitsPerByte
	}
	return bitmem.BitsPerByte
}

// entry returns catalog entry i. Entries vary in size, so they are found by
// scanning from the start of the catalog.
func (c *catalog) entry(i uint32) DexRegisterLocation {
	if i == NoValue {
		return NoLocation()
	}
	if int(i) >= c.numEntries {
		panic(errors.AssertionFailedf("location catalog index %d out of range [0, %d)", i, c.numEntries))
	}
	off := 0
	for j := uint32(0); j < i; j++ {
		off += c.entrySize(off)
	}
	header := c.region.LoadBits(off, bitmem.BitsPerByte)
	switch code := header & (1<<catalogKindBits - 1); code {
	case catalogLargeStack, catalogLargeConstant:
		kind := LocationInStack
		if code == catalogLargeConstant {
			kind = LocationConstant
		}
		packed := int32(c.region.LoadBits(off+bitmem.BitsPerByte, 32))
		return DexRegisterLocation{Kind: kind, Value: unpackLocationValue(kind, packed)}
	default:
		kind := LocationKind(code)
		return DexRegisterLocation{Kind: kind, Value: unpackLocationValue(kind, int32(header>>catalogKindBits))}
	}
}

// bitSize returns the encoded size of the catalog, including its header and
// alignment padding.
func (c *catalog) bitSize() int {
	return c.headerBits + c.region.Size()
}
