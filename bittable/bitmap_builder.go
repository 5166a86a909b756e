// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bittable

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// BitmapBuilder accumulates deduplicated bitmaps of varying lengths and
// encodes them as a single-column table whose width is the longest bitmap.
// Trailing zero bits are not significant: bitmaps are trimmed before they are
// compared or stored.
type BitmapBuilder struct {
	rows       []bitmem.Region
	maxNumBits int
	dedup      dedupIndex
}

// Init initializes (or reinitializes) the builder.
func (b *BitmapBuilder) Init() {
	*b = BitmapBuilder{dedup: dedupIndex{hash: b.dedup.hash}}
	b.dedup.init()
}

// SetHashFunc overrides the hash used for deduplication. It must be called
// before any bitmaps are added.
func (b *BitmapBuilder) SetHashFunc(h HashFunc) {
	if len(b.rows) != 0 {
		panic(errors.AssertionFailedf("SetHashFunc called on a non-empty builder"))
	}
	b.dedup.hash = h
}

// Reset removes all bitmaps.
func (b *BitmapBuilder) Reset() {
	b.rows = b.rows[:0]
	b.maxNumBits = 0
	b.dedup.init()
}

// Len returns the number of distinct bitmaps.
func (b *BitmapBuilder) Len() int { return len(b.rows) }

// MaxNumBits returns the length of the longest trimmed bitmap.
func (b *BitmapBuilder) MaxNumBits() int { return b.maxNumBits }

// Row returns the trimmed bitmap at index i.
func (b *BitmapBuilder) Row(i int) bitmem.Region { return b.rows[i] }

// Dedup inserts a copy of bitmap, trimmed of trailing zero bits, unless an
// equal bitmap is already present. It returns the bitmap's index.
func (b *BitmapBuilder) Dedup(bitmap bitmem.Region) uint32 {
	numBits := highestSetBit(bitmap) + 1
	buf := make([]byte, bitmem.BitsToBytesRoundUp(numBits))
	trimmed := bitmem.MakeRegionBits(buf, 0, numBits)
	trimmed.StoreRegion(0, bitmap, numBits)

	// Padding bits of buf are zero, so equal bitmaps hash equally.
	h := b.dedup.hash(buf)
	for _, index := range b.dedup.candidates(h) {
		if b.rows[index].ContentEquals(trimmed) {
			return index
		}
	}
	index := uint32(len(b.rows))
	b.rows = append(b.rows, trimmed)
	b.maxNumBits = max(b.maxNumBits, numBits)
	b.dedup.add(h, index)
	return index
}

// Encode appends the encoded bitmap table to w.
func (b *BitmapBuilder) Encode(w *bitmem.Writer) {
	start := w.BitOffset()
	w.WriteVarint(uint32(len(b.rows)))
	if len(b.rows) != 0 {
		w.WriteVarint(uint32(b.maxNumBits))
		for _, row := range b.rows {
			// Allocate zero-fills, so only the significant bits are copied.
			w.Allocate(b.maxNumBits).StoreRegion(0, row, row.Size())
		}
	}
	if invariants.Enabled {
		b.verify(w, start)
	}
}

func (b *BitmapBuilder) verify(w *bitmem.Writer, start int) {
	r := bitmem.MakeReader(bitmem.MakeRegion(w.Data()), start)
	var t Table
	if err := t.Decode(&r, 1); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "re-decoding encoded bitmap table"))
	}
	if r.BitOffset() != w.BitOffset() || t.NumRows() != len(b.rows) {
		panic(errors.AssertionFailedf("bitmap table decoded to %d rows ending at bit %d; encoded %d rows ending at bit %d",
			t.NumRows(), r.BitOffset(), len(b.rows), w.BitOffset()))
	}
	for i, row := range b.rows {
		got := t.GetRegion(i, 0)
		if !got.Subregion(0, row.Size()).ContentEquals(row) || highestSetBit(got) >= row.Size() {
			panic(errors.AssertionFailedf("bitmap %d decoded as %s; expected %s", i, got, row))
		}
	}
}

// highestSetBit returns the offset of the last set bit in r, or -1 if no bits
// are set.
func highestSetBit(r bitmem.Region) int {
	for end := r.Size(); end > 0; {
		n := min(end, bitmem.MaxLoadBits)
		if v := r.LoadBits(end-n, n); v != 0 {
			hi := n - 1
			for v>>uint(hi) == 0 {
				hi--
			}
			return end - n + hi
		}
		end -= n
	}
	return -1
}
