// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bittable

import (
	"encoding/binary"
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// Builder accumulates rows of a table with a fixed number of columns and
// encodes them in the format read by Table.
//
// Rows are stored flattened: row i occupies values[i*numColumns:(i+1)*numColumns].
type Builder struct {
	numColumns int
	values     []uint32
	dedup      dedupIndex
	scratch    []byte
}

// Init initializes the builder for tables with numColumns columns.
func (b *Builder) Init(numColumns int) {
	*b = Builder{numColumns: numColumns, dedup: dedupIndex{hash: b.dedup.hash}}
	b.dedup.init()
}

// SetHashFunc overrides the hash used for deduplication. It must be called
// before any rows are added.
func (b *Builder) SetHashFunc(h HashFunc) {
	if b.Len() != 0 {
		panic(errors.AssertionFailedf("SetHashFunc called on a non-empty builder"))
	}
	b.dedup.hash = h
}

// Reset removes all rows while retaining allocated memory.
func (b *Builder) Reset() {
	b.values = b.values[:0]
	b.dedup.init()
}

// NumColumns returns the number of columns.
func (b *Builder) NumColumns() int { return b.numColumns }

// Len returns the number of rows.
func (b *Builder) Len() int {
	if b.numColumns == 0 {
		return 0
	}
	return len(b.values) / b.numColumns
}

// Row returns the values of row i. The returned slice aliases the builder.
func (b *Builder) Row(i int) []uint32 {
	invariants.CheckBounds(i, b.Len())
	return b.values[i*b.numColumns : (i+1)*b.numColumns : (i+1)*b.numColumns]
}

// Set overwrites a single value. Rows that were deduplicated may be shared, so
// Set is only meaningful for rows inserted with Add.
func (b *Builder) Set(row, column int, v uint32) {
	b.Row(row)[column] = v
}

// Add appends a row without deduplication and returns its index.
func (b *Builder) Add(row ...uint32) uint32 {
	if len(row) != b.numColumns {
		panic(errors.AssertionFailedf("row has %d values; expected %d", len(row), b.numColumns))
	}
	index := uint32(b.Len())
	b.values = append(b.values, row...)
	return index
}

// Dedup inserts the run of rows formed by the flattened values, unless an
// equal run is already present as consecutive rows starting at a previously
// deduplicated index. It returns the index of the first row of the run. An
// empty run returns Len() and inserts nothing.
func (b *Builder) Dedup(values ...uint32) uint32 {
	if len(values)%b.numColumns != 0 {
		panic(errors.AssertionFailedf("%d values do not form whole rows of %d columns", len(values), b.numColumns))
	}
	count := len(values) / b.numColumns
	if count == 0 {
		return uint32(b.Len())
	}
	b.scratch = b.scratch[:0]
	for _, v := range values {
		b.scratch = binary.LittleEndian.AppendUint32(b.scratch, v)
	}
	h := b.dedup.hash(b.scratch)
	for _, start := range b.dedup.candidates(h) {
		if count <= b.Len()-int(start) {
			lo := int(start) * b.numColumns
			if slices.Equal(b.values[lo:lo+len(values)], values) {
				return start
			}
		}
	}
	index := uint32(b.Len())
	b.values = append(b.values, values...)
	b.dedup.add(h, index)
	return index
}

// Measure returns the minimum width of each column.
func (b *Builder) Measure() []int {
	widths := make([]int, b.numColumns)
	for c := range widths {
		var mask uint32
		for i := c; i < len(b.values); i += b.numColumns {
			mask |= b.values[i] - valueBias
		}
		widths[c] = bits.Len32(mask)
	}
	return widths
}

// Encode appends the encoded table to w.
func (b *Builder) Encode(w *bitmem.Writer) {
	start := w.BitOffset()
	w.WriteVarint(uint32(b.Len()))
	if b.Len() != 0 {
		widths := b.Measure()
		for _, width := range widths {
			w.WriteVarint(uint32(width))
		}
		for i, v := range b.values {
			w.WriteBits(v-valueBias, widths[i%b.numColumns])
		}
	}
	if invariants.Enabled {
		b.verify(w, start)
	}
}

func (b *Builder) verify(w *bitmem.Writer, start int) {
	r := bitmem.MakeReader(bitmem.MakeRegion(w.Data()), start)
	var t Table
	if err := t.Decode(&r, b.numColumns); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "re-decoding encoded table"))
	}
	if r.BitOffset() != w.BitOffset() || t.NumRows() != b.Len() {
		panic(errors.AssertionFailedf("table decoded to %d rows ending at bit %d; encoded %d rows ending at bit %d",
			t.NumRows(), r.BitOffset(), b.Len(), w.BitOffset()))
	}
	for row := 0; row < t.NumRows(); row++ {
		for c := 0; c < b.numColumns; c++ {
			if got, want := t.Get(row, c), b.values[row*b.numColumns+c]; got != want {
				panic(errors.AssertionFailedf("table (%d, %d) decoded as %d; expected %d", row, c, got, want))
			}
		}
	}
}
