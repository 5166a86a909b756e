// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bittable implements column-oriented tables of small unsigned
// integers packed at bit granularity.
//
// # Encoding
//
// A table is encoded as:
//
//	varint(numRows)
//	varint(columnWidth) x numColumns   (omitted when numRows == 0)
//	rows                               (numRows * sum(columnWidth) bits)
//
// Rows are stored one after another, and within a row columns are stored in
// order, each using exactly its column's width. Every value is stored biased
// by one so that NoValue, the most common "absent" marker, encodes as zero
// and a column holding only NoValue has zero width.
//
// Bitmap tables share the same layout with a single column whose width is the
// length of the longest bitmap. Bitmap values are not biased.
package bittable

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// NoValue is the value used for absent entries.
const NoValue = math.MaxUint32

// valueBias is added to stored bits to recover a value. Storing v-valueBias
// (mod 2^32) maps NoValue to zero.
const valueBias = NoValue

// Table is a read-only view of an encoded table. The zero value is an empty
// table with no columns.
type Table struct {
	region       bitmem.Region
	numRows      int
	headerBits   int
	columnOffset []int // numColumns+1 entries; columnOffset[numColumns] is the row width
}

// Decode reads a table with numColumns columns from r, advancing r past the
// table. The table references r's memory. An error is returned if the header
// is inconsistent with the remaining input.
func (t *Table) Decode(r *bitmem.Reader, numColumns int) error {
	start := r.BitOffset()
	*t = Table{columnOffset: make([]int, numColumns+1)}
	numRows, ok := r.TryReadVarint()
	if !ok {
		return errors.Newf("bittable: truncated header at bit %d", start)
	}
	t.numRows = int(numRows)
	if t.numRows > 0 {
		for c := 0; c < numColumns; c++ {
			width, ok := r.TryReadVarint()
			if !ok {
				return errors.Newf("bittable: truncated column widths at bit %d", r.BitOffset())
			}
			t.columnOffset[c+1] = t.columnOffset[c] + int(width)
		}
	}
	t.headerBits = r.BitOffset() - start
	rowBits := t.columnOffset[numColumns]
	if rowBits > 0 && t.numRows > r.Remaining()/rowBits {
		return errors.Newf("bittable: %d rows of %d bits overrun input (%d bits remain)",
			t.numRows, rowBits, r.Remaining())
	}
	t.region = r.Skip(t.numRows * rowBits)
	return nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.numRows }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columnOffset) - 1 }

// NumRowBits returns the width of a row in bits.
func (t *Table) NumRowBits() int {
	if len(t.columnOffset) == 0 {
		return 0
	}
	return t.columnOffset[len(t.columnOffset)-1]
}

// NumColumnBits returns the width of column c in bits.
func (t *Table) NumColumnBits(c int) int {
	return t.columnOffset[c+1] - t.columnOffset[c]
}

// HeaderBitSize returns the size of the encoded header in bits.
func (t *Table) HeaderBitSize() int { return t.headerBits }

// DataBitSize returns the size of the row data in bits.
func (t *Table) DataBitSize() int { return t.region.Size() }

// BitSize returns the total encoded size of the table in bits.
func (t *Table) BitSize() int { return t.headerBits + t.region.Size() }

// Get returns the value at (row, column).
func (t *Table) Get(row, column int) uint32 {
	invariants.CheckBounds(row, t.numRows)
	off := row*t.NumRowBits() + t.columnOffset[column]
	return t.region.LoadBits(off, t.NumColumnBits(column)) + valueBias
}

// GetRegion returns the bits of (row, column) without interpreting them. It is
// used to read bitmap tables.
func (t *Table) GetRegion(row, column int) bitmem.Region {
	invariants.CheckBounds(row, t.numRows)
	off := row*t.NumRowBits() + t.columnOffset[column]
	return t.region.Subregion(off, t.NumColumnBits(column))
}

// Accessor addresses a single row of a table. Typed row views embed it and
// name their columns.
type Accessor struct {
	table *Table
	row   uint32
}

// MakeAccessor returns an accessor for row of t. A row of NoValue yields an
// invalid accessor.
func MakeAccessor(t *Table, row uint32) Accessor {
	return Accessor{table: t, row: row}
}

// Row returns the row index, or NoValue.
func (a Accessor) Row() uint32 { return a.row }

// Table returns the table the accessor reads from.
func (a Accessor) Table() *Table { return a.table }

// IsValid returns true if the accessor addresses a row.
func (a Accessor) IsValid() bool {
	return a.table != nil && a.row != NoValue && int(a.row) < a.table.numRows
}

// Column returns the value of column c, or NoValue if the accessor is not
// valid.
func (a Accessor) Column(c int) uint32 {
	if !a.IsValid() {
		return NoValue
	}
	return a.table.Get(int(a.row), c)
}

// Has returns true if column c holds a value other than NoValue.
func (a Accessor) Has(c int) bool {
	return a.Column(c) != NoValue
}

// Equal returns true if both accessors address the same row of the same table.
func (a Accessor) Equal(o Accessor) bool {
	return a.table == o.table && a.row == o.row
}
