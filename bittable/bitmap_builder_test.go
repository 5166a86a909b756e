// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bittable

import (
	"testing"

	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/stretchr/testify/require"
)

// bitmap returns a region of n bits with the given bits set.
func bitmap(n int, set ...int) bitmem.Region {
	var w bitmem.Writer
	r := w.Allocate(n)
	for _, i := range set {
		r.StoreBit(i, true)
	}
	return r
}

func TestBitmapBuilder(t *testing.T) {
	var b BitmapBuilder
	b.Init()
	require.Equal(t, uint32(0), b.Dedup(bitmap(3, 0, 2)))
	// Trailing zero bits are not significant.
	require.Equal(t, uint32(0), b.Dedup(bitmap(40, 0, 2)))
	require.Equal(t, uint32(1), b.Dedup(bitmap(1, 0)))
	require.Equal(t, 2, b.Len())
	require.Equal(t, 3, b.MaxNumBits())

	var w bitmem.Writer
	b.Encode(&w)
	require.Equal(t, 14, w.BitOffset())
	require.Equal(t, []byte{0x32, 0x0d}, w.Data())

	r := bitmem.MakeReader(bitmem.MakeRegion(w.Data()), 0)
	var tbl Table
	require.NoError(t, tbl.Decode(&r, 1))
	require.Equal(t, 2, tbl.NumRows())
	require.Equal(t, "101", tbl.GetRegion(0, 0).String())
	require.Equal(t, "001", tbl.GetRegion(1, 0).String())
}

func TestBitmapBuilderEmpty(t *testing.T) {
	var b BitmapBuilder
	b.Init()
	// An all-zero bitmap trims to nothing.
	require.Equal(t, uint32(0), b.Dedup(bitmap(64)))
	require.Equal(t, uint32(0), b.Dedup(bitmem.Region{}))
	require.Equal(t, 0, b.MaxNumBits())

	b.Reset()
	var w bitmem.Writer
	b.Encode(&w)
	require.Equal(t, []byte{0x00}, w.Data())
}

func TestBitmapBuilderCollisions(t *testing.T) {
	var b BitmapBuilder
	b.Init()
	b.SetHashFunc(func([]byte) uint64 { return 0 })
	for i := 0; i < 70; i++ {
		require.Equal(t, uint32(i), b.Dedup(bitmap(i+1, i)))
	}
	for i := 0; i < 70; i++ {
		require.Equal(t, uint32(i), b.Dedup(bitmap(100, i)))
	}
	require.Equal(t, 70, b.MaxNumBits())

	var w bitmem.Writer
	b.Encode(&w)
	r := bitmem.MakeReader(bitmem.MakeRegion(w.Data()), 0)
	var tbl Table
	require.NoError(t, tbl.Decode(&r, 1))
	for i := 0; i < 70; i++ {
		row := tbl.GetRegion(i, 0)
		require.Equal(t, 70, row.Size())
		require.Equal(t, 1, row.PopCount(0, row.Size()))
		require.True(t, row.LoadBit(i))
	}
}

func TestHighestSetBit(t *testing.T) {
	require.Equal(t, -1, highestSetBit(bitmap(0)))
	require.Equal(t, -1, highestSetBit(bitmap(100)))
	require.Equal(t, 0, highestSetBit(bitmap(100, 0)))
	require.Equal(t, 31, highestSetBit(bitmap(100, 3, 31)))
	require.Equal(t, 32, highestSetBit(bitmap(100, 32)))
	require.Equal(t, 99, highestSetBit(bitmap(100, 5, 99)))
	require.Equal(t, 67, highestSetBit(bitmap(70, 67)))
}
