// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitmem

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestRegionLoadStoreBits(t *testing.T) {
	for _, fill := range []byte{0x00, 0xff} {
		for offset := 0; offset < 16; offset++ {
			for width := 0; width <= MaxLoadBits; width++ {
				buf := make([]byte, 16)
				for i := range buf {
					buf[i] = fill
				}
				r := MakeRegion(buf)
				var value uint32 = 0x5a5a5a5a
				if width < MaxLoadBits {
					value &= 1<<uint(width) - 1
				}
				r.StoreBits(offset, value, width)
				require.Equal(t, value, r.LoadBits(offset, width), "offset=%d width=%d", offset, width)
				// Bits outside the written range are untouched.
				for bit := 0; bit < r.Size(); bit++ {
					if bit >= offset && bit < offset+width {
						continue
					}
					require.Equal(t, fill != 0, r.LoadBit(bit), "bit %d clobbered (offset=%d width=%d)", bit, offset, width)
				}
			}
		}
	}
}

func TestRegionShortBuffer(t *testing.T) {
	// Loads near the end of the buffer must not use the 8-byte fast path.
	buf := []byte{0xab, 0xcd, 0xef}
	r := MakeRegion(buf)
	require.Equal(t, uint32(0xefcdab), r.LoadBits(0, 24))
	require.Equal(t, uint32(0xefcda), r.LoadBits(4, 20))
	require.Equal(t, uint32(0x1), r.LoadBits(23, 1))
}

func TestRegionSubregion(t *testing.T) {
	buf := make([]byte, 8)
	r := MakeRegion(buf)
	sub := r.Subregion(5, 20)
	require.Equal(t, 20, sub.Size())
	sub.StoreBits(3, 0x3ff, 10)
	require.Equal(t, uint32(0x3ff), r.LoadBits(8, 10))
	require.Equal(t, uint32(0), r.LoadBits(0, 8))
	require.Equal(t, uint32(0), r.LoadBits(18, 14))

	nested := sub.Subregion(3, 10)
	require.Equal(t, uint32(0x3ff), nested.LoadBits(0, 10))
	require.Equal(t, 10, nested.PopCount(0, 10))
	require.True(t, nested.Equal(r.Subregion(8, 10)))
	require.False(t, nested.Equal(r.Subregion(8, 9)))
}

func TestRegionStoreRegion(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	for i := 0; i < 200; i++ {
		src := make([]byte, 24)
		for j := range src {
			src[j] = byte(rng.Uint32())
		}
		srcOff := rng.Intn(32)
		n := rng.Intn(len(src)*BitsPerByte - srcOff)
		dstOff := rng.Intn(40)
		dst := make([]byte, BitsToBytesRoundUp(dstOff+n)+2)
		for j := range dst {
			dst[j] = 0xff
		}
		s := MakeRegion(src).Subregion(srcOff, n)
		d := MakeRegion(dst)
		d.StoreRegion(dstOff, s, n)
		require.True(t, d.Subregion(dstOff, n).ContentEquals(s), "srcOff=%d dstOff=%d n=%d", srcOff, dstOff, n)
		require.Equal(t, s.PopCount(0, n), d.PopCount(dstOff, n))
		require.Equal(t, dstOff, d.PopCount(0, dstOff))
	}
}

func TestRegionString(t *testing.T) {
	r := MakeRegion([]byte{0x05, 0x80})
	require.Equal(t, "1000000000000101", r.String())
	require.Equal(t, "0010", r.Subregion(1, 4).String())
}

func TestMinimumBitsToStore(t *testing.T) {
	for _, tc := range []struct {
		v    uint32
		bits int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {255, 8}, {256, 9}, {1<<31 - 1, 31}, {1 << 31, 32}, {^uint32(0), 32},
	} {
		t.Run(fmt.Sprint(tc.v), func(t *testing.T) {
			require.Equal(t, tc.bits, MinimumBitsToStore(tc.v))
		})
	}
}

func TestWriterAllocateZeroes(t *testing.T) {
	// Reuse a dirty buffer: growth must not expose stale bytes.
	buf := []byte{0xff, 0xff, 0xff, 0xff}
	w := MakeWriter(buf[:0], 0)
	w.WriteBits(1, 3)
	r := w.Allocate(20)
	require.Equal(t, 0, r.PopCount(0, 20))
	require.Equal(t, 23, w.BitOffset())
	require.Equal(t, 3, len(w.Data()))

	// A writer opened mid-byte clears the tail of that byte.
	buf = []byte{0xff, 0xff}
	w = MakeWriter(buf, 5)
	require.Equal(t, []byte{0x1f}, w.Data())
	w.WriteBits(0, 3)
	w.WriteBits(0xa, 4)
	require.Equal(t, []byte{0x1f, 0x0a}, w.Data())
}

func TestReaderWriter(t *testing.T) {
	var w Writer
	w.WriteBits(5, 3)
	w.WriteVarint(1000)
	w.AlignToByte()
	w.WriteBytes([]byte{0xde, 0xad})
	sub := w.Allocate(9)
	sub.StoreBits(0, 0x1ff, 9)

	r := MakeReader(MakeRegion(w.Data()), 0)
	require.Equal(t, uint32(5), r.ReadBits(3))
	require.Equal(t, uint32(1000), r.ReadVarint())
	r.AlignToByte()
	require.Equal(t, uint32(0xadde), r.ReadBits(16))
	require.Equal(t, "111111111", r.Skip(9).String())
	require.Equal(t, w.BitOffset(), r.BitOffset())
}
