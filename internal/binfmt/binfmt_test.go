// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package binfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatterBits(t *testing.T) {
	f := New([]byte{0x35, 0xff})
	require.Equal(t, 4, f.Bits(4, "low"))
	require.Equal(t, uint32(3), f.Varint("count"))
	require.Equal(t, uint32(0xff), f.PeekBits(8))
	f.Bits(8, "byte")
	require.False(t, f.More())
	require.Equal(t, 16, f.Offset())
	require.Equal(t,
		"00-04: b 0101     # low\n"+
			"04-08: b 0011     # varint(3): count\n"+
			"08-16: b 11111111 # byte\n",
		f.String())
}

func TestFormatterContinuation(t *testing.T) {
	f := New([]byte{0xff, 0x0f}).LineWidth(8)
	f.Bits(12, "wide")
	require.Equal(t, 4, f.Remaining())
	f.Padding("pad")
	require.Equal(t, 0, f.Padding("none"))
	f.Comment("done")
	require.Equal(t,
		"00-08: b 11111111 # wide\n"+
			"08-12: b 1111     # (continued...)\n"+
			"12-16: b 0000     # pad\n"+
			"# done\n",
		f.String())
}

func TestFormatterBytes(t *testing.T) {
	f := New([]byte{0x96, 0x01, 0xab})
	f.SetLinePrefix("  ")
	require.Equal(t, uint64(150), f.Uvarint("size"))
	f.SetAnchorOffset()
	f.HexBytesln(1, "tail")
	require.Equal(t, 8, f.RelativeOffset())
	require.Equal(t,
		"  00-16: x 9601 # uvarint(150): size\n"+
			"  16-24: x ab   # tail\n",
		f.String())

	f = New([]byte{0x00, 0x00})
	f.Bits(3, "misaligned")
	require.Panics(t, func() { f.HexBytesln(1, "") })
}
