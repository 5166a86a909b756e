// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/stretchr/testify/require"
)

func TestCatalogEntryEncoding(t *testing.T) {
	for _, tc := range []struct {
		loc      DexRegisterLocation
		expected []byte
	}{
		{DexRegisterLocation{LocationInStack, 8}, []byte{0x10}},
		{DexRegisterLocation{LocationInStack, 124}, []byte{0xf8}},
		{DexRegisterLocation{LocationInStack, 400}, []byte{0x06, 0x64, 0x00, 0x00, 0x00}},
		{DexRegisterLocation{LocationInRegister, 3}, []byte{0x19}},
		{DexRegisterLocation{LocationInRegisterHigh, 0}, []byte{0x02}},
		{DexRegisterLocation{LocationInFpuRegister, 31}, []byte{0xfb}},
		{DexRegisterLocation{LocationInFpuRegisterHigh, 1}, []byte{0x0c}},
		{DexRegisterLocation{LocationConstant, 31}, []byte{0xfd}},
		{DexRegisterLocation{LocationConstant, 32}, []byte{0x07, 0x20, 0x00, 0x00, 0x00}},
		{DexRegisterLocation{LocationConstant, -1}, []byte{0x07, 0xff, 0xff, 0xff, 0xff}},
	} {
		t.Run(tc.loc.String(), func(t *testing.T) {
			require.Equal(t, tc.expected, appendCatalogEntry(nil, tc.loc))
		})
	}
	require.Panics(t, func() { appendCatalogEntry(nil, DexRegisterLocation{LocationInStack, 6}) })
	require.Panics(t, func() { appendCatalogEntry(nil, DexRegisterLocation{LocationInRegister, 32}) })
}

func TestCatalogRoundTrip(t *testing.T) {
	locs := []DexRegisterLocation{
		{LocationInStack, 0},
		{LocationInStack, 1 << 20},
		{LocationInStack, -8},
		{LocationInRegister, 31},
		{LocationInRegisterHigh, 7},
		{LocationInFpuRegister, 0},
		{LocationInFpuRegisterHigh, 15},
		{LocationConstant, 0},
		{LocationConstant, -1 << 31},
		{LocationConstant, 1<<31 - 1},
	}
	var b catalogBuilder
	b.init()
	for _, l := range locs {
		b.dedup(l)
	}
	// Duplicates are assigned their first index.
	for i, l := range locs {
		require.Equal(t, uint32(i), b.dedup(l))
	}

	// Start at an odd bit offset so that the catalog must be aligned.
	for _, start := range []int{0, 3, 8, 13} {
		t.Run(fmt.Sprint(start), func(t *testing.T) {
			w := bitmem.MakeWriter(nil, 0)
			w.Allocate(start)
			b.encode(&w)
			r := bitmem.MakeReader(bitmem.MakeRegion(w.Data()), start)
			var c catalog
			require.NoError(t, c.decode(&r))
			require.NoError(t, c.validate())
			require.Equal(t, len(locs), c.numEntries)
			require.Equal(t, w.BitOffset()-start, c.bitSize())
			require.Equal(t, 0, r.BitOffset()%bitmem.BitsPerByte)
			for i, l := range locs {
				require.Equal(t, l, c.entry(uint32(i)))
			}
			require.Equal(t, NoLocation(), c.entry(NoValue))
			require.Panics(t, func() { c.entry(uint32(len(locs))) })
		})
	}
}

func TestCatalogValidate(t *testing.T) {
	var b catalogBuilder
	b.init()
	b.dedup(DexRegisterLocation{LocationConstant, 1000})
	w := bitmem.MakeWriter(nil, 0)
	b.encode(&w)
	data := w.Data()

	// Claim a second entry that is not present.
	bad := bitmem.MakeWriter(nil, 0)
	bad.WriteVarint(2)
	bad.WriteVarint(catalogLargeSize)
	bad.AlignToByte()
	bad.WriteBytes(data[len(data)-catalogLargeSize:])
	r := bitmem.MakeReader(bitmem.MakeRegion(bad.Data()), 0)
	var c catalog
	require.NoError(t, c.decode(&r))
	require.Error(t, c.validate())

	// Claim more bytes than are present.
	r = bitmem.MakeReader(bitmem.MakeRegion(data[:len(data)-1]), 0)
	require.Error(t, c.decode(&r))
}

func TestDexRegisterLocation(t *testing.T) {
	for _, tc := range []struct {
		loc      DexRegisterLocation
		expected string
	}{
		{NoLocation(), "none"},
		{InvalidLocation(), "invalid"},
		{DexRegisterLocation{LocationInStack, 16}, "sp+16"},
		{DexRegisterLocation{LocationInRegister, 2}, "reg2"},
		{DexRegisterLocation{LocationInRegisterHigh, 2}, "reg-hi2"},
		{DexRegisterLocation{LocationInFpuRegister, 9}, "fpu9"},
		{DexRegisterLocation{LocationInFpuRegisterHigh, 9}, "fpu-hi9"},
		{DexRegisterLocation{LocationConstant, -7}, "#-7"},
	} {
		require.Equal(t, tc.expected, tc.loc.String())
		// Locations are safe to include in redactable messages.
		require.Equal(t, tc.expected, string(redact.Sprint(tc.loc).Redact()))
	}

	require.False(t, NoLocation().IsLive())
	require.False(t, InvalidLocation().IsLive())
	require.True(t, DexRegisterLocation{LocationConstant, 0}.IsLive())
	require.Equal(t, int32(16), DexRegisterLocation{LocationInStack, 16}.StackOffsetInBytes())
	require.Equal(t, int32(-7), DexRegisterLocation{LocationConstant, -7}.Constant())
	require.Equal(t, int32(9), DexRegisterLocation{LocationInFpuRegister, 9}.MachineRegister())
	require.Panics(t, func() { DexRegisterLocation{LocationConstant, 1}.StackOffsetInBytes() })
	require.Panics(t, func() { DexRegisterLocation{LocationInStack, 1}.MachineRegister() })
	require.Panics(t, func() { NoLocation().Constant() })
}

func TestInstructionSet(t *testing.T) {
	for _, tc := range []struct {
		isa       InstructionSet
		alignment uint32
	}{
		{ISAArm, 2},
		{ISAThumb2, 2},
		{ISAArm64, 4},
		{ISAX86, 1},
		{ISAX86_64, 1},
		{ISAMips, 4},
		{ISAMips64, 4},
		{ISARiscv64, 2},
	} {
		t.Run(tc.isa.String(), func(t *testing.T) {
			require.Equal(t, tc.alignment, tc.isa.InstructionAlignment())
			isa, err := ParseInstructionSet(tc.isa.String())
			require.NoError(t, err)
			require.Equal(t, tc.isa, isa)

			pc := 6 * tc.alignment
			require.Equal(t, uint32(6), PackNativePc(pc, tc.isa))
			require.Equal(t, pc, UnpackNativePc(PackNativePc(pc, tc.isa), tc.isa))
			if tc.alignment > 1 {
				require.Panics(t, func() { PackNativePc(pc+1, tc.isa) })
			}
		})
	}
	_, err := ParseInstructionSet("vax")
	require.Error(t, err)
	require.Panics(t, func() { ISANone.InstructionAlignment() })
}

func TestBitVector(t *testing.T) {
	v := MakeBitVector(3, 9)
	require.Equal(t, 9, v.HighestBitSet())
	require.Equal(t, 16, v.NumBits())
	require.Equal(t, "0001000001", v.String())
	v.ClearBit(9)
	require.Equal(t, 3, v.HighestBitSet())
	c := v.Clone()
	v.ClearAllBits()
	require.Equal(t, -1, v.HighestBitSet())
	require.True(t, c.IsBitSet(3))
	require.False(t, c.IsBitSet(100))
	v.ClearBit(100)
}
