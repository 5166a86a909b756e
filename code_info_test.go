// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/internal/base"
	"github.com/stretchr/testify/require"
)

// buildTestCodeInfo encodes a small method with two stack maps, an inlined
// frame and a call site. It returns the code info and method info blobs.
func buildTestCodeInfo(t *testing.T) ([]byte, []byte) {
	s := newTestStream()
	sp := MakeBitVector(0, 2, 4)
	s.BeginStackMapEntry(StackMapEntry{
		DexPc:           0,
		NativePcOffset:  64,
		RegisterMask:    0x3,
		StackMask:       SnapshotStackMask(&sp),
		NumDexRegisters: 2,
	})
	s.AddDexRegisterEntry(LocationInStack, 0)
	s.AddDexRegisterEntry(LocationConstant, -2)
	s.EndStackMapEntry()

	s.BeginStackMapEntry(StackMapEntry{DexPc: 4, NativePcOffset: 128, NumDexRegisters: 2, InliningDepth: 1})
	s.AddDexRegisterEntry(LocationInStack, 400)
	s.AddDexRegisterEntry(LocationNone, 0)
	s.AddInvoke(InvokeVirtual, 42)
	s.BeginInlineInfoEntry(&testMethod{index: 42, file: testDex}, 3, 1, testDex)
	s.AddDexRegisterEntry(LocationInRegister, 5)
	s.EndInlineInfoEntry()
	s.EndStackMapEntry()

	data := s.Encode()
	mi := make([]byte, s.ComputeMethodInfoSize())
	s.FillInMethodInfo(mi)
	return data, mi
}

func TestCodeInfoDump(t *testing.T) {
	data, mi := buildTestCodeInfo(t)
	c := NewCodeInfo(data)
	methodInfo, err := DecodeMethodInfo(mi)
	require.NoError(t, err)

	var buf bytes.Buffer
	c.Dump(&buf, 0x1000, false /* verbose */, ISAArm64, &methodInfo)
	out := buf.String()
	for _, s := range []string{
		"CodeInfo (size=",
		"stack_maps=2, invoke_infos=1, catalog_entries=4, dex_registers=2)",
		"  StackMap[0] (kind=default, native_pc=0x1040, dex_pc=0x0, register_mask=0x3, stack_mask=0b10101)",
		"    DexRegisterMap{v0:sp+0 v1:#-2}",
		"  StackMap[1] (kind=default, native_pc=0x1080, dex_pc=0x4, register_mask=0x0)",
		"    DexRegisterMap{v0:sp+400}",
		"    InlineInfo[0] (depth=0, dex_pc=0x3, method_info[0], method_index=42)",
		"      DexRegisterMap{v2:reg5}",
		"  InvokeInfo[0] (native_pc=0x1080, type=virtual, method_info[0], method_index=42)",
	} {
		require.Contains(t, out, s)
	}
	require.NotContains(t, out, "StackMaps (rows=")

	buf.Reset()
	c.Dump(&buf, 0, true /* verbose */, ISAArm64, nil)
	out = buf.String()
	for _, s := range []string{
		"  StackMaps (rows=2, bits=",
		"  StackMasks (rows=1, bits=",
		"    0: 0b10101",
		"  DexRegisterCatalog (entries=4, bits=",
		"    2: sp+400",
		"  InvokeInfo[0] (native_pc=0x80, type=virtual, method_info[0])",
	} {
		require.Contains(t, out, s)
	}
}

func checkStatsPartition(t *testing.T, s *Stats) {
	if len(s.Children()) == 0 {
		return
	}
	sum := 0
	for _, c := range s.Children() {
		require.GreaterOrEqual(t, c.Bits(), 0, "%s/%s", s.Name(), c.Name())
		sum += c.Bits()
		checkStatsPartition(t, c)
	}
	require.Equal(t, s.Bits(), sum, "children of %s", s.Name())
}

func TestCodeInfoSizeStats(t *testing.T) {
	data, _ := buildTestCodeInfo(t)
	c := NewCodeInfo(data)

	stats := NewStats("CodeInfo")
	c.AddSizeStats(stats)
	c.AddSizeStats(stats)
	require.Equal(t, 2*len(data)*bitmem.BitsPerByte, stats.Bits())
	require.Equal(t, 2, stats.Count())
	checkStatsPartition(t, stats)

	sm := stats.Child("StackMaps")
	require.Equal(t, 2*c.stackMaps.BitSize(), sm.Bits())
	require.Len(t, sm.Children(), 1+numStackMapColumns)
	// Child returns existing nodes.
	require.Same(t, sm, stats.Child("StackMaps"))

	out := stats.String()
	require.True(t, strings.HasPrefix(out, "CodeInfo "), out)
	require.Contains(t, out, "\n  StackMaps ")
	require.Contains(t, out, "\n    PackedNativePc ")
}

func TestCodeInfoLayout(t *testing.T) {
	data, _ := buildTestCodeInfo(t)
	out, err := FormatLayout(data)
	require.NoError(t, err)
	for _, s := range []string{
		"# uvarint(",
		"# stack maps\n",
		"varint(2): rows",
		"[1] DexPc=4",
		"[0] DexRegisterMaskIndex=0",
		"# location catalog\n",
		"varint(4): entries",
		"[2] sp+400",
		"varint(2): dex registers",
	} {
		require.Contains(t, out, s)
	}
	// The last line ends at the end of the blob.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-1]
	offsets := last[:strings.Index(last, ":")]
	require.True(t, strings.HasSuffix(offsets, "-"+strconv.Itoa(len(data)*bitmem.BitsPerByte)), last)

	_, err = FormatLayout(data[:len(data)-1])
	require.True(t, base.IsCorruptionError(err))
}

func TestDecodeCodeInfoCorruption(t *testing.T) {
	data, _ := buildTestCodeInfo(t)
	_, err := DecodeCodeInfo(data)
	require.NoError(t, err)

	_, hdrLen, err := bitmem.DecodeUnsignedLeb128(data)
	require.NoError(t, err)
	payload := data[hdrLen:]
	withPayload := func(p []byte) []byte {
		return append(bitmem.AppendUnsignedLeb128(nil, uint32(len(p))), p...)
	}

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", data[:len(data)-1]},
		{"unterminated length", []byte{0x80}},
		{"payload too short", withPayload(payload[:len(payload)-1])},
		{"payload too long", withPayload(append(append([]byte(nil), payload...), 0))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCodeInfo(tc.data)
			require.Error(t, err)
			require.True(t, base.IsCorruptionError(err), "%+v", err)
			require.Panics(t, func() { NewCodeInfo(tc.data) })
		})
	}

	_, err = EncodedSize([]byte{0xff})
	require.True(t, base.IsCorruptionError(err))
}

// buildLongCodeInfo encodes enough stack maps with unchanged registers that
// some of them are restated.
func buildLongCodeInfo() []byte {
	s := newTestStream()
	recordUnchangedRegisters(s, 40)
	return s.Encode()
}

func recordUnchangedRegisters(s *Stream, n int) {
	for i := 0; i < n; i++ {
		s.BeginStackMapEntry(StackMapEntry{DexPc: uint32(i), NativePcOffset: uint32(4 * i), NumDexRegisters: 2, InliningDepth: 1})
		s.AddDexRegisterEntry(LocationInStack, 8)
		s.AddDexRegisterEntry(LocationInRegister, 3)
		s.BeginInlineInfoEntry(&testMethod{index: 9, file: testDex}, 1, 1, testDex)
		s.AddDexRegisterEntry(LocationConstant, 4)
		s.EndInlineInfoEntry()
		s.EndStackMapEntry()
	}
}

func TestDecodeCodeInfoBitFlips(t *testing.T) {
	short, _ := buildTestCodeInfo(t)
	for _, data := range [][]byte{short, buildLongCodeInfo()} {
		corrupt := make([]byte, len(data))
		for bit := 0; bit < len(data)*bitmem.BitsPerByte; bit++ {
			copy(corrupt, data)
			corrupt[bit/bitmem.BitsPerByte] ^= 1 << uint(bit%bitmem.BitsPerByte)
			require.NotPanics(t, func() {
				c, err := DecodeCodeInfo(corrupt)
				if err != nil {
					require.True(t, base.IsCorruptionError(err))
					return
				}
				// Everything reachable from a validated blob is safe to read.
				c.Dump(io.Discard, 0, true /* verbose */, ISAArm64, nil)
				for i := 0; i < c.NumberOfStackMaps(); i++ {
					sm := c.StackMapAt(i)
					c.StackMapForDexPc(sm.DexPc())
					c.CatchStackMapForDexPc(sm.DexPc())
					c.OsrStackMapForDexPc(sm.DexPc())
				}
			}, "bit %d", bit)
		}
	}
}

func TestDecodeCodeInfoValidation(t *testing.T) {
	// encode records n stack maps, applies tamper to the stream's tables and
	// encodes them without verification.
	encode := func(n int, tamper func(s *Stream)) []byte {
		s := NewStream(&StreamOptions{InstructionSet: ISAArm64})
		recordUnchangedRegisters(s, n)
		tamper(s)
		s.checks = nil
		buf := make([]byte, s.PrepareForFillIn())
		s.FillInCodeInfo(buf)
		return buf
	}

	_, err := DecodeCodeInfo(encode(40, func(*Stream) {}))
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		n      int
		tamper func(s *Stream)
		err    string
	}{
		{"unknown kind", 1, func(s *Stream) {
			s.stackMaps.Set(0, stackMapKind, 3)
		}, "unknown kind 3"},
		{"too many dex registers", 1, func(s *Stream) {
			s.numDexRegisters = maxDexRegisters + 1
		}, "exceeds the maximum"},
		{"inline registers overlap own registers", 1, func(s *Stream) {
			s.inlineInfos.Set(0, inlineInfoDexRegisterMapOffset, 1)
		}, "ends its registers at 1, after 2"},
		{"missing inline register offset", 1, func(s *Stream) {
			s.inlineInfos.Set(0, inlineInfoDexRegisterMapOffset, NoValue)
		}, "ends its registers"},
		{"missing restatement", 40, func(s *Stream) {
			s.stackMaps.Set(MaxDexRegisterMapSearchDistance+1, stackMapDexRegisterMaskIndex, NoValue)
		}, "last recorded more than 32 stack maps back"},
		{"registers never recorded", 40, func(s *Stream) {
			s.numDexRegisters = 5
			s.inlineInfos.Set(0, inlineInfoDexRegisterMapOffset, 6)
		}, "is never recorded"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCodeInfo(encode(tc.n, tc.tamper))
			require.Error(t, err)
			require.True(t, base.IsCorruptionError(err), "%+v", err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestEncodedSize(t *testing.T) {
	data, _ := buildTestCodeInfo(t)
	trailing := append(append([]byte(nil), data...), 0xde, 0xad)
	n, err := EncodedSize(trailing)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	c, err := DecodeCodeInfo(trailing)
	require.NoError(t, err)
	require.Equal(t, len(data), c.Size())
}

func TestMethodInfo(t *testing.T) {
	buf := appendMethodInfo(nil, []uint32{7, 0xdeadbeef, 0})
	require.Equal(t, MethodInfoSize(3), len(buf))
	mi, err := DecodeMethodInfo(buf)
	require.NoError(t, err)
	require.Equal(t, 3, mi.NumMethodIndexes())
	require.Equal(t, uint32(7), mi.MethodIndex(0))
	require.Equal(t, uint32(0xdeadbeef), mi.MethodIndex(1))
	require.Equal(t, uint32(0), mi.MethodIndex(2))
	require.Panics(t, func() { mi.MethodIndex(3) })

	_, err = DecodeMethodInfo(buf[:len(buf)-1])
	require.True(t, base.IsCorruptionError(err))
	_, err = DecodeMethodInfo(nil)
	require.True(t, base.IsCorruptionError(err))

	empty, err := DecodeMethodInfo(appendMethodInfo(nil, nil))
	require.NoError(t, err)
	require.Equal(t, 0, empty.NumMethodIndexes())
}
