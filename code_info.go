// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/bittable"
	"github.com/cockroachdb/stackmap/internal/base"
)

// CodeInfo is a read-only view of an encoded blob. It references the blob's
// memory and copies no rows, so it is cheap to construct on demand. A
// CodeInfo is safe for concurrent use.
//
// The blob layout is:
//
//	leb128(payloadSize)
//	stack maps          (8 columns)
//	register masks      (2 columns)
//	stack masks         (bitmaps)
//	invoke infos        (3 columns)
//	inline infos        (5 columns)
//	dex register masks  (bitmaps)
//	dex register maps   (1 column)
//	location catalog    (byte aligned)
//	varint(numDexRegisters)
//
// Tables follow each other without padding. Dex register maps are a regular
// bit table of catalog indexes, holding only the registers that changed since
// they were last recorded, not a byte-aligned sub-blob per stack map.
type CodeInfo struct {
	size             int
	headerSize       int
	stackMaps        bittable.Table
	registerMasks    bittable.Table
	stackMasks       bittable.Table
	invokeInfos      bittable.Table
	inlineInfos      bittable.Table
	dexRegisterMasks bittable.Table
	dexRegisterMaps  bittable.Table
	catalog          catalog
	numDexRegisters  uint32
	numDexRegBits    int
}

// NewCodeInfo decodes a blob produced by Stream.FillInCodeInfo. The blob is
// trusted; malformed input panics. Use DecodeCodeInfo for input of unknown
// provenance.
func NewCodeInfo(data []byte) *CodeInfo {
	c := &CodeInfo{}
	if err := c.decode(data); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "decoding code info"))
	}
	return c
}

// DecodeCodeInfo decodes and validates a blob. Errors are marked with
// base.ErrCorruption.
func DecodeCodeInfo(data []byte) (*CodeInfo, error) {
	c := &CodeInfo{}
	if err := c.decode(data); err != nil {
		return nil, base.MarkCorruptionError(err)
	}
	if err := c.validate(); err != nil {
		return nil, base.MarkCorruptionError(err)
	}
	return c, nil
}

// EncodedSize returns the size in bytes of the blob at the start of data,
// including its length prefix.
func EncodedSize(data []byte) (int, error) {
	payload, n, err := bitmem.DecodeUnsignedLeb128(data)
	if err != nil {
		return 0, base.MarkCorruptionError(err)
	}
	return n + int(payload), nil
}

func (c *CodeInfo) decode(data []byte) error {
	payloadSize, n, err := bitmem.DecodeUnsignedLeb128(data)
	if err != nil {
		return err
	}
	if int(payloadSize) > len(data)-n {
		return errors.Newf("payload of %d bytes exceeds the %d bytes available", payloadSize, len(data)-n)
	}
	c.headerSize = n
	c.size = n + int(payloadSize)
	r := bitmem.MakeReader(bitmem.MakeRegion(data[n:c.size]), 0)
	for _, t := range []struct {
		name       string
		table      *bittable.Table
		numColumns int
	}{
		{"stack maps", &c.stackMaps, numStackMapColumns},
		{"register masks", &c.registerMasks, numRegisterMaskColumns},
		{"stack masks", &c.stackMasks, 1},
		{"invoke infos", &c.invokeInfos, numInvokeInfoColumns},
		{"inline infos", &c.inlineInfos, numInlineInfoColumns},
		{"dex register masks", &c.dexRegisterMasks, 1},
		{"dex register maps", &c.dexRegisterMaps, numDexRegisterMapColumns},
	} {
		if err := t.table.Decode(&r, t.numColumns); err != nil {
			return errors.Wrapf(err, "decoding %s", t.name)
		}
	}
	if err := c.catalog.decode(&r); err != nil {
		return err
	}
	start := r.BitOffset()
	numDexRegisters, ok := r.TryReadVarint()
	if !ok {
		return errors.New("truncated dex register count")
	}
	c.numDexRegisters = numDexRegisters
	c.numDexRegBits = r.BitOffset() - start
	if used := bitmem.BitsToBytesRoundUp(r.BitOffset()); used != int(payloadSize) {
		return errors.Newf("tables occupy %d bytes of a %d byte payload", used, payloadSize)
	}
	return nil
}

// validate checks the cross-table references of a decoded blob so that
// lookups on it cannot index out of range.
func (c *CodeInfo) validate() error {
	for _, t := range []struct {
		name  string
		table *bittable.Table
	}{
		{"stack maps", &c.stackMaps},
		{"register masks", &c.registerMasks},
		{"invoke infos", &c.invokeInfos},
		{"inline infos", &c.inlineInfos},
		{"dex register maps", &c.dexRegisterMaps},
	} {
		for col := 0; col < t.table.NumColumns(); col++ {
			if w := t.table.NumColumnBits(col); w > bitmem.MaxLoadBits {
				return errors.Newf("%s column %d is %d bits wide", t.name, col, w)
			}
		}
	}
	if err := c.catalog.validate(); err != nil {
		return err
	}
	if c.numDexRegisters > maxDexRegisters {
		return errors.Newf("%d dex registers exceeds the maximum of %d", c.numDexRegisters, maxDexRegisters)
	}
	checkIndex := func(what string, row int, v uint32, n int) error {
		if v != NoValue && int(v) >= n {
			return errors.Newf("stack map %d: %s %d out of range [0, %d)", row, what, v, n)
		}
		return nil
	}
	for i := 0; i < c.NumberOfStackMaps(); i++ {
		sm := c.StackMapAt(i)
		if v := sm.Column(stackMapKind); !validKindEncoding(v) {
			return errors.Newf("stack map %d: unknown kind %d", i, v)
		}
		if err := errors.CombineErrors(
			checkIndex("register mask", i, sm.RegisterMaskIndex(), c.registerMasks.NumRows()),
			checkIndex("stack mask", i, sm.StackMaskIndex(), c.stackMasks.NumRows()),
		); err != nil {
			return err
		}
		if err := checkIndex("dex register mask", i, sm.DexRegisterMaskIndex(), c.dexRegisterMasks.NumRows()); err != nil {
			return err
		}
		if err := checkIndex("inline info", i, sm.InlineInfoIndex(), c.inlineInfos.NumRows()); err != nil {
			return err
		}
		if sm.HasInlineInfo() {
			// The register slots of each inlined frame follow those of the
			// frame above it.
			prev := c.numDexRegisters
			j := int(sm.InlineInfoIndex())
			for ; j < c.inlineInfos.NumRows(); j++ {
				ii := c.inlineInfoAt(j)
				if sm.HasDexRegisterMap() {
					off := ii.DexRegisterMapOffset()
					if off < prev || off-prev > maxDexRegisters {
						return errors.Newf("stack map %d: inline info %d ends its registers at %d, after %d",
							i, j, off, prev)
					}
					prev = off
				}
				if ii.IsLast() {
					break
				}
			}
			if j == c.inlineInfos.NumRows() {
				return errors.Newf("stack map %d: unterminated inline info chain", i)
			}
		}
		if sm.HasDexRegisterMask() {
			mask := c.dexRegisterMasks.GetRegion(int(sm.DexRegisterMaskIndex()), 0)
			end := int(sm.DexRegisterMapIndex()) + mask.PopCount(0, mask.Size())
			if !sm.HasDexRegisterMap() || end > c.dexRegisterMaps.NumRows() {
				return errors.Newf("stack map %d: dex register map overruns table", i)
			}
		}
	}
	for i := 0; i < c.dexRegisterMaps.NumRows(); i++ {
		if v := c.dexRegisterMaps.Get(i, dexRegisterMapCatalogIndex); v != NoValue && int(v) >= c.catalog.numEntries {
			return errors.Newf("dex register map %d: catalog index %d out of range", i, v)
		}
	}
	return c.validateDexRegisterSearch()
}

// validateDexRegisterSearch checks that every register slot of every stack
// map with registers was recorded within MaxDexRegisterMapSearchDistance
// stack maps, so that readers never scan further back. Stack maps close to
// the start are exempt since the scan stops at the first stack map.
func (c *CodeInfo) validateDexRegisterSearch() error {
	width := 0
	if c.dexRegisterMasks.NumRows() > 0 {
		width = c.dexRegisterMasks.NumColumnBits(0)
	}
	lastRecorded := make([]int, width)
	for i := range lastRecorded {
		lastRecorded[i] = -1
	}
	for row := 0; row < c.NumberOfStackMaps(); row++ {
		sm := c.StackMapAt(row)
		if sm.HasDexRegisterMask() {
			mask := c.dexRegisterMasks.GetRegion(int(sm.DexRegisterMaskIndex()), 0)
			for reg := 0; reg < mask.Size(); reg++ {
				if mask.LoadBit(reg) {
					lastRecorded[reg] = row
				}
			}
		}
		if !sm.HasDexRegisterMap() || row <= MaxDexRegisterMapSearchDistance {
			continue
		}
		n := int(c.numDexRegisters)
		if sm.HasInlineInfo() {
			n = int(c.InlineInfoAtDepth(sm, c.InlineDepthOf(sm)-1).DexRegisterMapOffset())
		}
		if n > width {
			return errors.Newf("stack map %d: dex register %d is never recorded", row, width)
		}
		for reg := 0; reg < n; reg++ {
			if row-lastRecorded[reg] > MaxDexRegisterMapSearchDistance {
				return errors.Newf("stack map %d: dex register %d was last recorded more than %d stack maps back",
					row, reg, MaxDexRegisterMapSearchDistance)
			}
		}
	}
	return nil
}

// Size returns the size in bytes of the blob, including its length prefix.
func (c *CodeInfo) Size() int { return c.size }

// NumberOfStackMaps returns the number of stack maps.
func (c *CodeInfo) NumberOfStackMaps() int { return c.stackMaps.NumRows() }

// NumberOfInvokeInfos returns the number of recorded call sites.
func (c *CodeInfo) NumberOfInvokeInfos() int { return c.invokeInfos.NumRows() }

// NumberOfLocationCatalogEntries returns the number of distinct locations.
func (c *CodeInfo) NumberOfLocationCatalogEntries() int { return c.catalog.numEntries }

// NumberOfDexRegisters returns the number of dex registers of the method,
// excluding those of inlined frames.
func (c *CodeInfo) NumberOfDexRegisters() uint32 { return c.numDexRegisters }

// StackMapAt returns stack map i.
func (c *CodeInfo) StackMapAt(i int) StackMap {
	return StackMap{bittable.MakeAccessor(&c.stackMaps, uint32(i))}
}

// InvokeInfoAt returns invoke info i.
func (c *CodeInfo) InvokeInfoAt(i int) InvokeInfo {
	return InvokeInfo{bittable.MakeAccessor(&c.invokeInfos, uint32(i))}
}

func (c *CodeInfo) inlineInfoAt(i int) InlineInfo {
	return InlineInfo{bittable.MakeAccessor(&c.inlineInfos, uint32(i))}
}

// invalid views
func (c *CodeInfo) noStackMap() StackMap {
	return StackMap{bittable.MakeAccessor(&c.stackMaps, NoValue)}
}

// RegisterMaskOf returns the mask of core registers holding references.
func (c *CodeInfo) RegisterMaskOf(sm StackMap) uint32 {
	if !sm.HasRegisterMask() {
		return 0
	}
	row := int(sm.RegisterMaskIndex())
	return c.registerMasks.Get(row, registerMaskValue) << c.registerMasks.Get(row, registerMaskShift)
}

// StackMaskOf returns the bitmap of stack slots holding references. Trailing
// zero bits are trimmed, so the region may be shorter than the frame.
func (c *CodeInfo) StackMaskOf(sm StackMap) bitmem.Region {
	if !sm.HasStackMask() {
		return bitmem.Region{}
	}
	return c.stackMasks.GetRegion(int(sm.StackMaskIndex()), 0)
}

// DexRegisterMaskOf returns the bitmap of flat register slots that changed at
// the stack map.
func (c *CodeInfo) DexRegisterMaskOf(sm StackMap) bitmem.Region {
	if !sm.HasDexRegisterMask() {
		return bitmem.Region{}
	}
	return c.dexRegisterMasks.GetRegion(int(sm.DexRegisterMaskIndex()), 0)
}

// InlineDepthOf returns the number of inlined frames at the stack map.
func (c *CodeInfo) InlineDepthOf(sm StackMap) int {
	if !sm.HasInlineInfo() {
		return 0
	}
	start := int(sm.InlineInfoIndex())
	i := start
	for !c.inlineInfoAt(i).IsLast() {
		i++
	}
	return i - start + 1
}

// InlineInfoAtDepth returns the inlined frame at depth, where depth 0 is the
// outermost inlined frame.
func (c *CodeInfo) InlineInfoAtDepth(sm StackMap, depth int) InlineInfo {
	if depth >= c.InlineDepthOf(sm) {
		panic(errors.AssertionFailedf("inline depth %d out of range [0, %d)", depth, c.InlineDepthOf(sm)))
	}
	return c.inlineInfoAt(int(sm.InlineInfoIndex()) + depth)
}

// InlineInfosOf returns the inlined frames at the stack map, outermost first.
func (c *CodeInfo) InlineInfosOf(sm StackMap) []InlineInfo {
	n := c.InlineDepthOf(sm)
	infos := make([]InlineInfo, n)
	for d := range infos {
		infos[d] = c.inlineInfoAt(int(sm.InlineInfoIndex()) + d)
	}
	return infos
}

// DexRegisterMap holds the resolved locations of a range of dex registers.
type DexRegisterMap []DexRegisterLocation

// HasAnyLiveDexRegisters returns true if any register is live.
func (m DexRegisterMap) HasAnyLiveDexRegisters() bool {
	for _, l := range m {
		if l.IsLive() {
			return true
		}
	}
	return false
}

// DexRegisterMapOf returns the locations of the method's own dex registers at
// the stack map. It is empty if the stack map records no registers.
func (c *CodeInfo) DexRegisterMapOf(sm StackMap) DexRegisterMap {
	if !sm.HasDexRegisterMap() {
		return nil
	}
	m := make(DexRegisterMap, c.numDexRegisters)
	c.decodeDexRegisterMap(int(sm.Row()), 0, m)
	return m
}

// InlineDexRegisterMapOf returns the locations of the registers of an inlined
// frame at the stack map.
func (c *CodeInfo) InlineDexRegisterMapOf(sm StackMap, ii InlineInfo) DexRegisterMap {
	if !sm.HasDexRegisterMap() {
		return nil
	}
	depth := ii.Row() - sm.InlineInfoIndex()
	first := c.numDexRegisters
	if depth > 0 {
		first = c.inlineInfoAt(int(ii.Row()) - 1).DexRegisterMapOffset()
	}
	last := ii.DexRegisterMapOffset()
	m := make(DexRegisterMap, last-first)
	c.decodeDexRegisterMap(int(sm.Row()), int(first), m)
	return m
}

// decodeDexRegisterMap resolves the locations of the flat register slots
// [first, first+len(m)) at stack map row. Each stack map stores only the
// slots that changed, so the most recent change of each slot is found by
// scanning backwards. Slots never recorded are dead.
func (c *CodeInfo) decodeDexRegisterMap(row, first int, m DexRegisterMap) {
	for i := range m {
		m[i] = InvalidLocation()
	}
	remaining := len(m)
	for s := row; s >= 0 && remaining > 0; s-- {
		if distance := row - s; distance > MaxDexRegisterMapSearchDistance {
			panic(errors.AssertionFailedf("unbounded dex register search from stack map %d", row))
		}
		sm := c.StackMapAt(s)
		if !sm.HasDexRegisterMask() {
			continue
		}
		mask := c.dexRegisterMasks.GetRegion(int(sm.DexRegisterMaskIndex()), 0)
		if mask.Size() <= first {
			continue
		}
		mapIndex := int(sm.DexRegisterMapIndex()) + mask.PopCount(0, first)
		mask = mask.Subregion(first, mask.Size()-first)
		end := min(len(m), mask.Size())
		for reg := 0; reg < end; reg += bitmem.MaxLoadBits {
			word := mask.LoadBits(reg, min(end-reg, bitmem.MaxLoadBits))
			for word != 0 {
				bit := bits.TrailingZeros32(word)
				if m[reg+bit].Kind == LocationInvalid {
					m[reg+bit] = c.catalog.entry(c.dexRegisterMaps.Get(mapIndex, dexRegisterMapCatalogIndex))
					remaining--
				}
				mapIndex++
				word &^= 1 << uint(bit)
			}
		}
	}
	if remaining > 0 {
		for i := range m {
			if m[i].Kind == LocationInvalid {
				m[i] = NoLocation()
			}
		}
	}
}

// StackMapForDexPc returns the first non-debug stack map at dexPc, or an
// invalid view.
func (c *CodeInfo) StackMapForDexPc(dexPc uint32) StackMap {
	for i := 0; i < c.NumberOfStackMaps(); i++ {
		sm := c.StackMapAt(i)
		if sm.DexPc() == dexPc && sm.Kind() != KindDebug {
			return sm
		}
	}
	return c.noStackMap()
}

// StackMapForNativePcOffset returns the first default or OSR stack map at
// nativePcOffset, or an invalid view. Catch stack maps are appended after the
// safepoints, so the table is not sorted by native pc and is scanned in full.
func (c *CodeInfo) StackMapForNativePcOffset(nativePcOffset uint32, isa InstructionSet) StackMap {
	if nativePcOffset%isa.InstructionAlignment() != 0 {
		return c.noStackMap()
	}
	packed := PackNativePc(nativePcOffset, isa)
	for i := 0; i < c.NumberOfStackMaps(); i++ {
		sm := c.StackMapAt(i)
		if sm.PackedNativePc() != packed {
			continue
		}
		if k := sm.Kind(); k == KindDefault || k == KindOSR {
			return sm
		}
	}
	return c.noStackMap()
}

// CatchStackMapForDexPc returns the catch stack map at dexPc, or an invalid
// view.
func (c *CodeInfo) CatchStackMapForDexPc(dexPc uint32) StackMap {
	for i := c.NumberOfStackMaps() - 1; i >= 0; i-- {
		sm := c.StackMapAt(i)
		if sm.DexPc() == dexPc && sm.Kind() == KindCatch {
			return sm
		}
	}
	return c.noStackMap()
}

// OsrStackMapForDexPc returns the OSR entry point at dexPc, or an invalid
// view. An OSR entry point is recorded as two consecutive stack maps with the
// same dex pc and native pc; the first of the pair is returned.
func (c *CodeInfo) OsrStackMapForDexPc(dexPc uint32) StackMap {
	for i := 0; i+1 < c.NumberOfStackMaps(); i++ {
		sm := c.StackMapAt(i)
		if sm.DexPc() != dexPc {
			continue
		}
		next := c.StackMapAt(i + 1)
		if next.DexPc() == dexPc && next.PackedNativePc() == sm.PackedNativePc() {
			return sm
		}
	}
	return c.noStackMap()
}

// InvokeInfoForNativePcOffset returns the call site at nativePcOffset, or an
// invalid view.
func (c *CodeInfo) InvokeInfoForNativePcOffset(nativePcOffset uint32, isa InstructionSet) InvokeInfo {
	for i := 0; i < c.NumberOfInvokeInfos(); i++ {
		ii := c.InvokeInfoAt(i)
		if ii.NativePcOffset(isa) == nativePcOffset {
			return ii
		}
	}
	return InvokeInfo{bittable.MakeAccessor(&c.invokeInfos, NoValue)}
}
