// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/stackmap/bittable"
)

// Dump writes a human-readable description of the blob to w. Native pcs are
// printed relative to codeOffset. If verbose is set, the raw rows of every
// table are printed as well. The method info, if non-nil, is used to resolve
// method info indexes to dex method indexes.
func (c *CodeInfo) Dump(
	w io.Writer, codeOffset uint32, verbose bool, isa InstructionSet, mi *MethodInfo,
) {
	fmt.Fprintf(w, "CodeInfo (size=%d, stack_maps=%d, invoke_infos=%d, catalog_entries=%d, dex_registers=%d)\n",
		c.size, c.NumberOfStackMaps(), c.NumberOfInvokeInfos(), c.catalog.numEntries, c.numDexRegisters)
	if verbose {
		fmt.Fprint(w, crstrings.Indent("  ", c.dumpTables()))
	}
	for i := 0; i < c.NumberOfStackMaps(); i++ {
		fmt.Fprint(w, crstrings.Indent("  ", c.dumpStackMap(c.StackMapAt(i), codeOffset, isa, mi)))
	}
	for i := 0; i < c.NumberOfInvokeInfos(); i++ {
		ii := c.InvokeInfoAt(i)
		fmt.Fprintf(w, "  InvokeInfo[%d] (native_pc=%#x, type=%s, %s)\n",
			i, codeOffset+ii.NativePcOffset(isa), ii.InvokeType(),
			formatMethod(MethodInfoIndex(ii.MethodInfoIndex()), mi))
	}
}

func (c *CodeInfo) dumpTables() string {
	var b strings.Builder
	dumpTable(&b, "StackMaps", &c.stackMaps, stackMapColumnNames[:])
	dumpTable(&b, "RegisterMasks", &c.registerMasks, registerMaskColumnNames[:])
	dumpBitmaps(&b, "StackMasks", &c.stackMasks)
	dumpTable(&b, "InvokeInfos", &c.invokeInfos, invokeInfoColumnNames[:])
	dumpTable(&b, "InlineInfos", &c.inlineInfos, inlineInfoColumnNames[:])
	dumpBitmaps(&b, "DexRegisterMasks", &c.dexRegisterMasks)
	dumpTable(&b, "DexRegisterMaps", &c.dexRegisterMaps, dexRegisterMapColumnNames[:])
	fmt.Fprintf(&b, "DexRegisterCatalog (entries=%d, bits=%d)\n", c.catalog.numEntries, c.catalog.bitSize())
	for i := 0; i < c.catalog.numEntries; i++ {
		fmt.Fprintf(&b, "  %d: %s\n", i, c.catalog.entry(uint32(i)))
	}
	return b.String()
}

func dumpTable(b *strings.Builder, name string, t *bittable.Table, columns []string) {
	fmt.Fprintf(b, "%s (rows=%d, bits=%d)\n", name, t.NumRows(), t.BitSize())
	if t.NumRows() == 0 {
		return
	}
	b.WriteString("   ")
	for col, n := range columns {
		fmt.Fprintf(b, " %s:%d", n, t.NumColumnBits(col))
	}
	b.WriteString("\n")
	for row := 0; row < t.NumRows(); row++ {
		fmt.Fprintf(b, "  %d:", row)
		for col := range columns {
			if v := t.Get(row, col); v == NoValue {
				b.WriteString(" -")
			} else {
				fmt.Fprintf(b, " %d", v)
			}
		}
		b.WriteString("\n")
	}
}

func dumpBitmaps(b *strings.Builder, name string, t *bittable.Table) {
	fmt.Fprintf(b, "%s (rows=%d, bits=%d)\n", name, t.NumRows(), t.BitSize())
	for row := 0; row < t.NumRows(); row++ {
		fmt.Fprintf(b, "  %d: 0b%s\n", row, t.GetRegion(row, 0))
	}
}

func (c *CodeInfo) dumpStackMap(sm StackMap, codeOffset uint32, isa InstructionSet, mi *MethodInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "StackMap[%d] (kind=%s, native_pc=%#x, dex_pc=%s, register_mask=%#x",
		sm.Row(), sm.Kind(), codeOffset+sm.NativePcOffset(isa), formatDexPc(sm.DexPc()), c.RegisterMaskOf(sm))
	if mask := c.StackMaskOf(sm); mask.Size() > 0 {
		fmt.Fprintf(&b, ", stack_mask=0b%s", mask)
	}
	b.WriteString(")\n")
	if regs := c.DexRegisterMapOf(sm); regs.HasAnyLiveDexRegisters() {
		fmt.Fprintf(&b, "  %s\n", regs.format(0))
	}
	first := int(c.numDexRegisters)
	for depth, ii := range c.InlineInfosOf(sm) {
		fmt.Fprintf(&b, "  InlineInfo[%d] (depth=%d, dex_pc=%s, %s)\n",
			ii.Row(), depth, formatDexPc(ii.DexPc()), formatMethod(ii.Method(), mi))
		if regs := c.InlineDexRegisterMapOf(sm, ii); regs.HasAnyLiveDexRegisters() {
			fmt.Fprintf(&b, "    %s\n", regs.format(first))
		}
		first = int(ii.DexRegisterMapOffset())
	}
	return b.String()
}

// format lists the live registers of the map, numbering them from first.
func (m DexRegisterMap) format(first int) string {
	var b strings.Builder
	b.WriteString("DexRegisterMap{")
	sep := ""
	for i, loc := range m {
		if !loc.IsLive() {
			continue
		}
		fmt.Fprintf(&b, "%sv%d:%s", sep, first+i, loc)
		sep = " "
	}
	b.WriteString("}")
	return b.String()
}

func formatDexPc(dexPc uint32) string {
	if dexPc == NoDexPc {
		return "none"
	}
	return fmt.Sprintf("%#x", dexPc)
}

func formatMethod(m InlinedMethod, mi *MethodInfo) string {
	if idx, ok := m.Index(); ok && mi != nil && int(idx) < mi.NumMethodIndexes() {
		return fmt.Sprintf("%s, method_index=%d", m, mi.MethodIndex(idx))
	}
	return m.String()
}
