// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bittable"
)

// NoValue marks an absent column value. It is stored in zero bits.
const NoValue = bittable.NoValue

// NoDexPc is the dex pc of stack maps without a corresponding bytecode
// instruction.
const NoDexPc = NoValue

// MaxDexRegisterMapSearchDistance bounds how many stack maps a reader scans
// backwards to resolve a dex register location. A register left unchanged for
// longer is restated.
const MaxDexRegisterMapSearchDistance = 32

// maxDexRegisters is the most registers a single dex frame can have.
const maxDexRegisters = 1<<16 - 1

// Stack map columns.
const (
	stackMapKind = iota
	stackMapPackedNativePc
	stackMapDexPc
	stackMapDexRegisterMapIndex
	stackMapDexRegisterMaskIndex
	stackMapInlineInfoIndex
	stackMapRegisterMaskIndex
	stackMapStackMaskIndex
	numStackMapColumns
)

var stackMapColumnNames = [numStackMapColumns]string{
	"Kind", "PackedNativePc", "DexPc", "DexRegisterMapIndex",
	"DexRegisterMaskIndex", "InlineInfoIndex", "RegisterMaskIndex", "StackMaskIndex",
}

// Register mask columns. The mask is Value << Shift.
const (
	registerMaskValue = iota
	registerMaskShift
	numRegisterMaskColumns
)

var registerMaskColumnNames = [numRegisterMaskColumns]string{"Value", "Shift"}

// Invoke info columns.
const (
	invokeInfoPackedNativePc = iota
	invokeInfoInvokeType
	invokeInfoMethodInfoIndex
	numInvokeInfoColumns
)

var invokeInfoColumnNames = [numInvokeInfoColumns]string{"PackedNativePc", "InvokeType", "MethodInfoIndex"}

// Inline info columns. A row either names the method by a method info index
// (ExtraDataOrMethodLo == inlineInfoExtraData) or embeds a method pointer
// split across MethodIndexIdxOrMethodHi and ExtraDataOrMethodLo. Pointers
// are even, which distinguishes the two.
const (
	inlineInfoIsLast = iota
	inlineInfoMethodIndexIdxOrMethodHi
	inlineInfoDexPc
	inlineInfoExtraDataOrMethodLo
	inlineInfoDexRegisterMapOffset
	numInlineInfoColumns
)

var inlineInfoColumnNames = [numInlineInfoColumns]string{
	"IsLast", "MethodIndexIdxOrMethodHi", "DexPc", "ExtraDataOrMethodLo", "DexRegisterMapOffset",
}

const (
	inlineInfoLast      = NoValue
	inlineInfoMore      = 0
	inlineInfoExtraData = 1
)

// Dex register map columns.
const (
	dexRegisterMapCatalogIndex = iota
	numDexRegisterMapColumns
)

var dexRegisterMapColumnNames = [numDexRegisterMapColumns]string{"CatalogIndex"}

// StackMap is a view of one row of the stack map table.
type StackMap struct {
	bittable.Accessor
}

// Kind returns the purpose of the stack map.
func (s StackMap) Kind() StackMapKind {
	return decodeKind(s.Column(stackMapKind))
}

// PackedNativePc returns the native pc divided by the instruction alignment.
func (s StackMap) PackedNativePc() uint32 { return s.Column(stackMapPackedNativePc) }

// NativePcOffset returns the native pc offset within the method's code.
func (s StackMap) NativePcOffset(isa InstructionSet) uint32 {
	return UnpackNativePc(s.PackedNativePc(), isa)
}

// DexPc returns the bytecode pc, or NoDexPc.
func (s StackMap) DexPc() uint32 { return s.Column(stackMapDexPc) }

// DexRegisterMapIndex returns the first row of the stack map's dex register
// map entries.
func (s StackMap) DexRegisterMapIndex() uint32 { return s.Column(stackMapDexRegisterMapIndex) }

// HasDexRegisterMap returns true if the stack map records dex registers.
func (s StackMap) HasDexRegisterMap() bool { return s.Has(stackMapDexRegisterMapIndex) }

// DexRegisterMaskIndex returns the index of the mask of registers that
// changed at this stack map.
func (s StackMap) DexRegisterMaskIndex() uint32 { return s.Column(stackMapDexRegisterMaskIndex) }

// HasDexRegisterMask returns true if any register changed at this stack map.
func (s StackMap) HasDexRegisterMask() bool { return s.Has(stackMapDexRegisterMaskIndex) }

// InlineInfoIndex returns the row of the outermost inline info.
func (s StackMap) InlineInfoIndex() uint32 { return s.Column(stackMapInlineInfoIndex) }

// HasInlineInfo returns true if the stack map has inlined frames.
func (s StackMap) HasInlineInfo() bool { return s.Has(stackMapInlineInfoIndex) }

// RegisterMaskIndex returns the row of the register mask.
func (s StackMap) RegisterMaskIndex() uint32 { return s.Column(stackMapRegisterMaskIndex) }

// HasRegisterMask returns true if any core register holds a reference.
func (s StackMap) HasRegisterMask() bool { return s.Has(stackMapRegisterMaskIndex) }

// StackMaskIndex returns the row of the stack mask.
func (s StackMap) StackMaskIndex() uint32 { return s.Column(stackMapStackMaskIndex) }

// HasStackMask returns true if any stack slot holds a reference.
func (s StackMap) HasStackMask() bool { return s.Has(stackMapStackMaskIndex) }

// InlineInfo is a view of one inlined frame.
type InlineInfo struct {
	bittable.Accessor
}

// IsLast returns true for the innermost frame of a chain.
func (i InlineInfo) IsLast() bool { return i.Column(inlineInfoIsLast) == inlineInfoLast }

// DexPc returns the bytecode pc within the inlined method.
func (i InlineInfo) DexPc() uint32 { return i.Column(inlineInfoDexPc) }

// EncodesMethodPointer returns true if the frame embeds a method pointer
// rather than a method info index.
func (i InlineInfo) EncodesMethodPointer() bool {
	return i.Column(inlineInfoExtraDataOrMethodLo)&1 == 0
}

// MethodInfoIndex returns the method info index of the inlined method.
func (i InlineInfo) MethodInfoIndex() uint32 {
	if i.EncodesMethodPointer() {
		panic(errors.AssertionFailedf("inline info %d embeds a method pointer", i.Row()))
	}
	return i.Column(inlineInfoMethodIndexIdxOrMethodHi)
}

// MethodPointer returns the embedded method pointer.
func (i InlineInfo) MethodPointer() uint64 {
	if !i.EncodesMethodPointer() {
		panic(errors.AssertionFailedf("inline info %d does not embed a method pointer", i.Row()))
	}
	return uint64(i.Column(inlineInfoMethodIndexIdxOrMethodHi))<<32 |
		uint64(i.Column(inlineInfoExtraDataOrMethodLo))
}

// Method returns the inlined method.
func (i InlineInfo) Method() InlinedMethod {
	if i.EncodesMethodPointer() {
		return EmbeddedMethodPointer(i.MethodPointer())
	}
	return MethodInfoIndex(i.MethodInfoIndex())
}

// DexRegisterMapOffset returns the number of dex registers of the stack map
// up to and including this frame. The frame's own registers end here.
func (i InlineInfo) DexRegisterMapOffset() uint32 {
	return i.Column(inlineInfoDexRegisterMapOffset)
}

// InvokeInfo is a view of one recorded call site.
type InvokeInfo struct {
	bittable.Accessor
}

// PackedNativePc returns the call's native pc divided by the instruction
// alignment.
func (i InvokeInfo) PackedNativePc() uint32 { return i.Column(invokeInfoPackedNativePc) }

// NativePcOffset returns the call's native pc offset.
func (i InvokeInfo) NativePcOffset(isa InstructionSet) uint32 {
	return UnpackNativePc(i.PackedNativePc(), isa)
}

// InvokeType returns the kind of invoke.
func (i InvokeInfo) InvokeType() InvokeType { return InvokeType(i.Column(invokeInfoInvokeType)) }

// MethodInfoIndex returns the method info index of the callee.
func (i InvokeInfo) MethodInfoIndex() uint32 { return i.Column(invokeInfoMethodInfoIndex) }

// MethodIndex returns the callee's dex method index.
func (i InvokeInfo) MethodIndex(mi MethodInfo) uint32 {
	return mi.MethodIndex(i.MethodInfoIndex())
}
