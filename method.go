// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// DexFile identifies the bytecode file a method belongs to.
type DexFile interface {
	Location() string
	Checksum() uint32
}

// Method is a handle to a runtime method. An inlined method is recorded
// either by its Pointer or by its DexMethodIndex, depending on
// StreamOptions.EncodeMethodPointer.
type Method interface {
	DexMethodIndex() uint32
	DexFile() DexFile
	// Pointer returns the address of the runtime method. It must be even.
	Pointer() uint64
}

// IsSameDexFile returns true if a and b refer to the same dex file.
func IsSameDexFile(a, b DexFile) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || (a.Location() == b.Location() && a.Checksum() == b.Checksum())
}

// InlinedMethod identifies the method of an inlined frame: either an embedded
// runtime method pointer or an index into the method info table.
type InlinedMethod struct {
	embedded bool
	value    uint64
}

// EmbeddedMethodPointer returns an InlinedMethod holding a method pointer.
func EmbeddedMethodPointer(ptr uint64) InlinedMethod {
	return InlinedMethod{embedded: true, value: ptr}
}

// MethodInfoIndex returns an InlinedMethod referring to a method info entry.
func MethodInfoIndex(index uint32) InlinedMethod {
	return InlinedMethod{value: uint64(index)}
}

// Pointer returns the embedded method pointer, if any.
func (m InlinedMethod) Pointer() (uint64, bool) {
	return m.value, m.embedded
}

// Index returns the method info index, if any.
func (m InlinedMethod) Index() (uint32, bool) {
	return uint32(m.value), !m.embedded
}

// SafeFormat implements redact.SafeFormatter.
func (m InlinedMethod) SafeFormat(w redact.SafePrinter, _ rune) {
	if m.embedded {
		w.Printf("method@%#x", redact.Safe(m.value))
	} else {
		w.Printf("method_info[%d]", redact.Safe(m.value))
	}
}

// String implements fmt.Stringer.
func (m InlinedMethod) String() string {
	return redact.StringWithoutMarkers(m)
}

// InvokeType is the kind of invoke instruction at a call site.
type InvokeType uint32

const (
	InvokeStatic InvokeType = iota
	InvokeDirect
	InvokeVirtual
	InvokeSuper
	InvokeInterface
	InvokePolymorphic
	InvokeCustom
)

var invokeTypeNames = [...]string{
	InvokeStatic:      "static",
	InvokeDirect:      "direct",
	InvokeVirtual:     "virtual",
	InvokeSuper:       "super",
	InvokeInterface:   "interface",
	InvokePolymorphic: "polymorphic",
	InvokeCustom:      "custom",
}

// String implements fmt.Stringer.
func (t InvokeType) String() string {
	if int(t) < len(invokeTypeNames) {
		return invokeTypeNames[t]
	}
	return fmt.Sprintf("InvokeType(%d)", uint32(t))
}

// StackMapKind distinguishes stack maps by their purpose.
type StackMapKind uint8

const (
	// KindDefault is a safepoint stack map.
	KindDefault StackMapKind = iota
	// KindCatch is the entry of a catch handler.
	KindCatch
	// KindOSR marks an on-stack-replacement entry point.
	KindOSR
	// KindDebug is only used by debuggers and is ignored by dex pc lookups.
	KindDebug
)

// The kind column stores Default as NoValue so that methods without catch,
// OSR or debug maps use a zero-width column.
var kindEncoding = [...]uint32{
	KindDefault: NoValue,
	KindCatch:   0,
	KindOSR:     1,
	KindDebug:   2,
}

func (k StackMapKind) encode() uint32 {
	if int(k) >= len(kindEncoding) {
		panic(errors.AssertionFailedf("unknown stack map kind %d", redact.Safe(uint8(k))))
	}
	return kindEncoding[k]
}

func validKindEncoding(v uint32) bool {
	return v == NoValue || v < uint32(len(kindEncoding)-1)
}

func decodeKind(v uint32) StackMapKind {
	switch v {
	case NoValue:
		return KindDefault
	case 0:
		return KindCatch
	case 1:
		return KindOSR
	case 2:
		return KindDebug
	}
	panic(errors.AssertionFailedf("unknown stack map kind encoding %d", v))
}

var kindNames = [...]string{
	KindDefault: "default",
	KindCatch:   "catch",
	KindOSR:     "osr",
	KindDebug:   "debug",
}

// String implements fmt.Stringer.
func (k StackMapKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (k StackMapKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(k.String()))
}
