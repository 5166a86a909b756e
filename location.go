// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// LocationKind describes where the value of a dex register lives.
type LocationKind int8

const (
	// LocationInvalid marks a register whose location has not been resolved.
	// It is never encoded.
	LocationInvalid LocationKind = -2
	// LocationNone marks a register that is not live.
	LocationNone LocationKind = -1
	// LocationInStack is a stack slot; the value is a byte offset from the
	// stack pointer.
	LocationInStack LocationKind = 0
	// LocationInRegister is a core register.
	LocationInRegister LocationKind = 1
	// LocationInRegisterHigh is the high half of a core register pair.
	LocationInRegisterHigh LocationKind = 2
	// LocationInFpuRegister is a floating point register.
	LocationInFpuRegister LocationKind = 3
	// LocationInFpuRegisterHigh is the high half of a floating point register
	// pair.
	LocationInFpuRegisterHigh LocationKind = 4
	// LocationConstant is a constant; the value is the constant itself.
	LocationConstant LocationKind = 5
)

var locationKindNames = map[LocationKind]string{
	LocationInvalid:           "invalid",
	LocationNone:              "none",
	LocationInStack:           "stack",
	LocationInRegister:        "reg",
	LocationInRegisterHigh:    "reg-hi",
	LocationInFpuRegister:     "fpu",
	LocationInFpuRegisterHigh: "fpu-hi",
	LocationConstant:          "const",
}

// String implements fmt.Stringer.
func (k LocationKind) String() string {
	if s, ok := locationKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (k LocationKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(k.String()))
}

// IsRegister returns true for the register kinds, whose values are register
// numbers.
func (k LocationKind) IsRegister() bool {
	return k >= LocationInRegister && k <= LocationInFpuRegisterHigh
}

// DexRegisterLocation is the location of a dex register at a stack map.
type DexRegisterLocation struct {
	Kind  LocationKind
	Value int32
}

// NoLocation returns the location of a dead register.
func NoLocation() DexRegisterLocation {
	return DexRegisterLocation{Kind: LocationNone}
}

// InvalidLocation returns the placeholder for an unresolved register.
func InvalidLocation() DexRegisterLocation {
	return DexRegisterLocation{Kind: LocationInvalid}
}

// IsLive returns true unless the register is dead or unresolved.
func (l DexRegisterLocation) IsLive() bool {
	return l.Kind != LocationNone && l.Kind != LocationInvalid
}

// StackOffsetInBytes returns the stack offset of an in-stack location.
func (l DexRegisterLocation) StackOffsetInBytes() int32 {
	if l.Kind != LocationInStack {
		panic(errors.AssertionFailedf("%s is not a stack location", l))
	}
	return l.Value
}

// Constant returns the value of a constant location.
func (l DexRegisterLocation) Constant() int32 {
	if l.Kind != LocationConstant {
		panic(errors.AssertionFailedf("%s is not a constant", l))
	}
	return l.Value
}

// MachineRegister returns the register number of a register location.
func (l DexRegisterLocation) MachineRegister() int32 {
	if !l.Kind.IsRegister() {
		panic(errors.AssertionFailedf("%s is not a register location", l))
	}
	return l.Value
}

// String implements fmt.Stringer.
func (l DexRegisterLocation) String() string {
	return redact.StringWithoutMarkers(l)
}

// SafeFormat implements redact.SafeFormatter.
func (l DexRegisterLocation) SafeFormat(w redact.SafePrinter, _ rune) {
	switch l.Kind {
	case LocationNone, LocationInvalid:
		w.Print(l.Kind)
	case LocationInStack:
		w.Printf("sp+%d", redact.Safe(l.Value))
	case LocationInRegister, LocationInFpuRegister, LocationInRegisterHigh, LocationInFpuRegisterHigh:
		w.Printf("%s%d", l.Kind, redact.Safe(l.Value))
	case LocationConstant:
		w.Printf("#%d", redact.Safe(l.Value))
	default:
		w.Printf("%s(%d)", l.Kind, redact.Safe(l.Value))
	}
}
