// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
)

// InstructionSet identifies the target architecture of compiled code. It
// determines the alignment of native pc offsets, which are stored divided by
// the alignment.
type InstructionSet uint8

const (
	ISANone InstructionSet = iota
	ISAArm
	ISAThumb2
	ISAArm64
	ISAX86
	ISAX86_64
	ISAMips
	ISAMips64
	ISARiscv64
)

var isaNames = [...]string{
	ISANone:    "none",
	ISAArm:     "arm",
	ISAThumb2:  "thumb2",
	ISAArm64:   "arm64",
	ISAX86:     "x86",
	ISAX86_64:  "x86_64",
	ISAMips:    "mips",
	ISAMips64:  "mips64",
	ISARiscv64: "riscv64",
}

// String implements fmt.Stringer.
func (isa InstructionSet) String() string {
	if int(isa) < len(isaNames) {
		return isaNames[isa]
	}
	return "unknown"
}

// ParseInstructionSet parses the name returned by String. The Go
// architecture names amd64 and 386 are also accepted.
func ParseInstructionSet(s string) (InstructionSet, error) {
	switch s = strings.ToLower(s); s {
	case "amd64", "x86-64":
		return ISAX86_64, nil
	case "386":
		return ISAX86, nil
	}
	for i, name := range isaNames {
		if i != int(ISANone) && name == s {
			return InstructionSet(i), nil
		}
	}
	return ISANone, errors.Newf("unknown instruction set %q", s)
}

// RuntimeInstructionSet returns the instruction set of the running process.
func RuntimeInstructionSet() InstructionSet {
	switch runtime.GOARCH {
	case "arm":
		return ISAThumb2
	case "arm64":
		return ISAArm64
	case "386":
		return ISAX86
	case "amd64":
		return ISAX86_64
	case "mips", "mipsle":
		return ISAMips
	case "mips64", "mips64le":
		return ISAMips64
	case "riscv64":
		return ISARiscv64
	}
	return ISANone
}

// InstructionAlignment returns the alignment in bytes of instructions.
func (isa InstructionSet) InstructionAlignment() uint32 {
	switch isa {
	case ISAArm, ISAThumb2, ISARiscv64:
		return 2
	case ISAArm64, ISAMips, ISAMips64:
		return 4
	case ISAX86, ISAX86_64:
		return 1
	}
	panic(errors.AssertionFailedf("no alignment for instruction set %s", isa))
}

// PackNativePc divides a native pc offset by the instruction alignment.
func PackNativePc(nativePcOffset uint32, isa InstructionSet) uint32 {
	align := isa.InstructionAlignment()
	if nativePcOffset%align != 0 {
		panic(errors.AssertionFailedf("native pc %d is not aligned to %d for %s", nativePcOffset, align, isa))
	}
	return nativePcOffset / align
}

// UnpackNativePc reverses PackNativePc.
func UnpackNativePc(packed uint32, isa InstructionSet) uint32 {
	return packed * isa.InstructionAlignment()
}
