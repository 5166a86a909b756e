// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import "github.com/cockroachdb/stackmap/internal/base"

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger = base.DefaultLogger

// StreamOptions configures a Stream. The zero value is usable after
// EnsureDefaults.
type StreamOptions struct {
	// InstructionSet determines the alignment of native pc offsets. The
	// default is the instruction set of the running process.
	InstructionSet InstructionSet

	// EncodeMethodPointer decides, per inlined method, whether the inline info
	// embeds the method's pointer instead of a method info index. The
	// default never embeds pointers.
	EncodeMethodPointer func(m Method) bool

	// VerifyEncoding decodes every blob after FillInCodeInfo and checks that
	// it reproduces the recorded input. Verification always runs in
	// invariant builds.
	VerifyEncoding bool

	// Logger is used to report table sizes when Verbose is set.
	Logger Logger

	// Verbose logs the encoded size of each table when a stream is
	// finalized.
	Verbose bool

	// Metrics, if set, records encoding statistics.
	Metrics *Metrics
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *StreamOptions) EnsureDefaults() *StreamOptions {
	if o == nil {
		o = &StreamOptions{}
	}
	if o.InstructionSet == ISANone {
		o.InstructionSet = RuntimeInstructionSet()
	}
	if o.EncodeMethodPointer == nil {
		o.EncodeMethodPointer = func(Method) bool { return false }
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	return o
}
