// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package binfmt exposes utilities for formatting bit-packed data with
// descriptive comments. Offsets are in bits.
package binfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
)

// New constructs a new binary formatter.
func New(data []byte) *Formatter {
	numBits := len(data) * bitmem.BitsPerByte
	offsetWidth := strconv.Itoa(max(int(math.Log10(float64(max(numBits-1, 1))))+1, 1))
	return &Formatter{
		region:          bitmem.MakeRegion(data),
		data:            data,
		lineWidth:       32,
		offsetFormatStr: "%0" + offsetWidth + "d-%0" + offsetWidth + "d: ",
	}
}

// Formatter is a utility for formatting bit-packed data with descriptive
// comments.
type Formatter struct {
	buf       bytes.Buffer
	lines     [][2]string // (binary data, comment) tuples
	region    bitmem.Region
	data      []byte
	off       int
	anchorOff int

	// config
	lineWidth       int
	linePrefix      string
	offsetFormatStr string
}

// SetLinePrefix sets a prefix for each line of formatted output.
func (f *Formatter) SetLinePrefix(prefix string) {
	f.linePrefix = prefix
}

// SetAnchorOffset sets the reference point for relative offset calculations to
// the current offset.
func (f *Formatter) SetAnchorOffset() {
	f.anchorOff = f.off
}

// RelativeOffset retrieves the current offset relative to the offset at the
// last time SetAnchorOffset was called.
func (f *Formatter) RelativeOffset() int {
	return f.off - f.anchorOff
}

// LineWidth sets the maximum number of bits formatted on one line.
func (f *Formatter) LineWidth(width int) *Formatter {
	f.lineWidth = width
	return f
}

// More returns true if there are unformatted bits.
func (f *Formatter) More() bool {
	return f.off < f.region.Size()
}

// Remaining returns the number of unformatted bits.
func (f *Formatter) Remaining() int {
	return f.region.Size() - f.off
}

// Offset returns the current bit offset.
func (f *Formatter) Offset() int {
	return f.off
}

// PeekBits reads the next n bits without consuming them.
func (f *Formatter) PeekBits(n int) uint32 {
	return f.region.LoadBits(f.off, n)
}

// Bits formats the next n bits, most significant first. Fields wider than
// the line width continue on following lines, in increasing offset order.
func (f *Formatter) Bits(n int, format string, args ...interface{}) int {
	comment := strings.TrimSpace(fmt.Sprintf(format, args...))
	if n == 0 {
		f.newline("", comment)
		return 0
	}
	total := n
	for n > 0 {
		bitsInLine := min(f.lineWidth, n)
		f.printOffsets(bitsInLine)
		f.printf("b %s", f.region.Subregion(f.off, bitsInLine))
		f.newline(f.buf.String(), comment)
		f.off += bitsInLine
		n -= bitsInLine
		comment = "(continued...)"
	}
	return total
}

// Varint decodes the bit-packed varint at the current offset, formatting its
// bits and prefixing the comment with the decoded value.
func (f *Formatter) Varint(format string, args ...interface{}) uint32 {
	off := f.off
	v := bitmem.DecodeVarintBits(f.region, &off)
	f.Bits(off-f.off, "varint(%d): %s", v, fmt.Sprintf(format, args...))
	return v
}

// Padding formats the bits up to the next byte boundary, if any.
func (f *Formatter) Padding(format string, args ...interface{}) int {
	n := bitmem.BitsToBytesRoundUp(f.off)*bitmem.BitsPerByte - f.off
	if n == 0 {
		return 0
	}
	return f.Bits(n, format, args...)
}

// HexBytesln formats the next n bytes in hexadecimal format. The current
// offset must be byte aligned.
func (f *Formatter) HexBytesln(n int, format string, args ...interface{}) int {
	start := f.byteOffset()
	comment := strings.TrimSpace(fmt.Sprintf(format, args...))
	for i := 0; i < n; {
		bytesInLine := min(f.lineWidth/bitmem.BitsPerByte, n-i)
		f.printOffsets(bytesInLine * bitmem.BitsPerByte)
		f.printf("x %0"+strconv.Itoa(bytesInLine*2)+"x", f.data[start+i:start+i+bytesInLine])
		f.newline(f.buf.String(), comment)
		f.off += bytesInLine * bitmem.BitsPerByte
		i += bytesInLine
		comment = "(continued...)"
	}
	return n
}

// Uvarint decodes the byte-aligned LEB128 value at the current offset,
// formatting it in hexadecimal and prefixing the comment with the decoded
// value.
func (f *Formatter) Uvarint(format string, args ...interface{}) uint64 {
	v, n := binary.Uvarint(f.data[f.byteOffset():])
	if n <= 0 {
		panic(errors.AssertionFailedf("malformed uvarint at bit %d", f.off))
	}
	f.HexBytesln(n, "uvarint(%d): %s", v, fmt.Sprintf(format, args...))
	return v
}

// Comment adds a line holding only a comment.
func (f *Formatter) Comment(format string, args ...interface{}) {
	f.newline("", fmt.Sprintf(format, args...))
}

// String returns the current formatted output.
func (f *Formatter) String() string {
	f.buf.Reset()
	// Identify the max width of the binary data so that we can add padding to
	// align comments on the right.
	binaryLineWidth := 0
	for _, lineData := range f.lines {
		binaryLineWidth = max(binaryLineWidth, len(lineData[0]))
	}
	for _, lineData := range f.lines {
		fmt.Fprint(&f.buf, f.linePrefix)
		fmt.Fprint(&f.buf, lineData[0])
		if len(lineData[1]) > 0 {
			if len(lineData[0]) == 0 {
				// There's no binary data on this line, just a comment. Print
				// the comment left-aligned.
				fmt.Fprint(&f.buf, "# ")
			} else {
				// Align the comment to the right of the binary data.
				fmt.Fprint(&f.buf, strings.Repeat(" ", binaryLineWidth-len(lineData[0])))
				fmt.Fprint(&f.buf, " # ")
			}
			fmt.Fprint(&f.buf, lineData[1])
		}
		fmt.Fprintln(&f.buf)
	}
	return f.buf.String()
}

func (f *Formatter) byteOffset() int {
	if f.off%bitmem.BitsPerByte != 0 {
		panic(errors.AssertionFailedf("bit offset %d is not byte aligned", f.off))
	}
	return f.off / bitmem.BitsPerByte
}

func (f *Formatter) newline(binaryData, comment string) {
	f.lines = append(f.lines, [2]string{binaryData, comment})
	f.buf.Reset()
}

func (f *Formatter) printOffsets(n int) {
	f.printf(f.offsetFormatStr, f.off, f.off+n)
}

func (f *Formatter) printf(format string, args ...interface{}) {
	fmt.Fprintf(&f.buf, format, args...)
}
