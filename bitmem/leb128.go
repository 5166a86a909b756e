// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bitmem

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// The unsigned LEB128 encoding is byte-for-byte the same as Go's uvarint.

// AppendUnsignedLeb128 appends the unsigned LEB128 encoding of v to buf.
func AppendUnsignedLeb128(buf []byte, v uint32) []byte {
	return binary.AppendUvarint(buf, uint64(v))
}

// UnsignedLeb128Size returns the encoded size of v in bytes.
func UnsignedLeb128Size(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// DecodeUnsignedLeb128 decodes an unsigned LEB128 value from the start of buf,
// returning the value and the number of bytes consumed.
func DecodeUnsignedLeb128(buf []byte) (uint32, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, errors.Newf("bitmem: malformed leb128 (%d bytes)", len(buf))
	}
	if v > 1<<32-1 {
		return 0, 0, errors.Newf("bitmem: leb128 value %d overflows uint32", v)
	}
	return uint32(v), n, nil
}
