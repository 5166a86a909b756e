// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/internal/base"
)

// MethodInfo is a read-only view of a method info blob: the deduplicated dex
// method indexes referenced by a method's invoke infos and inline infos. The
// blob is stored next to the code info and encoded as
//
//	leb128(count) count*uint32le
type MethodInfo struct {
	indexes []byte
	count   int
}

// MethodInfoSize returns the encoded size of a method info blob holding count
// indexes.
func MethodInfoSize(count int) int {
	return bitmem.UnsignedLeb128Size(uint32(count)) + 4*count
}

// DecodeMethodInfo decodes a method info blob. Errors are marked with
// base.ErrCorruption.
func DecodeMethodInfo(data []byte) (MethodInfo, error) {
	count, n, err := bitmem.DecodeUnsignedLeb128(data)
	if err != nil {
		return MethodInfo{}, base.MarkCorruptionError(err)
	}
	if uint64(len(data)-n) < 4*uint64(count) {
		return MethodInfo{}, base.CorruptionErrorf("method info with %d indexes truncated to %d bytes", count, len(data))
	}
	return MethodInfo{indexes: data[n : n+4*int(count)], count: int(count)}, nil
}

// NumMethodIndexes returns the number of indexes.
func (m MethodInfo) NumMethodIndexes() int { return m.count }

// MethodIndex returns the dex method index stored at i.
func (m MethodInfo) MethodIndex(i uint32) uint32 {
	if int(i) >= m.count {
		panic(errors.AssertionFailedf("method info index %d out of range [0, %d)", i, m.count))
	}
	return binary.LittleEndian.Uint32(m.indexes[4*i:])
}

func appendMethodInfo(buf []byte, indexes []uint32) []byte {
	buf = bitmem.AppendUnsignedLeb128(buf, uint32(len(indexes)))
	for _, idx := range indexes {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	return buf
}
