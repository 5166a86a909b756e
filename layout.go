// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"fmt"

	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/bittable"
	"github.com/cockroachdb/stackmap/internal/binfmt"
)

// FormatLayout decodes the blob at the start of data and annotates every bit
// of it.
func FormatLayout(data []byte) (string, error) {
	c, err := DecodeCodeInfo(data)
	if err != nil {
		return "", err
	}
	f := binfmt.New(data[:c.size])
	f.Uvarint("payload size")
	formatTableLayout(f, "stack maps", &c.stackMaps, stackMapColumnNames[:])
	formatTableLayout(f, "register masks", &c.registerMasks, registerMaskColumnNames[:])
	formatBitmapLayout(f, "stack masks", &c.stackMasks)
	formatTableLayout(f, "invoke infos", &c.invokeInfos, invokeInfoColumnNames[:])
	formatTableLayout(f, "inline infos", &c.inlineInfos, inlineInfoColumnNames[:])
	formatBitmapLayout(f, "dex register masks", &c.dexRegisterMasks)
	formatTableLayout(f, "dex register maps", &c.dexRegisterMaps, dexRegisterMapColumnNames[:])

	f.Comment("location catalog")
	f.Varint("entries")
	f.Varint("bytes")
	f.Padding("padding")
	off := 0
	for i := 0; i < c.catalog.numEntries; i++ {
		n := c.catalog.entrySize(off)
		f.HexBytesln(n/bitmem.BitsPerByte, "[%d] %s", i, c.catalog.entry(uint32(i)))
		off += n
	}
	f.Varint("dex registers")
	f.Padding("padding")
	return f.String(), nil
}

func formatTableLayout(f *binfmt.Formatter, name string, t *bittable.Table, columns []string) {
	f.Comment("%s", name)
	f.Varint("rows")
	if t.NumRows() == 0 {
		return
	}
	for _, col := range columns {
		f.Varint("%s width", col)
	}
	for row := 0; row < t.NumRows(); row++ {
		for col, colName := range columns {
			if w := t.NumColumnBits(col); w > 0 {
				f.Bits(w, "[%d] %s=%s", row, colName, formatLayoutValue(t.Get(row, col)))
			}
		}
	}
}

func formatBitmapLayout(f *binfmt.Formatter, name string, t *bittable.Table) {
	f.Comment("%s", name)
	f.Varint("rows")
	if t.NumRows() == 0 {
		return
	}
	f.Varint("width")
	for row := 0; row < t.NumRows(); row++ {
		if w := t.NumColumnBits(0); w > 0 {
			f.Bits(w, "[%d]", row)
		}
	}
}

func formatLayoutValue(v uint32) string {
	if v == NoValue {
		return "-"
	}
	return fmt.Sprint(v)
}
