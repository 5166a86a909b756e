// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/bittable"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// Stats is a tree of encoded sizes, in bits, accumulated over any number of
// blobs. The children of a node partition its size.
type Stats struct {
	name     string
	bits     int
	count    int
	children []*Stats
}

// NewStats returns an empty tree whose root is called name.
func NewStats(name string) *Stats {
	return &Stats{name: name}
}

// Name returns the name of the node.
func (s *Stats) Name() string { return s.name }

// Bits returns the total size of the node.
func (s *Stats) Bits() int { return s.bits }

// Count returns the number of times bits were added to the node.
func (s *Stats) Count() int { return s.count }

// Children returns the node's children in the order they were created.
func (s *Stats) Children() []*Stats { return s.children }

// Child returns the child called name, creating it if necessary.
func (s *Stats) Child(name string) *Stats {
	for _, c := range s.children {
		if c.name == name {
			return c
		}
	}
	c := &Stats{name: name}
	s.children = append(s.children, c)
	return c
}

// AddBits adds n bits to the node.
func (s *Stats) AddBits(n int) {
	s.bits += n
	s.count++
}

// String implements fmt.Stringer.
func (s *Stats) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements redact.SafeFormatter.
func (s *Stats) SafeFormat(w redact.SafePrinter, _ rune) {
	s.format(w, "", s.bits)
}

func (s *Stats) format(w redact.SafePrinter, indent string, total int) {
	w.Printf("%s%s %s", redact.SafeString(indent), redact.SafeString(s.name),
		redact.SafeString(crhumanize.Bytes(int64(bitmem.BitsToBytesRoundUp(s.bits)), crhumanize.Compact, crhumanize.OmitI)))
	if total > 0 {
		w.Printf(" %s", redact.SafeString(crhumanize.Percent(float64(s.bits), float64(total))))
	}
	w.Printf(" (%s)\n", redact.SafeString(crhumanize.Count(int64(s.count), crhumanize.Compact)))
	for _, c := range s.children {
		c.format(w, indent+"  ", total)
	}
}

// AddSizeStats adds the size of the blob, broken down by table and column, to
// parent.
func (c *CodeInfo) AddSizeStats(parent *Stats) {
	parent.AddBits(c.size * bitmem.BitsPerByte)
	parent.Child("Header").AddBits(c.headerSize * bitmem.BitsPerByte)
	addTableStats(parent.Child("StackMaps"), &c.stackMaps, stackMapColumnNames[:])
	addTableStats(parent.Child("RegisterMasks"), &c.registerMasks, registerMaskColumnNames[:])
	addTableStats(parent.Child("StackMasks"), &c.stackMasks, []string{"Mask"})
	addTableStats(parent.Child("InvokeInfos"), &c.invokeInfos, invokeInfoColumnNames[:])
	addTableStats(parent.Child("InlineInfos"), &c.inlineInfos, inlineInfoColumnNames[:])
	addTableStats(parent.Child("DexRegisterMasks"), &c.dexRegisterMasks, []string{"Mask"})
	addTableStats(parent.Child("DexRegisterMaps"), &c.dexRegisterMaps, dexRegisterMapColumnNames[:])
	parent.Child("DexRegisterCatalog").AddBits(c.catalog.bitSize())
	parent.Child("NumDexRegisters").AddBits(c.numDexRegBits)

	tablesBits := c.stackMaps.BitSize() + c.registerMasks.BitSize() + c.stackMasks.BitSize() +
		c.invokeInfos.BitSize() + c.inlineInfos.BitSize() + c.dexRegisterMasks.BitSize() +
		c.dexRegisterMaps.BitSize() + c.catalog.bitSize() + c.numDexRegBits
	payloadBits := (c.size - c.headerSize) * bitmem.BitsPerByte
	parent.Child("Padding").AddBits(invariants.SafeSub(payloadBits, tablesBits))
}

func addTableStats(s *Stats, t *bittable.Table, columns []string) {
	s.AddBits(t.BitSize())
	s.Child("Header").AddBits(t.HeaderBitSize())
	for col, name := range columns {
		if col < t.NumColumns() {
			s.Child(name).AddBits(t.NumColumnBits(col) * t.NumRows())
		}
	}
}
