// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/cockroachdb/stackmap/bittable"
	"github.com/cockroachdb/stackmap/internal/invariants"
)

// StackMapEntry describes a stack map passed to Stream.BeginStackMapEntry.
type StackMapEntry struct {
	// DexPc is the bytecode pc, or NoDexPc.
	DexPc uint32
	// NativePcOffset is the offset of the safepoint within the method's code.
	// It must be aligned to the instruction set's alignment.
	NativePcOffset uint32
	// RegisterMask is the set of core registers holding references.
	RegisterMask uint32
	// StackMask is the set of stack slots holding references.
	StackMask StackMask
	// NumDexRegisters is the number of dex registers of the method. All stack
	// maps recording registers must agree on it.
	NumDexRegisters uint32
	// InliningDepth is the number of inline info entries that will be added
	// to the stack map.
	InliningDepth int
	// Kind is the purpose of the stack map.
	Kind StackMapKind
}

// encodingCheck verifies one recorded expectation against the decoded blob.
type encodingCheck func(c *CodeInfo) error

// Stream builds the code info blob of a single compiled method. The compiler
// records stack maps in order:
//
//	BeginStackMapEntry
//	  AddDexRegisterEntry*  (the method's own registers)
//	  AddInvoke?
//	  (BeginInlineInfoEntry AddDexRegisterEntry* EndInlineInfoEntry)*
//	EndStackMapEntry
//
// and then calls PrepareForFillIn and FillInCodeInfo once. Calls out of
// order are compiler bugs and panic.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	opts StreamOptions

	stackMaps        bittable.Builder
	registerMasks    bittable.Builder
	stackMasks       bittable.BitmapBuilder
	invokeInfos      bittable.Builder
	inlineInfos      bittable.Builder
	dexRegisterMasks bittable.BitmapBuilder
	dexRegisterMaps  bittable.Builder
	catalog          catalogBuilder
	methodInfos      bittable.Builder

	// numDexRegisters is fixed by the first stack map that records registers
	// of its own or of an inlined frame.
	numDexRegisters     uint32
	haveNumDexRegisters bool

	inStackMap   bool
	inInlineInfo bool
	current      struct {
		row                     [numStackMapColumns]uint32
		inlineInfos             []uint32
		dexRegisters            []DexRegisterLocation
		numDexRegisters         uint32
		expectedNumDexRegisters uint32
		inliningDepth           int
	}

	// Delta compression state, indexed by flat register slot: the location
	// most recently recorded in a dex register map and the index of the
	// stack map that recorded it.
	previousDexRegisters []DexRegisterLocation
	dexRegisterTimestamp []uint32
	tempDexRegisterMask  BitVector
	tempDexRegisterMap   []uint32

	stackMaskArgs      []StackMask
	resolvedStackMasks []*BitVector
	invokeStackMap     []int

	out      bitmem.Writer
	prepared bool
	sizes    tableSizes

	checks []encodingCheck
}

// tableSizes records the encoded size in bits of each table of the last
// prepared blob.
type tableSizes [numTables]int

const (
	tableStackMaps = iota
	tableRegisterMasks
	tableStackMasks
	tableInvokeInfos
	tableInlineInfos
	tableDexRegisterMasks
	tableDexRegisterMaps
	tableCatalog
	numTables
)

var tableNames = [numTables]string{
	"StackMaps", "RegisterMasks", "StackMasks", "InvokeInfos", "InlineInfos",
	"DexRegisterMasks", "DexRegisterMaps", "DexRegisterCatalog",
}

// NewStream returns a stream configured with opts.
func NewStream(opts *StreamOptions) *Stream {
	s := &Stream{}
	if opts != nil {
		s.opts = *opts
	}
	s.opts.EnsureDefaults()
	s.stackMaps.Init(numStackMapColumns)
	s.registerMasks.Init(numRegisterMaskColumns)
	s.stackMasks.Init()
	s.invokeInfos.Init(numInvokeInfoColumns)
	s.inlineInfos.Init(numInlineInfoColumns)
	s.dexRegisterMasks.Init()
	s.dexRegisterMaps.Init(numDexRegisterMapColumns)
	s.catalog.init()
	s.methodInfos.Init(1)
	return s
}

// Reset discards all recorded stack maps, retaining allocated memory, so the
// stream can be used for another method.
func (s *Stream) Reset() {
	s.stackMaps.Reset()
	s.registerMasks.Reset()
	s.stackMasks.Reset()
	s.invokeInfos.Reset()
	s.inlineInfos.Reset()
	s.dexRegisterMasks.Reset()
	s.dexRegisterMaps.Reset()
	s.catalog.init()
	s.methodInfos.Reset()
	s.numDexRegisters = 0
	s.haveNumDexRegisters = false
	s.inStackMap = false
	s.inInlineInfo = false
	s.current.inlineInfos = s.current.inlineInfos[:0]
	s.current.dexRegisters = s.current.dexRegisters[:0]
	s.previousDexRegisters = s.previousDexRegisters[:0]
	s.dexRegisterTimestamp = s.dexRegisterTimestamp[:0]
	s.stackMaskArgs = s.stackMaskArgs[:0]
	s.resolvedStackMasks = nil
	s.invokeStackMap = s.invokeStackMap[:0]
	s.out.Reset()
	s.prepared = false
	s.sizes = tableSizes{}
	s.checks = s.checks[:0]
}

func (s *Stream) verifying() bool {
	return invariants.Enabled || s.opts.VerifyEncoding
}

func (s *Stream) addCheck(c encodingCheck) {
	if s.verifying() {
		s.checks = append(s.checks, c)
	}
}

func (s *Stream) assertOpen(op redact.SafeString) {
	if s.prepared {
		panic(errors.AssertionFailedf("%s called after PrepareForFillIn", op))
	}
	if !s.inStackMap {
		panic(errors.AssertionFailedf("%s called outside of a stack map", op))
	}
}

// NumStackMaps returns the number of completed stack maps.
func (s *Stream) NumStackMaps() int { return s.stackMaps.Len() }

// StackMapNativePcOffset returns the native pc offset of stack map i.
func (s *Stream) StackMapNativePcOffset(i int) uint32 {
	return UnpackNativePc(s.stackMaps.Row(i)[stackMapPackedNativePc], s.opts.InstructionSet)
}

// SetStackMapNativePcOffset moves stack map i, and any call site recorded
// with it, to a new native pc offset. It is used when code is relocated after
// stack maps were recorded, and must be called before PrepareForFillIn.
func (s *Stream) SetStackMapNativePcOffset(i int, nativePcOffset uint32) {
	if s.prepared {
		panic(errors.AssertionFailedf("SetStackMapNativePcOffset called after PrepareForFillIn"))
	}
	packed := PackNativePc(nativePcOffset, s.opts.InstructionSet)
	s.stackMaps.Set(i, stackMapPackedNativePc, packed)
	for row, sm := range s.invokeStackMap {
		if sm == i {
			s.invokeInfos.Set(row, invokeInfoPackedNativePc, packed)
		}
	}
}

// BeginStackMapEntry opens a stack map.
func (s *Stream) BeginStackMapEntry(e StackMapEntry) {
	if s.prepared {
		panic(errors.AssertionFailedf("BeginStackMapEntry called after PrepareForFillIn"))
	}
	if s.inStackMap {
		panic(errors.AssertionFailedf("EndStackMapEntry not called after BeginStackMapEntry"))
	}
	s.inStackMap = true
	if e.NumDexRegisters != 0 {
		s.setNumDexRegisters(e.NumDexRegisters)
	}

	isa := s.opts.InstructionSet
	row := &s.current.row
	for i := range row {
		row[i] = NoValue
	}
	row[stackMapKind] = e.Kind.encode()
	row[stackMapPackedNativePc] = PackNativePc(e.NativePcOffset, isa)
	row[stackMapDexPc] = e.DexPc
	if e.RegisterMask != 0 {
		shift := uint32(bits.TrailingZeros32(e.RegisterMask))
		row[stackMapRegisterMaskIndex] = s.registerMasks.Dedup(e.RegisterMask>>shift, shift)
	}
	// The stack mask index is assigned by PrepareForFillIn, once deferred
	// masks are final.
	s.stackMaskArgs = append(s.stackMaskArgs, e.StackMask)

	s.current.inlineInfos = s.current.inlineInfos[:0]
	s.current.dexRegisters = s.current.dexRegisters[:0]
	s.current.numDexRegisters = e.NumDexRegisters
	s.current.expectedNumDexRegisters = e.NumDexRegisters
	s.current.inliningDepth = e.InliningDepth

	index := s.stackMaps.Len()
	s.addCheck(func(c *CodeInfo) error {
		nativePc := s.StackMapNativePcOffset(index)
		switch e.Kind {
		case KindDefault, KindOSR:
			// OSR entries duplicate the preceding stack map, so the lookup may
			// return an earlier row with the same pc.
			found := c.StackMapForNativePcOffset(nativePc, isa)
			if !found.IsValid() || found.NativePcOffset(isa) != nativePc {
				return errors.AssertionFailedf("stack map %d not found at native pc %d", index, nativePc)
			}
		case KindCatch:
			// Catch stack maps must have distinct dex pcs; the lookup
			// returns only the last one at a given dex pc.
			if found := c.CatchStackMapForDexPc(e.DexPc); found.Row() != uint32(index) {
				return errors.AssertionFailedf("catch stack map %d not found at dex pc %d", index, e.DexPc)
			}
		}
		sm := c.StackMapAt(index)
		if got := sm.NativePcOffset(isa); got != nativePc {
			return errors.AssertionFailedf("stack map %d: native pc %d, expected %d", index, got, nativePc)
		}
		if got := sm.Kind(); got != e.Kind {
			return errors.AssertionFailedf("stack map %d: kind %s, expected %s", index, got, e.Kind)
		}
		if got := sm.DexPc(); got != e.DexPc {
			return errors.AssertionFailedf("stack map %d: dex pc %d, expected %d", index, got, e.DexPc)
		}
		if got := c.RegisterMaskOf(sm); got != e.RegisterMask {
			return errors.AssertionFailedf("stack map %d: register mask %#x, expected %#x", index, got, e.RegisterMask)
		}
		seen := c.StackMaskOf(sm)
		want := s.resolvedStackMasks[index]
		n := seen.Size()
		if want != nil {
			n = max(n, want.NumBits())
		}
		for b := 0; b < n; b++ {
			got := b < seen.Size() && seen.LoadBit(b)
			if exp := want != nil && want.IsBitSet(b); got != exp {
				return errors.AssertionFailedf("stack map %d: stack mask bit %d is %t, expected %t", index, b, got, exp)
			}
		}
		return nil
	})
}

// setNumDexRegisters records the method-wide register count, which every
// stack map with registers must agree on.
func (s *Stream) setNumDexRegisters(n uint32) {
	if !s.haveNumDexRegisters {
		s.numDexRegisters, s.haveNumDexRegisters = n, true
	} else if s.numDexRegisters != n {
		panic(errors.AssertionFailedf("inconsistent register count: %d, previously %d", n, s.numDexRegisters))
	}
}

// AddDexRegisterEntry appends the location of the next dex register. The
// method's own registers come first, followed by the registers of each
// inlined frame.
func (s *Stream) AddDexRegisterEntry(kind LocationKind, value int32) {
	s.assertOpen("AddDexRegisterEntry")
	if uint32(len(s.current.dexRegisters)) >= s.current.expectedNumDexRegisters {
		panic(errors.AssertionFailedf("more than the expected %d dex registers", s.current.expectedNumDexRegisters))
	}
	switch kind {
	case LocationInvalid:
		panic(errors.AssertionFailedf("invalid dex register location"))
	case LocationNone:
		value = 0
	}
	s.current.dexRegisters = append(s.current.dexRegisters, DexRegisterLocation{Kind: kind, Value: value})
}

// AddInvoke records the call site at the current stack map's native pc.
func (s *Stream) AddInvoke(invokeType InvokeType, dexMethodIndex uint32) {
	s.assertOpen("AddInvoke")
	packedPc := s.current.row[stackMapPackedNativePc]
	methodInfoIndex := s.methodInfos.Dedup(dexMethodIndex)
	row := s.invokeInfos.Add(packedPc, uint32(invokeType), methodInfoIndex)
	s.invokeStackMap = append(s.invokeStackMap, s.stackMaps.Len())

	isa := s.opts.InstructionSet
	s.addCheck(func(c *CodeInfo) error {
		ii := c.InvokeInfoAt(int(row))
		if got, want := ii.PackedNativePc(), s.invokeInfos.Row(int(row))[invokeInfoPackedNativePc]; got != want {
			return errors.AssertionFailedf("invoke info %d: native pc %d, expected %d",
				row, UnpackNativePc(got, isa), UnpackNativePc(want, isa))
		}
		if got := ii.InvokeType(); got != invokeType {
			return errors.AssertionFailedf("invoke info %d: type %s, expected %s", row, got, invokeType)
		}
		if got := ii.MethodInfoIndex(); got != methodInfoIndex {
			return errors.AssertionFailedf("invoke info %d: method info index %d, expected %d", row, got, methodInfoIndex)
		}
		return nil
	})
}

// BeginInlineInfoEntry opens the next (deeper) inlined frame of the current
// stack map.
func (s *Stream) BeginInlineInfoEntry(
	method Method, dexPc uint32, numDexRegisters uint32, outerDexFile DexFile,
) {
	s.assertOpen("BeginInlineInfoEntry")
	if s.inInlineInfo {
		panic(errors.AssertionFailedf("EndInlineInfoEntry not called after BeginInlineInfoEntry"))
	}
	s.inInlineInfo = true
	if numDexRegisters != 0 {
		// Inlined registers follow the method's own in the flat register
		// list, so the stack map's own count must be the method-wide one.
		s.setNumDexRegisters(s.current.numDexRegisters)
	}
	s.current.expectedNumDexRegisters += numDexRegisters

	var im InlinedMethod
	if s.opts.EncodeMethodPointer(method) {
		ptr := method.Pointer()
		if ptr&1 != 0 {
			panic(errors.AssertionFailedf("method pointer %#x is not 2-byte aligned", ptr))
		}
		im = EmbeddedMethodPointer(ptr)
	} else {
		if dexPc != NoDexPc && s.verifying() && !IsSameDexFile(outerDexFile, method.DexFile()) {
			panic(errors.AssertionFailedf("inlined method %d is not from the outer dex file", method.DexMethodIndex()))
		}
		im = MethodInfoIndex(s.methodInfos.Dedup(method.DexMethodIndex()))
	}
	var hi, lo uint32
	if ptr, ok := im.Pointer(); ok {
		hi, lo = uint32(ptr>>32), uint32(ptr)
	} else {
		idx, _ := im.Index()
		hi, lo = idx, inlineInfoExtraData
	}
	s.current.inlineInfos = append(s.current.inlineInfos,
		inlineInfoMore, hi, dexPc, lo, s.current.expectedNumDexRegisters)

	index := s.stackMaps.Len()
	depth := len(s.current.inlineInfos)/numInlineInfoColumns - 1
	dexMethodIndex := method.DexMethodIndex()
	s.addCheck(func(c *CodeInfo) error {
		sm := c.StackMapAt(index)
		if d := c.InlineDepthOf(sm); depth >= d {
			return errors.AssertionFailedf("stack map %d: inline depth %d, expected more than %d", index, d, depth)
		}
		ii := c.InlineInfoAtDepth(sm, depth)
		if got := ii.DexPc(); got != dexPc {
			return errors.AssertionFailedf("stack map %d depth %d: dex pc %d, expected %d", index, depth, got, dexPc)
		}
		if got := ii.Method(); got != im {
			return errors.AssertionFailedf("stack map %d depth %d: method %s, expected %s", index, depth, got, im)
		}
		if idx, ok := im.Index(); ok {
			if got := s.methodInfos.Row(int(idx))[0]; got != dexMethodIndex {
				return errors.AssertionFailedf("stack map %d depth %d: method index %d, expected %d",
					index, depth, got, dexMethodIndex)
			}
		}
		return nil
	})
}

// EndInlineInfoEntry closes the current inlined frame.
func (s *Stream) EndInlineInfoEntry() {
	if !s.inInlineInfo {
		panic(errors.AssertionFailedf("EndInlineInfoEntry called outside of an inline info"))
	}
	if n := uint32(len(s.current.dexRegisters)); n != s.current.expectedNumDexRegisters {
		panic(errors.AssertionFailedf("inline info has %d dex registers; expected %d",
			n, s.current.expectedNumDexRegisters))
	}
	s.inInlineInfo = false
}

// EndStackMapEntry closes the current stack map.
func (s *Stream) EndStackMapEntry() {
	s.assertOpen("EndStackMapEntry")
	if s.inInlineInfo {
		panic(errors.AssertionFailedf("EndInlineInfoEntry not called before EndStackMapEntry"))
	}
	s.inStackMap = false

	row := &s.current.row
	if n := len(s.current.inlineInfos) / numInlineInfoColumns; n != s.current.inliningDepth {
		panic(errors.AssertionFailedf("stack map has %d inline infos; expected %d", n, s.current.inliningDepth))
	} else if n > 0 {
		s.current.inlineInfos[(n-1)*numInlineInfoColumns+inlineInfoIsLast] = inlineInfoLast
		row[stackMapInlineInfoIndex] = s.inlineInfos.Dedup(s.current.inlineInfos...)
	}

	if len(s.current.dexRegisters) != 0 {
		if n := uint32(len(s.current.dexRegisters)); n != s.current.expectedNumDexRegisters {
			panic(errors.AssertionFailedf("stack map has %d dex registers; expected %d",
				n, s.current.expectedNumDexRegisters))
		}
		s.createDexRegisterMap()
	}
	s.stackMaps.Add(row[:]...)
}

// createDexRegisterMap records the registers of the current stack map that
// changed since they were last recorded, or that were last recorded too far
// back for a reader to find.
func (s *Stream) createDexRegisterMap() {
	regs := s.current.dexRegisters
	// The delta state only ever grows. Slots beyond the current stack map's
	// registers keep their last recorded value, which is what a reader
	// scanning backwards would find.
	for len(s.previousDexRegisters) < len(regs) {
		s.previousDexRegisters = append(s.previousDexRegisters, NoLocation())
		s.dexRegisterTimestamp = append(s.dexRegisterTimestamp, 0)
	}

	now := uint32(s.stackMaps.Len())
	s.tempDexRegisterMask.ClearAllBits()
	s.tempDexRegisterMap = s.tempDexRegisterMap[:0]
	for i, loc := range regs {
		distance := now - s.dexRegisterTimestamp[i]
		if s.previousDexRegisters[i] != loc || distance > MaxDexRegisterMapSearchDistance {
			catalogIndex := uint32(NoValue)
			if loc.IsLive() {
				catalogIndex = s.catalog.dedup(loc)
			}
			s.tempDexRegisterMask.SetBit(i)
			s.tempDexRegisterMap = append(s.tempDexRegisterMap, catalogIndex)
			s.previousDexRegisters[i] = loc
			s.dexRegisterTimestamp[i] = now
		}
	}

	row := &s.current.row
	if s.tempDexRegisterMask.HighestBitSet() >= 0 {
		row[stackMapDexRegisterMaskIndex] = s.dexRegisterMasks.Dedup(s.tempDexRegisterMask.Region())
	}
	row[stackMapDexRegisterMapIndex] = s.dexRegisterMaps.Dedup(s.tempDexRegisterMap...)

	index := int(now)
	expected := slices.Clone(regs)
	s.addCheck(func(c *CodeInfo) error {
		sm := c.StackMapAt(index)
		got := c.DexRegisterMapOf(sm)
		for _, ii := range c.InlineInfosOf(sm) {
			got = append(got, c.InlineDexRegisterMapOf(sm, ii)...)
		}
		if len(got) != len(expected) {
			return errors.AssertionFailedf("stack map %d: %d dex registers, expected %d", index, len(got), len(expected))
		}
		for i := range expected {
			if got[i] != expected[i] {
				return errors.AssertionFailedf("stack map %d: dex register %d is %s, expected %s",
					index, i, got[i], expected[i])
			}
		}
		return nil
	})
}

// PrepareForFillIn finalizes the stream: deferred stack masks are read and
// deduplicated and all tables are encoded. It returns the size of the buffer
// to pass to FillInCodeInfo.
func (s *Stream) PrepareForFillIn() int {
	if s.inStackMap {
		panic(errors.AssertionFailedf("EndStackMapEntry not called before PrepareForFillIn"))
	}
	if s.prepared {
		panic(errors.AssertionFailedf("PrepareForFillIn called twice"))
	}
	s.prepared = true

	s.resolvedStackMasks = make([]*BitVector, len(s.stackMaskArgs))
	for i, m := range s.stackMaskArgs {
		v := m.resolve()
		s.resolvedStackMasks[i] = v
		if v != nil && v.HighestBitSet() >= 0 {
			s.stackMaps.Set(i, stackMapStackMaskIndex, s.stackMasks.Dedup(v.Region()))
		}
	}

	s.out.Reset()
	for t, encode := range [numTables]func(w *bitmem.Writer){
		tableStackMaps:        s.stackMaps.Encode,
		tableRegisterMasks:    s.registerMasks.Encode,
		tableStackMasks:       s.stackMasks.Encode,
		tableInvokeInfos:      s.invokeInfos.Encode,
		tableInlineInfos:      s.inlineInfos.Encode,
		tableDexRegisterMasks: s.dexRegisterMasks.Encode,
		tableDexRegisterMaps:  s.dexRegisterMaps.Encode,
		tableCatalog:          s.catalog.encode,
	} {
		start := s.out.BitOffset()
		encode(&s.out)
		s.sizes[t] = s.out.BitOffset() - start
	}
	s.out.WriteVarint(s.numDexRegisters)

	payload := len(s.out.Data())
	size := bitmem.UnsignedLeb128Size(uint32(payload)) + payload
	if m := s.opts.Metrics; m != nil {
		m.EncodedBytes.Observe(float64(size))
		m.StackMaps.Add(float64(s.stackMaps.Len()))
	}
	if s.opts.Verbose {
		s.opts.Logger.Infof("stackmap: %d stack maps encoded in %d bytes: %s",
			s.stackMaps.Len(), size, s.sizes)
	}
	return size
}

// SafeFormat implements redact.SafeFormatter.
func (ts tableSizes) SafeFormat(w redact.SafePrinter, _ rune) {
	for i, n := range ts {
		if i > 0 {
			w.SafeString(" ")
		}
		w.Printf("%s=%d", redact.SafeString(tableNames[i]), redact.Safe(n))
	}
}

// String implements fmt.Stringer.
func (ts tableSizes) String() string {
	return redact.StringWithoutMarkers(ts)
}

// FillInCodeInfo writes the blob into region, which must be exactly the size
// returned by PrepareForFillIn. When verification is enabled the blob is
// decoded and every recorded stack map is checked against it.
func (s *Stream) FillInCodeInfo(region []byte) {
	if !s.prepared {
		panic(errors.AssertionFailedf("PrepareForFillIn not called before FillInCodeInfo"))
	}
	payload := s.out.Data()
	hdr := bitmem.AppendUnsignedLeb128(nil, uint32(len(payload)))
	if len(region) != len(hdr)+len(payload) {
		panic(errors.AssertionFailedf("code info region is %d bytes; expected %d", len(region), len(hdr)+len(payload)))
	}
	copy(region[copy(region, hdr):], payload)
	if s.verifying() {
		s.checkCodeInfo(region)
	}
}

// Encode finalizes the stream and returns the encoded blob.
func (s *Stream) Encode() []byte {
	buf := make([]byte, s.PrepareForFillIn())
	s.FillInCodeInfo(buf)
	return buf
}

func (s *Stream) checkCodeInfo(region []byte) {
	c := NewCodeInfo(region)
	if c.NumberOfStackMaps() != s.stackMaps.Len() {
		panic(errors.AssertionFailedf("decoded %d stack maps; expected %d", c.NumberOfStackMaps(), s.stackMaps.Len()))
	}
	if c.NumberOfLocationCatalogEntries() != len(s.catalog.entries) {
		panic(errors.AssertionFailedf("decoded %d catalog entries; expected %d",
			c.NumberOfLocationCatalogEntries(), len(s.catalog.entries)))
	}
	for _, check := range s.checks {
		if err := check(c); err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "verifying encoded code info"))
		}
	}
}

// ComputeMethodInfoSize returns the size of the buffer to pass to
// FillInMethodInfo.
func (s *Stream) ComputeMethodInfoSize() int {
	if !s.prepared {
		panic(errors.AssertionFailedf("PrepareForFillIn not called before ComputeMethodInfoSize"))
	}
	return MethodInfoSize(s.methodInfos.Len())
}

// FillInMethodInfo writes the method info blob into region, which must be
// exactly ComputeMethodInfoSize bytes.
func (s *Stream) FillInMethodInfo(region []byte) {
	indexes := make([]uint32, s.methodInfos.Len())
	for i := range indexes {
		indexes[i] = s.methodInfos.Row(i)[0]
	}
	buf := appendMethodInfo(region[:0:len(region)], indexes)
	if len(buf) != len(region) {
		panic(errors.AssertionFailedf("method info region is %d bytes; expected %d", len(region), len(buf)))
	}
	if s.verifying() {
		mi, err := DecodeMethodInfo(region)
		if err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "decoding method info"))
		}
		for i, idx := range indexes {
			if got := mi.MethodIndex(uint32(i)); got != idx {
				panic(errors.AssertionFailedf("method info %d: %d, expected %d", i, got, idx))
			}
		}
	}
}
