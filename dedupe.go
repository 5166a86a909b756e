// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap/internal/invariants"
	"github.com/cockroachdb/swiss"
)

// Deduper concatenates code info blobs into a single buffer, storing
// byte-identical blobs once. It is used when many methods' metadata is
// written into a shared image.
type Deduper struct {
	out     []byte
	offsets swiss.Map[uint64, []uint32]
	hash    func([]byte) uint64
	metrics *Metrics
	stats   DedupeStats
}

// DedupeStats summarizes the blobs passed to a Deduper.
type DedupeStats struct {
	// Blobs is the number of blobs deduplicated.
	Blobs int
	// UniqueBlobs is the number of distinct blobs.
	UniqueBlobs int
	// InputBytes is the total size of all blobs.
	InputBytes int
	// OutputBytes is the size of the deduplicated buffer.
	OutputBytes int
}

// NewDeduper returns a Deduper that appends to out. Metrics may be nil.
func NewDeduper(out []byte, metrics *Metrics) *Deduper {
	d := &Deduper{out: out, hash: xxhash.Sum64, metrics: metrics}
	d.offsets.Init(0)
	return d
}

// Dedupe appends the blob at the start of data to the buffer unless an
// identical blob was already added, and returns the blob's offset in the
// buffer. Blobs are compared in full; equal hashes alone never merge blobs.
func (d *Deduper) Dedupe(data []byte) uint32 {
	size, err := EncodedSize(data)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "deduplicating code info"))
	}
	if size > len(data) {
		panic(errors.AssertionFailedf("code info of %d bytes truncated to %d", size, len(data)))
	}
	blob := data[:size]
	if invariants.Sometimes(10) {
		if _, err := DecodeCodeInfo(blob); err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "deduplicating code info"))
		}
	}
	d.stats.Blobs++
	d.stats.InputBytes += size

	h := d.hash(blob)
	candidates, _ := d.offsets.Get(h)
	for _, off := range candidates {
		if end := int(off) + size; end <= len(d.out) && bytes.Equal(d.out[off:end], blob) {
			if d.metrics != nil {
				d.metrics.DedupedBlobs.Inc()
				d.metrics.DedupedBytes.Add(float64(size))
			}
			return off
		}
	}
	off := uint32(len(d.out))
	d.out = append(d.out, blob...)
	d.offsets.Put(h, append(candidates, off))
	d.stats.UniqueBlobs++
	d.stats.OutputBytes += size
	return off
}

// Bytes returns the deduplicated buffer.
func (d *Deduper) Bytes() []byte { return d.out }

// Stats returns statistics about the blobs deduplicated so far.
func (d *Deduper) Stats() DedupeStats { return d.stats }
