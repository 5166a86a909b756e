// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package bittable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/swiss"
)

// HashFunc hashes the content of a run of rows for deduplication. Equal
// content must produce equal hashes; unequal content may collide.
type HashFunc func(data []byte) uint64

// DefaultHash is the HashFunc used by builders unless overridden.
var DefaultHash HashFunc = xxhash.Sum64

// identityHash spreads content hashes across swiss buckets. The keys are
// already xxhash outputs, so mixing in the seed is all that is needed.
func identityHash(k *uint64, seed uintptr) uintptr {
	return uintptr(*k ^ uint64(seed))
}

var dedupMapOptions = []swiss.Option[uint64, []uint32]{
	swiss.WithHash[uint64, []uint32](identityHash),
}

// dedupIndex maps content hashes to the start rows of previously inserted
// runs with that hash. Candidates must be compared in full since hashes may
// collide.
type dedupIndex struct {
	m    swiss.Map[uint64, []uint32]
	hash HashFunc
}

func (d *dedupIndex) init() {
	d.m.Init(0, dedupMapOptions...)
	if d.hash == nil {
		d.hash = DefaultHash
	}
}

func (d *dedupIndex) candidates(h uint64) []uint32 {
	c, _ := d.m.Get(h)
	return c
}

func (d *dedupIndex) add(h uint64, start uint32) {
	c, _ := d.m.Get(h)
	d.m.Put(h, append(c, start))
}
