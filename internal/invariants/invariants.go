// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants gates expensive self-checks behind the "invariants" and
// "race" build tags. Encoders use it to re-decode everything they write.
package invariants

import (
	"math/rand/v2"

	"github.com/cockroachdb/stackmap/internal/buildtags"
	"golang.org/x/exp/constraints"
)

// RaceEnabled is true if we were built with the "race" build tag.
const RaceEnabled = buildtags.Race

// Sometimes returns true percent% of the time if we were built with the
// "invariants" of "race" build tags
func Sometimes(percent int) bool {
	return Enabled && rand.Uint32N(100) < uint32(percent)
}

// Integer is a constraint that permits any integer type.
type Integer = constraints.Integer
