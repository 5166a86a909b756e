// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap"
)

// readFile returns the contents of path. Files consisting only of hex digits
// and whitespace are decoded.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if s := strings.Join(strings.Fields(string(data)), ""); isHex(s) {
		return hex.DecodeString(s)
	}
	return data, nil
}

func isHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// blob is a single code info blob within a file.
type blob struct {
	offset int
	data   []byte
	info   *stackmap.CodeInfo
}

// splitBlobs decodes the concatenated blobs in data.
func splitBlobs(data []byte) ([]blob, error) {
	var blobs []blob
	for off := 0; off < len(data); {
		c, err := stackmap.DecodeCodeInfo(data[off:])
		if err != nil {
			return blobs, errors.Wrapf(err, "blob at offset %d", off)
		}
		blobs = append(blobs, blob{offset: off, data: data[off : off+c.Size()], info: c})
		off += c.Size()
	}
	return blobs, nil
}
