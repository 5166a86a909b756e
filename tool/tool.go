// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tool implements offline introspection commands for encoded code
// info blobs.
package tool

import (
	"github.com/cockroachdb/stackmap"
	"github.com/spf13/cobra"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	codeInfo *codeInfoT
	logger   stackmap.Logger
}

// Option is a configuration option for the introspection tools.
type Option func(*T)

// WithLogger configures the logger used for per-file diagnostics.
func WithLogger(logger stackmap.Logger) Option {
	return func(t *T) {
		t.logger = logger
	}
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{
		logger: stackmap.DefaultLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}

	t.codeInfo = newCodeInfo(t.logger)
	t.Commands = []*cobra.Command{
		t.codeInfo.Root,
	}
	return t
}
