// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/stackmap"
	"github.com/cockroachdb/stackmap/bitmem"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// codeInfoT implements the code info introspection tool.
type codeInfoT struct {
	Root   *cobra.Command
	Dump   *cobra.Command
	Stats  *cobra.Command
	Dedupe *cobra.Command
	Layout *cobra.Command

	// Configuration and state.
	logger     stackmap.Logger
	isa        string
	verbose    bool
	codeOffset uint32
	methodInfo string
	output     string
}

func newCodeInfo(logger stackmap.Logger) *codeInfoT {
	c := &codeInfoT{
		logger: logger,
	}

	c.Root = &cobra.Command{
		Use:   "codeinfo",
		Short: "code info introspection tools",
	}
	c.Dump = &cobra.Command{
		Use:   "dump <files>",
		Short: "print the stack maps of code info blobs",
		Long: `
Print the stack maps, inline frames and call sites of the code info blobs in
the given files. A file may hold several concatenated blobs, either raw or
hex encoded.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  c.runDump,
	}
	c.Stats = &cobra.Command{
		Use:   "stats <files>",
		Short: "print the encoded size of each table",
		Long: `
Print the encoded size of the code info blobs in the given files, broken down
by table and column and aggregated over all blobs.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  c.runStats,
	}
	c.Dedupe = &cobra.Command{
		Use:   "dedupe <files>",
		Short: "measure how many blobs are duplicates",
		Long: `
Deduplicate the code info blobs in the given files and print how many bytes a
shared image would save. With --output, the deduplicated blobs are written to
the given file.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  c.runDedupe,
	}
	c.Layout = &cobra.Command{
		Use:   "layout <files>",
		Short: "print the bit layout of code info blobs",
		Long: `
Print every field of the code info blobs in the given files along with its
bit offsets.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  c.runLayout,
	}

	c.Root.AddCommand(c.Dump, c.Stats, c.Dedupe, c.Layout)
	for _, cmd := range []*cobra.Command{c.Dump, c.Stats, c.Dedupe, c.Layout} {
		cmd.Flags().BoolVarP(
			&c.verbose, "verbose", "v", false, "verbose output")
	}
	c.Dump.Flags().StringVar(
		&c.isa, "isa", stackmap.RuntimeInstructionSet().String(),
		"instruction set the code was compiled for")
	c.Dump.Flags().Uint32Var(
		&c.codeOffset, "code-offset", 0, "address added to native pcs")
	c.Dump.Flags().StringVar(
		&c.methodInfo, "method-info", "", "method info file used to resolve method indexes")
	c.Dedupe.Flags().StringVarP(
		&c.output, "output", "o", "", "file to write the deduplicated blobs to")
	return c
}

// foreachBlob reads each file in args and calls fn for every blob it holds.
// Files that cannot be read or decoded are reported and skipped past the
// last valid blob.
func (c *codeInfoT) foreachBlob(args []string, fn func(path string, b blob)) {
	for _, path := range args {
		data, err := readFile(path)
		if err != nil {
			c.logger.Errorf("%s: %v", path, err)
			continue
		}
		blobs, err := splitBlobs(data)
		if err != nil {
			c.logger.Errorf("%s: %v", path, err)
		}
		if c.verbose {
			c.logger.Infof("%s: %d blobs in %s", path, len(blobs),
				crhumanize.Bytes(int64(len(data)), crhumanize.Compact, crhumanize.OmitI))
		}
		for _, b := range blobs {
			fn(path, b)
		}
	}
}

func (c *codeInfoT) runDump(cmd *cobra.Command, args []string) {
	stdout := cmd.OutOrStdout()
	isa, err := stackmap.ParseInstructionSet(c.isa)
	if err != nil {
		c.logger.Errorf("%v", err)
		return
	}
	var mi *stackmap.MethodInfo
	if c.methodInfo != "" {
		m, err := readMethodInfo(c.methodInfo)
		if err != nil {
			c.logger.Errorf("%s: %v", c.methodInfo, err)
			return
		}
		mi = &m
	}
	c.foreachBlob(args, func(path string, b blob) {
		fmt.Fprintf(stdout, "%s@%d\n", path, b.offset)
		b.info.Dump(stdout, c.codeOffset, c.verbose, isa, mi)
	})
}

func readMethodInfo(path string) (stackmap.MethodInfo, error) {
	data, err := readFile(path)
	if err != nil {
		return stackmap.MethodInfo{}, err
	}
	return stackmap.DecodeMethodInfo(data)
}

func (c *codeInfoT) runStats(cmd *cobra.Command, args []string) {
	stats := stackmap.NewStats("CodeInfo")
	c.foreachBlob(args, func(path string, b blob) {
		b.info.AddSizeStats(stats)
	})
	if stats.Count() == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no code info blobs\n")
		return
	}
	writeStatsTable(cmd.OutOrStdout(), stats, c.verbose)
}

// writeStatsTable renders the tree as a table, indenting each level. Columns
// are only broken out when verbose is set.
func writeStatsTable(w io.Writer, stats *stackmap.Stats, verbose bool) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Name", "Size", "Percent", "Count"})
	tbl.SetAlignment(tablewriter.ALIGN_LEFT)
	total := stats.Bits()
	var walk func(s *stackmap.Stats, depth int)
	walk = func(s *stackmap.Stats, depth int) {
		if depth > 0 && s.Bits() == 0 {
			return
		}
		tbl.Append([]string{
			strings.Repeat("  ", depth) + s.Name(),
			string(crhumanize.Bytes(int64(bitmem.BitsToBytesRoundUp(s.Bits())), crhumanize.Compact, crhumanize.OmitI)),
			string(crhumanize.Percent(float64(s.Bits()), float64(total))),
			string(crhumanize.Count(int64(s.Count()), crhumanize.Compact)),
		})
		if depth == 0 || verbose {
			for _, child := range s.Children() {
				walk(child, depth+1)
			}
		}
	}
	walk(stats, 0)
	tbl.Render()
}

func (c *codeInfoT) runDedupe(cmd *cobra.Command, args []string) {
	d := stackmap.NewDeduper(nil, nil)
	c.foreachBlob(args, func(path string, b blob) {
		d.Dedupe(b.data)
	})
	s := d.Stats()
	if s.Blobs == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no code info blobs\n")
		return
	}

	tbl := tablewriter.NewWriter(cmd.OutOrStdout())
	tbl.SetHeader([]string{"Blobs", "Unique", "Input", "Output", "Saved"})
	tbl.Append([]string{
		fmt.Sprint(s.Blobs),
		fmt.Sprint(s.UniqueBlobs),
		string(crhumanize.Bytes(int64(s.InputBytes), crhumanize.Compact, crhumanize.OmitI)),
		string(crhumanize.Bytes(int64(s.OutputBytes), crhumanize.Compact, crhumanize.OmitI)),
		string(crhumanize.Percent(float64(s.InputBytes-s.OutputBytes), float64(s.InputBytes))),
	})
	tbl.Render()

	if c.output != "" {
		if err := os.WriteFile(c.output, d.Bytes(), 0644); err != nil {
			c.logger.Errorf("%v", errors.Wrapf(err, "writing %s", c.output))
		}
	}
}

func (c *codeInfoT) runLayout(cmd *cobra.Command, args []string) {
	stdout := cmd.OutOrStdout()
	c.foreachBlob(args, func(path string, b blob) {
		fmt.Fprintf(stdout, "%s@%d\n", path, b.offset)
		l, err := stackmap.FormatLayout(b.data)
		if err != nil {
			c.logger.Errorf("%s: %v", path, err)
			return
		}
		fmt.Fprintf(stdout, "%s", l)
	})
}
