// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/stackmap"
	"github.com/cockroachdb/stackmap/internal/base"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// encodeBlob returns the code info and method info of a method with n stack
// maps and one call site.
func encodeBlob(n int) ([]byte, []byte) {
	s := stackmap.NewStream(&stackmap.StreamOptions{
		InstructionSet: stackmap.ISAArm64,
		VerifyEncoding: true,
	})
	for i := 0; i < n; i++ {
		s.BeginStackMapEntry(stackmap.StackMapEntry{
			DexPc:           uint32(2 * i),
			NativePcOffset:  uint32(16 * (i + 1)),
			RegisterMask:    1 << uint(i),
			NumDexRegisters: 2,
		})
		s.AddDexRegisterEntry(stackmap.LocationInStack, int32(8*i))
		s.AddDexRegisterEntry(stackmap.LocationConstant, int32(i))
		if i == 0 {
			s.AddInvoke(stackmap.InvokeStatic, 77)
		}
		s.EndStackMapEntry()
	}
	data := s.Encode()
	mi := make([]byte, s.ComputeMethodInfoSize())
	s.FillInMethodInfo(mi)
	return data, mi
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func runTool(t *testing.T, args ...string) (string, string) {
	var logger base.InMemLogger
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.AddCommand(New(WithLogger(&logger)).Commands...)
	c.SetArgs(args)
	c.SetOutput(&buf)
	require.NoError(t, c.Execute())
	return buf.String(), logger.String()
}

// tableRows returns the trimmed cells of each row of a rendered table,
// starting with the header.
func tableRows(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		var row []string
		for _, cell := range strings.Split(strings.Trim(line, "|"), "|") {
			row = append(row, strings.TrimSpace(cell))
		}
		rows = append(rows, row)
	}
	return rows
}

func TestCodeInfoDump(t *testing.T) {
	dir := t.TempDir()
	a, mi := encodeBlob(2)
	b, _ := encodeBlob(3)
	raw := writeFile(t, dir, "raw", append(append([]byte(nil), a...), b...))
	hexed := writeFile(t, dir, "hex", []byte(hex.EncodeToString(a)+"\n"))
	miPath := writeFile(t, dir, "mi", mi)

	out, log := runTool(t, "codeinfo", "dump", "--isa", "arm64", "--method-info", miPath, raw, hexed)
	require.Empty(t, log)
	for _, s := range []string{
		raw + "@0\n",
		raw + "@" + strconv.Itoa(len(a)) + "\n",
		hexed + "@0\n",
		"stack_maps=3, invoke_infos=1",
		"StackMap[1] (kind=default, native_pc=0x20, dex_pc=0x2, register_mask=0x2)",
		"DexRegisterMap{v0:sp+8 v1:#1}",
		"InvokeInfo[0] (native_pc=0x10, type=static, method_info[0], method_index=77)",
	} {
		require.Contains(t, out, s)
	}
	require.NotContains(t, out, "StackMaps (rows=")

	out, _ = runTool(t, "codeinfo", "dump", "--verbose", "--code-offset", "4096", "--isa", "arm64", hexed)
	require.Contains(t, out, "StackMaps (rows=2")
	require.Contains(t, out, "native_pc=0x1010")

	_, log = runTool(t, "codeinfo", "dump", "--isa", "vax", raw)
	require.Contains(t, log, `unknown instruction set "vax"`)
}

func TestCodeInfoStats(t *testing.T) {
	dir := t.TempDir()
	a, _ := encodeBlob(2)
	path := writeFile(t, dir, "blobs", append(append([]byte(nil), a...), a...))

	out, _ := runTool(t, "codeinfo", "stats", path)
	rows := tableRows(out)
	require.Equal(t, []string{"NAME", "SIZE", "PERCENT", "COUNT"}, rows[0])
	require.Equal(t, "CodeInfo", rows[1][0])
	require.True(t, strings.HasPrefix(rows[1][2], "100"), rows[1][2])
	require.Equal(t, "2", rows[1][3])
	require.Contains(t, out, "StackMaps")
	require.NotContains(t, out, "PackedNativePc")

	out, log := runTool(t, "codeinfo", "stats", "--verbose", path)
	require.Contains(t, out, "PackedNativePc")
	require.Contains(t, log, path+": 2 blobs")

	out, _ = runTool(t, "codeinfo", "stats", writeFile(t, dir, "empty", nil))
	require.Equal(t, "no code info blobs\n", out)
}

func TestCodeInfoDedupe(t *testing.T) {
	dir := t.TempDir()
	a, _ := encodeBlob(2)
	b, _ := encodeBlob(3)
	p1 := writeFile(t, dir, "1", append(append([]byte(nil), a...), b...))
	p2 := writeFile(t, dir, "2", a)
	output := filepath.Join(dir, "out")

	out, _ := runTool(t, "codeinfo", "dedupe", "--output", output, p1, p2)
	rows := tableRows(out)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"BLOBS", "UNIQUE", "INPUT", "OUTPUT", "SAVED"}, rows[0])
	require.Equal(t, []string{"3", "2"}, rows[1][:2])

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, append(append([]byte(nil), a...), b...), written)
}

func TestCodeInfoLayout(t *testing.T) {
	dir := t.TempDir()
	a, _ := encodeBlob(1)
	path := writeFile(t, dir, "blob", a)
	out, log := runTool(t, "codeinfo", "layout", path)
	require.Empty(t, log)
	require.True(t, strings.HasPrefix(out, path+"@0\n"), out)
	require.Contains(t, out, "# stack maps\n")
	require.Contains(t, out, "# location catalog\n")
}

func TestCodeInfoCorruptFile(t *testing.T) {
	dir := t.TempDir()
	a, _ := encodeBlob(2)
	// A valid blob followed by a truncated copy.
	path := writeFile(t, dir, "corrupt", append(append([]byte(nil), a...), a[:len(a)-1]...))

	out, log := runTool(t, "codeinfo", "dump", "--isa", "arm64", path)
	require.Contains(t, out, path+"@0\n")
	require.Contains(t, log, "blob at offset "+strconv.Itoa(len(a)))

	_, log = runTool(t, "codeinfo", "dump", filepath.Join(dir, "missing"))
	require.Contains(t, log, "missing")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	data, err := readFile(writeFile(t, dir, "hex", []byte("0a 0B\nff\n")))
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x0b, 0xff}, data)

	// Odd-length or non-hex content is read verbatim.
	for _, s := range []string{"abc", "0x12", "zz"} {
		data, err = readFile(writeFile(t, dir, "raw", []byte(s)))
		require.NoError(t, err)
		require.Equal(t, []byte(s), data)
	}
}
