package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/pkg/npy"
)

// runApp runs the CLI without touching the user's config and returns what
// the command printed.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(envConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"npyfile", "--log-level", "error"}, args...))
	return out.String(), err
}

func matrixArray() *npy.Array {
	data := make([]byte, 48)
	for i := range data {
		data[i] = byte(i * 3)
	}
	return &npy.Array{Descr: "<f8", Shape: []int{2, 3}, Data: data}
}

func TestConvertInspectValidate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "m.npy")
	require.NoError(t, npy.WriteFile(src, matrixArray(), 8))

	packed := filepath.Join(dir, "m.npy.zst")
	_, err := runApp(t, "convert", src, packed)
	require.NoError(t, err)

	back := filepath.Join(dir, "back.npy")
	_, err = runApp(t, "convert", packed, back)
	require.NoError(t, err)
	got, err := npy.ReadFile(back)
	require.NoError(t, err)
	require.Equal(t, matrixArray(), got)

	out, err := runApp(t, "inspect", packed)
	require.NoError(t, err)
	require.Contains(t, out, "compression:   zstd")
	require.Contains(t, out, "descr:         <f8")
	require.Contains(t, out, "shape:         (2, 3)")
	require.Contains(t, out, "data_bytes:    48")
	require.NotContains(t, out, "warning:")

	out, err = runApp(t, "inspect", "--json", src)
	require.NoError(t, err)
	var reports []report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	require.Equal(t, 6, reports[0].Elements)
	require.Equal(t, 8, reports[0].ElemSize)
	require.Equal(t, int64(80), reports[0].DataOffset)
	require.Len(t, reports[0].Checksum, 16)

	out, err = runApp(t, "validate", src, packed, back)
	require.NoError(t, err)
	require.Contains(t, out, "ok   "+src)
}

func TestValidateReportsShortData(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.npy")
	require.NoError(t, npy.WriteFile(good, matrixArray(), 8))

	// Claim eight elements while carrying six.
	short := filepath.Join(dir, "short.npy")
	var buf bytes.Buffer
	require.NoError(t, npy.Encode(&buf, &npy.Array{Descr: "<f8", Shape: []int{6}, Data: make([]byte, 48)}, 8))
	raw := bytes.Replace(buf.Bytes(), []byte("(6,)"), []byte("(8,)"), 1)
	require.NoError(t, os.WriteFile(short, raw, 0o644))

	out, err := runApp(t, "validate", good, short)
	require.Error(t, err)
	require.Contains(t, out, "ok   "+good)
	require.Contains(t, out, "FAIL "+short)

	out, err = runApp(t, "inspect", short)
	require.NoError(t, err)
	require.Contains(t, out, "warning:       data block is 48 bytes, shape needs 64")
}

func TestPackUnpack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.npy")
	b := filepath.Join(dir, "b.npy.s2")
	require.NoError(t, npy.WriteFile(a, matrixArray(), 8))
	labels := &npy.Array{Descr: "|u1", Shape: []int{4}, Data: []byte{1, 2, 3, 4}}
	require.NoError(t, writeArray(b, labels, 1))

	archive := filepath.Join(dir, "bundle.npz")
	_, err := runApp(t, "pack", "--out", archive, "--compress", a, b)
	require.NoError(t, err)

	out, err := runApp(t, "inspect", archive)
	require.NoError(t, err)
	require.Contains(t, out, archive+":a")
	require.Contains(t, out, archive+":b")

	outDir := filepath.Join(dir, "unpacked")
	_, err = runApp(t, "unpack", "--dir", outDir, archive)
	require.NoError(t, err)

	gotA, err := npy.ReadFile(filepath.Join(outDir, "a.npy"))
	require.NoError(t, err)
	require.Equal(t, matrixArray(), gotA)
	gotB, err := npy.ReadFile(filepath.Join(outDir, "b.npy"))
	require.NoError(t, err)
	require.Equal(t, labels, gotB)
}

func TestPackFailureKeepsExistingArchive(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.npy")
	require.NoError(t, npy.WriteFile(a, matrixArray(), 8))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	dup := filepath.Join(sub, "a.npy.gz")
	require.NoError(t, writeArray(dup, matrixArray(), 8))

	archive := filepath.Join(dir, "bundle.npz")
	_, err := runApp(t, "pack", "--out", archive, a)
	require.NoError(t, err)
	before, err := os.ReadFile(archive)
	require.NoError(t, err)

	// The second member has the same name, so the archive fails after the
	// first member has been written.
	_, err = runApp(t, "pack", "--out", archive, a, dup)
	require.Error(t, err)

	after, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestImportSafetensors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")

	header, err := json.Marshal(map[string]any{
		"bias":   map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int{0, 8}},
		"scales": map[string]any{"dtype": "BF16", "shape": []int{1}, "data_offsets": []int{8, 10}},
	})
	require.NoError(t, err)
	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(header))))
	file.Write(header)
	file.Write([]byte{0, 0, 128, 63, 0, 0, 0, 64, 0x80, 0x3f})
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o644))

	out := filepath.Join(dir, "bias.npy")
	_, err = runApp(t, "import", "--tensor", "bias", "--out", out, path)
	require.NoError(t, err)
	got, err := npy.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "<f4", got.Descr)
	require.Equal(t, []int{2}, got.Shape)

	all := filepath.Join(dir, "all")
	_, err = runApp(t, "import", "--all", "--widen-bf16", "--dir", all, path)
	require.NoError(t, err)
	scales, err := npy.ReadFile(filepath.Join(all, "scales.npy"))
	require.NoError(t, err)
	require.Equal(t, "<f4", scales.Descr)
	require.Equal(t, []byte{0, 0, 0x80, 0x3f}, scales.Data)

	crafted := filepath.Join(dir, "crafted.safetensors")
	bad := []byte(`{"x":{"dtype":"U8","shape":[1],"data_offsets":[0,9223372036854775807]}}`)
	var craftedFile bytes.Buffer
	require.NoError(t, binary.Write(&craftedFile, binary.LittleEndian, uint64(len(bad))))
	craftedFile.Write(bad)
	require.NoError(t, os.WriteFile(crafted, craftedFile.Bytes(), 0o644))
	_, err = runApp(t, "import", "--tensor", "x", "--out", filepath.Join(dir, "x.npy"), crafted)
	require.Error(t, err)

	_, err = runApp(t, "import", "--tensor", "missing", path)
	require.Error(t, err)
	_, err = runApp(t, "import", path)
	require.Error(t, err)
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, npy.WriteFile(filepath.Join(dir, "m.npy"), matrixArray(), 8))
	require.NoError(t, writeArray(filepath.Join(dir, "z.npy.gz"), matrixArray(), 8))

	out, err := runApp(t, "list", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "m ")
	require.Contains(t, out, "gzip")
	require.Contains(t, out, "2 array(s) found")
}

func TestServeFlagNames(t *testing.T) {
	var names []string
	for _, f := range serveCmd().Flags {
		names = append(names, f.Names()...)
	}
	require.Contains(t, names, "read-header-timeout")
	require.NotContains(t, names, "read-timeout")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "version:")
}
