package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/npyfile/pkg/npy"
)

// writeSafetensors creates a minimal safetensors file with the given header
// entries followed by data.
func writeSafetensors(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	_, err = f.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = f.Write(headerBytes)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
}

func tensor(dtype string, shape []int, start, end int64) map[string]any {
	return map[string]any{
		"dtype":        dtype,
		"shape":        shape,
		"data_offsets": []int64{start, end},
	}
}

func TestOpenAndToArray(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	data := make([]byte, 24+3)
	for i, v := range []float32{1, 2, 3, 4, 5, 6} {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	copy(data[24:], []byte{7, 8, 9})

	writeSafetensors(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"weight":       tensor("F32", []int{2, 3}, 0, 24),
		"ids":          tensor("U8", []int{3}, 24, 27),
	}, data)

	f, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, []string{"ids", "weight"}, f.Names())

	arr, err := f.ToArray("weight", false)
	require.NoError(t, err)
	require.Equal(t, "<f4", arr.Descr)
	require.Equal(t, []int{2, 3}, arr.Shape)
	require.Equal(t, data[:24], arr.Data)

	ids, err := f.ToArray("ids", false)
	require.NoError(t, err)
	require.Equal(t, "|u1", ids.Descr)
	require.Equal(t, []byte{7, 8, 9}, ids.Data)
}

func TestToArrayWidensBF16(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bf16.safetensors")

	// 1.0 and -2.0 in bfloat16.
	data := []byte{0x80, 0x3f, 0x00, 0xc0}
	writeSafetensors(t, path, map[string]any{"w": tensor("BF16", []int{2}, 0, 4)}, data)

	f, err := Open(path)
	require.NoError(t, err)

	opaque, err := f.ToArray("w", false)
	require.NoError(t, err)
	require.Equal(t, "<V2", opaque.Descr)
	require.Equal(t, data, opaque.Data)

	wide, err := f.ToArray("w", true)
	require.NoError(t, err)
	require.Equal(t, "<f4", wide.Descr)
	require.NoError(t, wide.Validate(4))
	require.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(wide.Data[0:])))
	require.Equal(t, float32(-2), math.Float32frombits(binary.LittleEndian.Uint32(wide.Data[4:])))
}

func TestToArraySizeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "short.safetensors")
	writeSafetensors(t, path, map[string]any{"w": tensor("F32", []int{4}, 0, 8)}, make([]byte, 8))

	f, err := Open(path)
	require.NoError(t, err)
	_, err = f.ToArray("w", false)
	require.ErrorIs(t, err, npy.ErrSizeMismatch)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.safetensors"))
	require.Error(t, err)

	truncated := filepath.Join(dir, "truncated.safetensors")
	require.NoError(t, os.WriteFile(truncated, []byte{0, 0, 0, 0}, 0o644))
	_, err = Open(truncated)
	require.Error(t, err)

	badOffsets := filepath.Join(dir, "bad.safetensors")
	writeSafetensors(t, badOffsets, map[string]any{
		"t": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	_, err = Open(badOffsets)
	require.Error(t, err)
}

func TestMissingTensorAndDtype(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "odd.safetensors")
	writeSafetensors(t, path, map[string]any{"q": tensor("F8_E4M3", []int{2}, 0, 2)}, []byte{1, 2})

	f, err := Open(path)
	require.NoError(t, err)

	_, err = f.ToArray("nope", false)
	require.ErrorIs(t, err, ErrTensorNotFound)

	_, err = f.ToArray("q", false)
	require.Error(t, err)
}

func TestOffsetsOutsideData(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name       string
		start, end int64
	}{
		{"huge end", 0, math.MaxInt64},
		{"past end", 0, 9},
		{"negative start", -1, 4},
		{"reversed", 6, 4},
	}
	for _, tc := range tests {
		path := filepath.Join(dir, tc.name+".safetensors")
		writeSafetensors(t, path, map[string]any{"x": tensor("U8", []int{1}, tc.start, tc.end)}, make([]byte, 8))

		_, err := Open(path)
		require.ErrorIs(t, err, ErrInvalidOffsets, tc.name)
	}

	// ReadTensor checks the offsets again against the file on disk.
	path := filepath.Join(dir, "valid.safetensors")
	writeSafetensors(t, path, map[string]any{"x": tensor("U8", []int{8}, 0, 8)}, make([]byte, 8))
	f, err := Open(path)
	require.NoError(t, err)
	f.Tensors["x"] = TensorInfo{DType: "U8", Shape: []int{1}, Start: 0, End: math.MaxInt64}

	_, err = f.ToArray("x", false)
	require.ErrorIs(t, err, ErrInvalidOffsets)
}
