// Package safetensors reads tensors out of .safetensors files so they can be
// written as .npy arrays.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/samcharles93/npyfile/pkg/npy"
)

// maxHeaderLen is the header size limit of the safetensors format.
const maxHeaderLen = 100 << 20

var (
	ErrTensorNotFound = errors.New("safetensors: tensor not found")
	ErrInvalidOffsets = errors.New("safetensors: data_offsets out of range")
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// descrs maps safetensors dtypes to NumPy descriptors. NumPy has no bfloat16;
// it is carried as an opaque two-byte void type unless widened.
var descrs = map[string]string{
	"F64":  "<f8",
	"F32":  "<f4",
	"F16":  "<f2",
	"BF16": "<V2",
	"I64":  "<i8",
	"I32":  "<i4",
	"I16":  "<i2",
	"I8":   "|i1",
	"U64":  "<u8",
	"U32":  "<u4",
	"U16":  "<u2",
	"U8":   "|u1",
	"BOOL": "|b1",
}

// Descr returns the NumPy descriptor for a safetensors dtype.
func Descr(dtype string) (string, bool) {
	d, ok := descrs[dtype]
	return d, ok
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("header length %d exceeds limit", headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	dataStart := int64(8 + headerLen)
	dataLen := fi.Size() - dataStart

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, err
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		t := TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
		if err := t.checkBounds(dataLen); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		tensors[name] = t
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
	}, nil
}

// checkBounds rejects offsets outside a data section of dataLen bytes.
func (t TensorInfo) checkBounds(dataLen int64) error {
	if t.Start < 0 || t.End < t.Start || t.End > dataLen {
		return fmt.Errorf("%w: [%d, %d) outside %d data bytes", ErrInvalidOffsets, t.Start, t.End, dataLen)
	}
	return nil
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	fi, err := file.Stat()
	if err != nil {
		return nil, TensorInfo{}, err
	}
	if err := t.checkBounds(fi.Size() - f.DataStart); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	buf := make([]byte, t.End-t.Start)

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// ToArray reads a tensor as an .npy array in row-major order. With widenBF16
// a BF16 tensor is converted to little-endian float32.
func (f *File) ToArray(name string, widenBF16 bool) (*npy.Array, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, err
	}
	descr, ok := Descr(info.DType)
	if !ok {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	arr := &npy.Array{
		Descr: descr,
		Shape: append([]int{}, info.Shape...),
		Data:  raw,
	}
	if info.DType == "BF16" && widenBF16 {
		arr.Descr = "<f4"
		arr.Data = widenBF16ToF32(raw)
	}

	elemSize, err := npy.ElemSize(arr.Descr)
	if err != nil {
		return nil, err
	}
	if err := arr.Validate(elemSize); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return arr, nil
}

func widenBF16ToF32(raw []byte) []byte {
	n := len(raw) / 2
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		u := binary.LittleEndian.Uint16(raw[i*2:])
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(bf16ToF32(u)))
	}
	return out
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}
