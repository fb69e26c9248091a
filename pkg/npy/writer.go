package npy

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	dictPrefix  = "{'descr': '"
	dictFortran = "', 'fortran_order': "
	dictShape   = ", 'shape': ("
	dictSuffix  = ")}"

	maxV1HeaderLen = math.MaxUint16
)

// dictLen returns the length of the dictionary text Encode writes for a,
// including the trailing newline but excluding padding.
func dictLen(a *Array) int {
	n := len(dictPrefix) + len(dictFortran) + len(dictShape) + len(dictSuffix)
	n += len(a.Descr)
	if a.Fortran {
		n += len("True")
	} else {
		n += len("False")
	}
	for i, d := range a.Shape {
		if i > 0 {
			n += len(", ")
		}
		n += decimalLen(d)
	}
	// A one-element tuple needs its trailing comma to stay a tuple.
	if len(a.Shape) == 1 {
		n++
	}
	return n + 1
}

func decimalLen(v int) int {
	n := 1
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}

func padding(n int) int {
	return (HeaderAlign - n%HeaderAlign) % HeaderAlign
}

// HeaderLen returns the header length Encode writes for a, padding included,
// and the major version that length requires.
func HeaderLen(a *Array) (int, byte) {
	n := dictLen(a)
	if total := n + padding(len(Magic)+versionLen+lenFieldWidth(1)+n); total <= maxV1HeaderLen {
		return total, 1
	}
	return n + padding(len(Magic)+versionLen+lenFieldWidth(2)+n), 2
}

func checkArray(a *Array) error {
	if a == nil {
		return errorf(ErrFormat, "nil array")
	}
	if a.Descr == "" {
		return errorf(ErrFormat, "empty descr")
	}
	if strings.ContainsAny(a.Descr, "'\"\n") {
		return errorf(ErrFormat, "descr %q contains a quote or newline", a.Descr)
	}
	for _, d := range a.Shape {
		if d < 0 {
			return errorf(ErrFormat, "negative dimension in shape %v", a.Shape)
		}
	}
	return nil
}

// Encode writes a as a .npy stream. Exactly product(shape)*elemSize data
// bytes are written; a shorter Data is rejected with ErrSizeMismatch.
func Encode(w io.Writer, a *Array, elemSize int) error {
	if err := checkArray(a); err != nil {
		return err
	}
	size, err := a.DataSize(elemSize)
	if err != nil {
		return err
	}
	if len(a.Data) < size {
		return errorf(ErrSizeMismatch, "data block is %d bytes, shape %v of %d-byte elements needs %d",
			len(a.Data), a.Shape, elemSize, size)
	}

	headerLen, major := HeaderLen(a)
	if uint64(headerLen) > math.MaxUint32 {
		return errorf(ErrFormat, "header of %d bytes is too large", headerLen)
	}

	bw := bufio.NewWriter(w)
	_, _ = bw.WriteString(Magic)
	_ = bw.WriteByte(major)
	_ = bw.WriteByte(0)

	var lenBuf [4]byte
	width := lenFieldWidth(major)
	if width == 2 {
		binary.LittleEndian.PutUint16(lenBuf[:2], uint16(headerLen))
	} else {
		binary.LittleEndian.PutUint32(lenBuf[:4], uint32(headerLen))
	}
	_, _ = bw.Write(lenBuf[:width])

	_, _ = bw.WriteString(dictPrefix)
	_, _ = bw.WriteString(a.Descr)
	_, _ = bw.WriteString(dictFortran)
	if a.Fortran {
		_, _ = bw.WriteString("True")
	} else {
		_, _ = bw.WriteString("False")
	}
	_, _ = bw.WriteString(dictShape)
	var num []byte
	for i, d := range a.Shape {
		if i > 0 {
			_, _ = bw.WriteString(", ")
		}
		num = strconv.AppendInt(num[:0], int64(d), 10)
		_, _ = bw.Write(num)
	}
	if len(a.Shape) == 1 {
		_ = bw.WriteByte(',')
	}
	_, _ = bw.WriteString(dictSuffix)
	for pad := headerLen - dictLen(a); pad > 0; pad-- {
		_ = bw.WriteByte(' ')
	}
	_ = bw.WriteByte('\n')

	_, _ = bw.Write(a.Data[:size])
	if err := bw.Flush(); err != nil {
		return ioErr("write", err)
	}
	return nil
}

// WriteFile encodes a to path. The file is written under a temporary name
// in the same directory and renamed into place, so a failed write leaves any
// existing file untouched.
func WriteFile(path string, a *Array, elemSize int) error {
	if err := checkArray(a); err != nil {
		return err
	}
	return WriteAtomic(path, func(w io.Writer) error {
		return Encode(w, a, elemSize)
	})
}

// WriteAtomic creates path with the bytes write produces. Output goes to a
// temporary file in the same directory which is synced and renamed over path
// only when write succeeds.
func WriteAtomic(path string, write func(io.Writer) error) (err error) {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return ioErr("create", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return ioErr("sync", err)
	}
	if err = f.Close(); err != nil {
		return ioErr("close", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return ioErr("rename", err)
	}
	return nil
}
