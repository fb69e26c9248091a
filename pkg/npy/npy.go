// Package npy reads and writes NumPy .npy array files.
//
// A file is a fixed magic prefix, a version, a little-endian header length,
// a textual header dictionary and the raw element data:
//
//	\x93NUMPY <major> <minor> <header_len> {'descr': '<f8', 'fortran_order': False, 'shape': (2, 3)}   \n <data>
//
// The codec treats the element data as opaque bytes. The descriptor is copied
// verbatim and is not interpreted by Decode or Encode; ElemSize is provided for
// callers that need an element size for a descriptor.
package npy

import "math"

const (
	Magic = "\x93NUMPY"

	// MaxMajor and MaxMinor are the highest format version the decoder accepts.
	MaxMajor byte = 2
	MaxMinor byte = 0

	// HeaderAlign is the alignment, from the start of the stream, of the data block
	// in files produced by Encode.
	HeaderAlign = 16

	versionLen = 2
)

// Array is a decoded .npy file. It owns all of its fields; nothing aliases the
// stream it was decoded from.
type Array struct {
	// Descr is the dtype descriptor, e.g. "<f8".
	Descr string
	// Fortran is true when the data is stored column-major (first axis fastest).
	Fortran bool
	// Shape holds one size per dimension. An empty shape is a scalar.
	Shape []int
	// Data is the raw element storage.
	Data []byte
}

// Header describes a file without its data block.
type Header struct {
	Major      byte
	Minor      byte
	HeaderLen  int
	DataOffset int64

	Descr   string
	Fortran bool
	Shape   []int
}

// NumElements returns the product of the shape, 1 for a scalar.
func (a *Array) NumElements() (int, error) {
	return numElements(a.Shape)
}

// DataSize returns the number of data bytes the shape implies for elemSize.
func (a *Array) DataSize(elemSize int) (int, error) {
	if elemSize <= 0 {
		return 0, errorf(ErrSizeMismatch, "invalid element size %d", elemSize)
	}
	n, err := a.NumElements()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt/elemSize {
		return 0, errorf(ErrSizeMismatch, "data size overflows for %d elements of %d bytes", n, elemSize)
	}
	return n * elemSize, nil
}

// Validate reports ErrSizeMismatch when the data block length does not match
// the shape and elemSize. Decode never calls it.
func (a *Array) Validate(elemSize int) error {
	want, err := a.DataSize(elemSize)
	if err != nil {
		return err
	}
	if len(a.Data) != want {
		return errorf(ErrSizeMismatch, "data block is %d bytes, shape %v of %d-byte elements needs %d",
			len(a.Data), a.Shape, elemSize, want)
	}
	return nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, errorf(ErrFormat, "negative dimension %d", d)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, errorf(ErrFormat, "shape %v overflows", shape)
		}
		n *= d
	}
	return n, nil
}
