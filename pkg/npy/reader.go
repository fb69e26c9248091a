package npy

import (
	"bytes"
	"io"
	"math"
	"os"
)

// ReadHeader reads the envelope and header dictionary from r and leaves r
// positioned at the start of the data block.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	s, err := newScanner(r)
	if err != nil {
		return Header{}, err
	}
	h, err := readHeader(s)
	if err != nil {
		return Header{}, err
	}
	if _, err := r.Seek(s.off, io.SeekStart); err != nil {
		return Header{}, ioErr("seek", err)
	}
	return h, nil
}

// Decode reads a complete .npy stream. Everything after the header is
// returned as the data block; its length is not checked against the shape
// (see Array.Validate). On error no Array is returned.
func Decode(r io.ReadSeeker) (*Array, error) {
	s, err := newScanner(r)
	if err != nil {
		return nil, err
	}
	h, err := readHeader(s)
	if err != nil {
		return nil, err
	}

	n, err := s.remaining()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt {
		return nil, errorf(ErrFormat, "data block of %d bytes is too large", n)
	}
	data := make([]byte, int(n))
	if err := s.readFull(data); err != nil {
		return nil, err
	}

	return &Array{
		Descr:   h.Descr,
		Fortran: h.Fortran,
		Shape:   h.Shape,
		Data:    data,
	}, nil
}

func readHeader(s *scanner) (Header, error) {
	env, err := readEnvelope(s)
	if err != nil {
		return Header{}, err
	}
	d, err := parseDict(s, env.headerLen)
	if err != nil {
		return Header{}, err
	}
	return Header{
		Major:      env.major,
		Minor:      env.minor,
		HeaderLen:  env.headerLen,
		DataOffset: s.off,
		Descr:      d.descr,
		Fortran:    d.fortran,
		Shape:      d.shape,
	}, nil
}

// ReadFile decodes the file at path. The file is memory mapped where the
// platform allows it and read through the handle otherwise; both the mapping
// and the handle are released before ReadFile returns.
func ReadFile(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, ioErr("stat", err)
	}
	size := stat.Size()
	if size > 0 && size <= int64(math.MaxInt) {
		// Fall back to the plain reader when the file cannot be mapped.
		if data, unmap, err := mapFile(f, int(size)); err == nil {
			arr, derr := Decode(bytes.NewReader(data))
			if uerr := unmap(); uerr != nil && derr == nil {
				return nil, ioErr("munmap", uerr)
			}
			return arr, derr
		}
	}
	return Decode(f)
}

// ReadFileHeader reads only the header of the file at path.
func ReadFileHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, ioErr("open", err)
	}
	defer func() { _ = f.Close() }()
	return ReadHeader(f)
}
