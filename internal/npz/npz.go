// Package npz reads and writes .npz archives: zip files holding one .npy
// member per named array.
package npz

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/samcharles93/npyfile/pkg/npy"
)

const memberExt = ".npy"

var (
	ErrDuplicateName = errors.New("npz: duplicate array name")
	ErrInvalidName   = errors.New("npz: invalid array name")
)

// Entry is one named array. ElemSize is only used when writing; zero means
// infer it from the descriptor.
type Entry struct {
	Name     string
	Array    *npy.Array
	ElemSize int
}

// Write encodes entries as an archive. Members are deflated when compressed
// is set and stored otherwise.
func Write(w io.Writer, entries []Entry, compressed bool) error {
	method := zip.Store
	if compressed {
		method = zip.Deflate
	}

	seen := make(map[string]struct{}, len(entries))
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if e.Name == "" || strings.ContainsAny(e.Name, "/\\") {
			return fmt.Errorf("%w: %q", ErrInvalidName, e.Name)
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = struct{}{}

		elemSize := e.ElemSize
		if elemSize == 0 && e.Array != nil {
			n, err := npy.ElemSize(e.Array.Descr)
			if err != nil {
				return fmt.Errorf("npz: array %s: %w", e.Name, err)
			}
			elemSize = n
		}

		mw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.Name + memberExt,
			Method: method,
		})
		if err != nil {
			return fmt.Errorf("npz: create member %s: %w", e.Name, err)
		}
		if err := npy.Encode(mw, e.Array, elemSize); err != nil {
			return fmt.Errorf("npz: array %s: %w", e.Name, err)
		}
	}
	return zw.Close()
}

// Read decodes every member of the archive in r, in archive order.
func Read(r io.ReaderAt, size int64) ([]Entry, error) {
	var entries []Entry
	err := Walk(r, size, func(name string, raw []byte) error {
		arr, err := npy.Decode(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: name, Array: arr})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Walk calls fn with the name and undecoded .npy bytes of each member, in
// archive order. Members are buffered whole since npy.Decode needs to seek.
func Walk(r io.ReaderAt, size int64, fn func(name string, raw []byte) error) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("npz: %w", err)
	}

	seen := make(map[string]struct{}, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimSuffix(f.Name, memberExt)
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = struct{}{}

		raw, err := readMember(f)
		if err != nil {
			return fmt.Errorf("npz: member %s: %w", f.Name, err)
		}
		if err := fn(name, raw); err != nil {
			return fmt.Errorf("npz: member %s: %w", f.Name, err)
		}
	}
	return nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// ReadFile reads the archive at path.
func ReadFile(path string) ([]Entry, error) {
	var entries []Entry
	err := withFile(path, func(r io.ReaderAt, size int64) error {
		var err error
		entries, err = Read(r, size)
		return err
	})
	return entries, err
}

// WalkFile is Walk over the archive at path.
func WalkFile(path string, fn func(name string, raw []byte) error) error {
	return withFile(path, func(r io.ReaderAt, size int64) error {
		return Walk(r, size, fn)
	})
}

func withFile(path string, fn func(r io.ReaderAt, size int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	return fn(f, st.Size())
}

// Find returns the entry called name.
func Find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
