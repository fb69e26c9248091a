package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/pkg/npy"
)

// readArray decodes path, removing a compression container named by its
// suffix. Plain files are memory mapped.
func readArray(path string) (*npy.Array, error) {
	if compress.TypeForPath(path) == compress.None {
		return npy.ReadFile(path)
	}
	raw, err := readDecoded(path)
	if err != nil {
		return nil, err
	}
	return npy.Decode(bytes.NewReader(raw))
}

func readDecoded(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compress.Decode(path, raw)
}

// writeArray encodes a to path, adding the compression container its suffix
// names. The destination is replaced atomically.
func writeArray(path string, a *npy.Array, elemSize int) error {
	if compress.TypeForPath(path) == compress.None {
		return npy.WriteFile(path, a, elemSize)
	}
	var buf bytes.Buffer
	if err := npy.Encode(&buf, a, elemSize); err != nil {
		return err
	}
	packed, err := compress.Encode(path, buf.Bytes())
	if err != nil {
		return err
	}
	return npy.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(packed)
		return err
	})
}

// inferElemSize picks the element size for a: the override when positive,
// then the descriptor, then the data length divided by the element count.
func inferElemSize(a *npy.Array, override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	n, err := npy.ElemSize(a.Descr)
	if err == nil {
		return n, nil
	}
	count, cerr := a.NumElements()
	if cerr != nil || count == 0 || len(a.Data)%count != 0 || len(a.Data) == 0 {
		return 0, fmt.Errorf("%w (use --elem-size)", err)
	}
	return len(a.Data) / count, nil
}
