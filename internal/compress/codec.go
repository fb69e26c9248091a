// Package compress wraps whole .npy files in a compression container chosen by
// file extension (data.npy.zst, data.npy.lz4, ...).
package compress

import (
	"fmt"
	"strings"
)

type Type uint8

const (
	None Type = iota // None stores the file as is.
	Zstd             // Zstd uses Zstandard frames.
	S2               // S2 uses the S2 stream format.
	LZ4              // LZ4 uses LZ4 frames.
	Gzip             // Gzip uses gzip members.
)

var extensions = map[Type]string{
	Zstd: ".zst",
	S2:   ".s2",
	LZ4:  ".lz4",
	Gzip: ".gz",
}

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	case LZ4:
		return "lz4"
	case Gzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Ext returns the file suffix for t, empty for None.
func (t Type) Ext() string {
	return extensions[t]
}

// ParseType accepts the names produced by Type.String; the empty string is None.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "zstd", "zst":
		return Zstd, nil
	case "s2":
		return S2, nil
	case "lz4":
		return LZ4, nil
	case "gzip", "gz":
		return Gzip, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// TypeForPath picks the container type from the final suffix of path.
func TypeForPath(path string) Type {
	lower := strings.ToLower(path)
	for t, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return t
		}
	}
	return None
}

// TrimExt removes the container suffix, if any, from path.
func TrimExt(path string) string {
	t := TypeForPath(path)
	if t == None {
		return path
	}
	return path[:len(path)-len(t.Ext())]
}

// Codec compresses and decompresses complete payloads. Returned slices are
// owned by the caller.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtinCodecs = map[Type]Codec{
	None: NoOp{},
	Zstd: ZstdCodec{},
	S2:   S2Codec{},
	LZ4:  LZ4Codec{},
	Gzip: GzipCodec{},
}

// GetCodec returns the built-in codec for t.
func GetCodec(t Type) (Codec, error) {
	if c, ok := builtinCodecs[t]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unsupported compression type: %s", t)
}

// Decode undoes the container implied by path's suffix.
func Decode(path string, data []byte) ([]byte, error) {
	t := TypeForPath(path)
	c, err := GetCodec(t)
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%s decompress %s: %w", t, path, err)
	}
	return out, nil
}

// Encode applies the container implied by path's suffix.
func Encode(path string, data []byte) ([]byte, error) {
	t := TypeForPath(path)
	c, err := GetCodec(t)
	if err != nil {
		return nil, err
	}
	out, err := c.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("%s compress %s: %w", t, path, err)
	}
	return out, nil
}
