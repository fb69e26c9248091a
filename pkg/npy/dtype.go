package npy

import (
	"strconv"
	"strings"
)

var namedSizes = map[string]int{
	"bool":       1,
	"int8":       1,
	"uint8":      1,
	"int16":      2,
	"uint16":     2,
	"float16":    2,
	"int32":      4,
	"uint32":     4,
	"float32":    4,
	"int64":      8,
	"uint64":     8,
	"float64":    8,
	"complex64":  8,
	"complex128": 16,
}

// ElemSize returns the size in bytes of one element of descr, which is either
// a NumPy type name ("float64") or a type string ("<f8", "|u1", "<U10",
// "<M8[ns]"). Object and structured descriptors are not supported.
func ElemSize(descr string) (int, error) {
	if n, ok := namedSizes[descr]; ok {
		return n, nil
	}

	s := descr
	if s != "" && strings.IndexByte("<>|=", s[0]) >= 0 {
		s = s[1:]
	}
	if s == "" {
		return 0, errorf(ErrUnsupportedDescr, "%q", descr)
	}

	kind, rest := s[0], s[1:]
	if kind == 'm' || kind == 'M' {
		if i := strings.IndexByte(rest, '['); i >= 0 && strings.HasSuffix(rest, "]") {
			rest = rest[:i]
		}
	}
	if rest == "" {
		if kind == '?' {
			return 1, nil
		}
		return 0, errorf(ErrUnsupportedDescr, "%q has no size", descr)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, errorf(ErrUnsupportedDescr, "%q has invalid size", descr)
	}

	switch kind {
	case 'b', '?', 'i', 'u', 'f', 'c', 'S', 'a', 'V', 'm', 'M':
		return n, nil
	case 'U':
		return 4 * n, nil
	default:
		return 0, errorf(ErrUnsupportedDescr, "%q", descr)
	}
}
