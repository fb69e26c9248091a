package npy

import (
	"errors"
	"fmt"
)

var (
	ErrFormat           = errors.New("npy: invalid format")
	ErrUnexpectedEOF    = errors.New("npy: unexpected end of input")
	ErrIO               = errors.New("npy: i/o failure")
	ErrSizeMismatch     = errors.New("npy: data size does not match shape")
	ErrUnsupportedDescr = errors.New("npy: unsupported descriptor")
)

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
