package npy

import (
	"bufio"
	"errors"
	"io"
)

// scanner is a buffered byte reader over a seekable stream that tracks the
// absolute stream offset so the header parser can rewind to a recorded
// position.
type scanner struct {
	rs  io.ReadSeeker
	br  *bufio.Reader
	off int64
}

func newScanner(rs io.ReadSeeker) (*scanner, error) {
	off, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ioErr("seek", err)
	}
	return &scanner{
		rs:  rs,
		br:  bufio.NewReader(rs),
		off: off,
	}, nil
}

func (s *scanner) readByte() (byte, error) {
	c, err := s.br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errorf(ErrUnexpectedEOF, "at offset %d", s.off)
		}
		return 0, ioErr("read", err)
	}
	s.off++
	return c, nil
}

func (s *scanner) readFull(buf []byte) error {
	n, err := io.ReadFull(s.br, buf)
	s.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errorf(ErrUnexpectedEOF, "read %d of %d bytes at offset %d", n, len(buf), s.off)
		}
		return ioErr("read", err)
	}
	return nil
}

// seek moves to an absolute offset and drops any buffered bytes.
func (s *scanner) seek(off int64) error {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return ioErr("seek", err)
	}
	s.br.Reset(s.rs)
	s.off = off
	return nil
}

// remaining returns the number of bytes between the current offset and the
// end of the stream.
func (s *scanner) remaining() (int64, error) {
	end, err := s.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, ioErr("seek", err)
	}
	if err := s.seek(s.off); err != nil {
		return 0, err
	}
	if end < s.off {
		return 0, nil
	}
	return end - s.off, nil
}
