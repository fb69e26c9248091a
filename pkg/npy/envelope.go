package npy

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const maxVersion = uint16(MaxMajor)<<8 | uint16(MaxMinor)

type envelope struct {
	major     byte
	minor     byte
	headerLen int
}

// lenFieldWidth returns the width of the header length field for a major version.
func lenFieldWidth(major byte) int {
	if major < 2 {
		return 2
	}
	return 4
}

func readEnvelope(s *scanner) (envelope, error) {
	for i := 0; i < len(Magic); i++ {
		c, err := s.readByte()
		if err != nil {
			if errors.Is(err, ErrUnexpectedEOF) {
				return envelope{}, fmt.Errorf("%w: truncated magic: %w", ErrFormat, err)
			}
			return envelope{}, err
		}
		if c != Magic[i] {
			return envelope{}, errorf(ErrFormat, "magic mismatch at byte %d", i)
		}
	}

	var env envelope
	var err error
	if env.major, err = s.readByte(); err != nil {
		return envelope{}, fmt.Errorf("read major version: %w", err)
	}
	if env.minor, err = s.readByte(); err != nil {
		return envelope{}, fmt.Errorf("read minor version: %w", err)
	}
	if uint16(env.major)<<8|uint16(env.minor) > maxVersion {
		return envelope{}, errorf(ErrFormat, "unsupported version %d.%d (max %d.%d)",
			env.major, env.minor, MaxMajor, MaxMinor)
	}

	var buf [4]byte
	width := lenFieldWidth(env.major)
	if err := s.readFull(buf[:width]); err != nil {
		return envelope{}, fmt.Errorf("read header length: %w", err)
	}
	if width == 2 {
		env.headerLen = int(binary.LittleEndian.Uint16(buf[:2]))
	} else {
		env.headerLen = int(binary.LittleEndian.Uint32(buf[:4]))
	}
	return env, nil
}
