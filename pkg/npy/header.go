package npy

import (
	"math"
	"strings"
)

// state is a position in the header dictionary grammar:
//
//	{'descr': '<f8', 'fortran_order': False, 'shape': (2, 3), }
type state uint8

const (
	stateBeforeDict  state = iota // expecting '{'
	stateInDict                   // looking for a key quote or '}'
	stateKeyMarker                // first character of a key
	stateKeyRest                  // rest of the key up to its closing quote
	stateAfterKey                 // up to ':'
	stateBeforeValue              // whitespace, then dispatch on the key
	stateDescrCount               // descr pass 1: measure the string
	stateDescrCopy                // descr pass 2: copy the string
	stateShapeCount               // shape pass 1: count dimensions
	stateShapeFill                // shape pass 2: parse dimensions
	stateSkipValue                // value of an unrecognised key
	stateAwaitComma               // after a value: ',' or '}'
	stateDone                     // dictionary closed; padding follows
)

type key uint8

const (
	keyUnknown key = iota
	keyDescr
	keyFortran
	keyShape
)

var keyNames = [...]string{
	keyDescr:   "descr",
	keyFortran: "fortran_order",
	keyShape:   "shape",
}

// dimPos tracks where the shape count pass is within one dimension.
type dimPos uint8

const (
	dimExpect dimPos = iota // after '(' or ','
	dimDigits               // inside a run of digits
	dimEnded                // digits closed by whitespace or 'L'
)

// keyForMarker dispatches on the first character of a key. The recognised keys
// have distinct first characters; the remaining characters are checked while
// the key is skipped.
func keyForMarker(c byte) key {
	switch c {
	case 'd':
		return keyDescr
	case 'f':
		return keyFortran
	case 's':
		return keyShape
	default:
		return keyUnknown
	}
}

type dict struct {
	descr      string
	fortran    bool
	shape      []int
	hasDescr   bool
	hasFortran bool
	hasShape   bool
}

// skipper consumes the value of an unrecognised key, tracking nesting and
// quotes so that only a top-level ',' or '}' ends it.
type skipper struct {
	depth int
	quote byte
}

// step reports whether c ends the value.
func (k *skipper) step(c byte) (bool, error) {
	if k.quote != 0 {
		if c == k.quote {
			k.quote = 0
		}
		return false, nil
	}
	switch c {
	case '\'', '"':
		k.quote = c
	case '(', '[', '{':
		k.depth++
	case ')', ']':
		if k.depth == 0 {
			return false, errorf(ErrFormat, "unbalanced %q in header value", c)
		}
		k.depth--
	case '}':
		if k.depth == 0 {
			return true, nil
		}
		k.depth--
	case ',':
		return k.depth == 0, nil
	}
	return false, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"'
}

// parseDict reads exactly headerLen bytes of dictionary text starting at the
// scanner's offset. Variable length values are measured in a first pass,
// then the scanner is rewound to the start of the value and a second pass
// fills storage of the measured size.
func parseDict(s *scanner, headerLen int) (dict, error) {
	var (
		d     dict
		st    = stateBeforeDict
		end   = s.off + int64(headerLen)
		last  byte
		k     key
		kpos  int
		quote byte
		mark  int64
		count int
		idx   int
		dim   dimPos
		sb    strings.Builder
		shape []int
		skip  skipper
	)

	for s.off < end {
		c, err := s.readByte()
		if err != nil {
			return dict{}, err
		}
		last = c

		switch st {
		case stateBeforeDict:
			if isSpace(c) {
				continue
			}
			if c != '{' {
				return dict{}, errorf(ErrFormat, "header dictionary starts with %q", c)
			}
			st = stateInDict

		case stateInDict:
			switch {
			case isQuote(c):
				quote = c
				st = stateKeyMarker
			case c == '}':
				st = stateDone
			}

		case stateKeyMarker:
			if c == quote {
				k = keyUnknown
				st = stateAfterKey
				continue
			}
			k = keyForMarker(c)
			kpos = 1
			st = stateKeyRest

		case stateKeyRest:
			if c == quote {
				if k != keyUnknown && kpos != len(keyNames[k]) {
					k = keyUnknown
				}
				st = stateAfterKey
				continue
			}
			if k != keyUnknown {
				name := keyNames[k]
				if kpos >= len(name) || name[kpos] != c {
					k = keyUnknown
				}
			}
			kpos++

		case stateAfterKey:
			if c == ':' {
				st = stateBeforeValue
			}

		case stateBeforeValue:
			if isSpace(c) {
				continue
			}
			switch k {
			case keyDescr:
				if !isQuote(c) {
					return dict{}, errorf(ErrFormat, "descr is not a quoted string")
				}
				quote = c
				mark = s.off
				count = 0
				st = stateDescrCount
			case keyFortran:
				d.fortran = c == 'T'
				d.hasFortran = true
				st = stateAwaitComma
			case keyShape:
				if c != '(' {
					return dict{}, errorf(ErrFormat, "shape is not a tuple")
				}
				mark = s.off
				count = 0
				dim = dimExpect
				st = stateShapeCount
			default:
				skip = skipper{}
				done, err := skip.step(c)
				if err != nil {
					return dict{}, err
				}
				st = stateSkipValue
				if done {
					st = afterSkip(c)
				}
			}

		case stateDescrCount:
			if c != quote {
				count++
				continue
			}
			if err := s.seek(mark); err != nil {
				return dict{}, err
			}
			sb.Reset()
			sb.Grow(count)
			st = stateDescrCopy

		case stateDescrCopy:
			if c != quote {
				if sb.Len() >= count {
					return dict{}, errorf(ErrFormat, "descr changed between passes")
				}
				sb.WriteByte(c)
				continue
			}
			d.descr = sb.String()
			d.hasDescr = true
			st = stateAwaitComma

		case stateShapeCount:
			switch {
			case isSpace(c):
				if dim == dimDigits {
					dim = dimEnded
				}
			case c == 'L':
				if dim != dimDigits {
					return dict{}, errorf(ErrFormat, "stray 'L' in shape")
				}
				dim = dimEnded
			case isDigit(c):
				if dim == dimEnded {
					return dict{}, errorf(ErrFormat, "missing comma between shape dimensions")
				}
				dim = dimDigits
			case c == ',':
				if dim == dimExpect {
					return dict{}, errorf(ErrFormat, "empty shape dimension")
				}
				count++
				dim = dimExpect
			case c == ')':
				if dim != dimExpect {
					count++
				}
				if err := s.seek(mark); err != nil {
					return dict{}, err
				}
				shape = make([]int, count)
				idx = 0
				st = stateShapeFill
			default:
				return dict{}, errorf(ErrFormat, "unexpected %q in shape", c)
			}

		case stateShapeFill:
			switch {
			case isDigit(c):
				if idx >= len(shape) {
					return dict{}, errorf(ErrFormat, "shape changed between passes")
				}
				v := int(c - '0')
				if shape[idx] > (math.MaxInt-v)/10 {
					return dict{}, errorf(ErrFormat, "shape dimension %d overflows", idx)
				}
				shape[idx] = shape[idx]*10 + v
			case c == ',':
				idx++
			case c == ')':
				d.shape = shape
				d.hasShape = true
				st = stateAwaitComma
			}

		case stateSkipValue:
			done, err := skip.step(c)
			if err != nil {
				return dict{}, err
			}
			if done {
				st = afterSkip(c)
			}

		case stateAwaitComma:
			switch c {
			case ',':
				st = stateInDict
			case '}':
				st = stateDone
			}

		case stateDone:
		}
	}

	if st != stateDone {
		return dict{}, errorf(ErrFormat, "header dictionary not closed within %d bytes", headerLen)
	}

	// A conforming writer ends the header with '\n'. If the declared length
	// stopped short of it, consume through the next newline.
	for last != '\n' {
		c, err := s.readByte()
		if err != nil {
			return dict{}, err
		}
		last = c
	}

	if !d.hasDescr || d.descr == "" {
		return dict{}, errorf(ErrFormat, "header has no descr")
	}
	if !d.hasShape {
		return dict{}, errorf(ErrFormat, "header has no shape")
	}
	return d, nil
}

func afterSkip(c byte) state {
	if c == '}' {
		return stateDone
	}
	return stateInDict
}
