package treedb

import (
	"encoding/binary"
	"math/bits"
)

// Path encoding: every segment is tag, escaped content, segEnd.
//
// Content bytes below escLimit are written as escByte, b+escLimit. Neither
// keySep nor segEnd can therefore appear inside content, and the escaping
// preserves byte order, so the encoding of a path sorts exactly like the path
// itself (indexes before keys, ancestors before descendants).
const (
	keySep   byte = 0x00
	segEnd   byte = 0x01
	escByte  byte = 0x02
	escLimit byte = 0x03

	tagIndex byte = 0x10
	tagKey   byte = 0x20

	maxIndexBytes = 8
)

func appendEscaped[S ~string | ~[]byte](buf []byte, data S) []byte {
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c < escLimit {
			buf = append(buf, escByte, c+escLimit)
		} else {
			buf = append(buf, c)
		}
	}
	return buf
}

func appendKeySegment[S ~string | ~[]byte](buf []byte, key S) []byte {
	buf = append(buf, tagKey)
	buf = appendEscaped(buf, key)
	return append(buf, segEnd)
}

func appendIndexSegment(buf []byte, idx uint64) []byte {
	var raw [1 + maxIndexBytes]byte
	n := (bits.Len64(idx) + 7) / 8
	raw[0] = byte(n)
	binary.BigEndian.PutUint64(raw[1:], idx)
	buf = append(buf, tagIndex)
	buf = appendEscaped(buf, raw[:1])
	buf = appendEscaped(buf, raw[1+maxIndexBytes-n:])
	return append(buf, segEnd)
}

func appendSegment(buf []byte, seg Segment) []byte {
	if seg.isIndex {
		return appendIndexSegment(buf, seg.index)
	}
	return appendKeySegment(buf, seg.key)
}

// skipSegment validates the segment starting at off and returns the offset
// just past its terminator. It returns the tag and the unescaped content
// length so that callers can size their buffers.
func skipSegment(enc []byte, off int) (next int, tag byte, n int, err error) {
	start := off
	if off >= len(enc) {
		return 0, 0, 0, dataErrf(enc, off, ErrMalformedKey, "missing segment")
	}
	tag = enc[off]
	if tag != tagKey && tag != tagIndex {
		return 0, 0, 0, dataErrf(enc, off, ErrMalformedKey, "invalid segment tag 0x%02x", tag)
	}
	off++
	for {
		if off >= len(enc) {
			return 0, 0, 0, dataErrf(enc, start, ErrMalformedKey, "unterminated segment")
		}
		c := enc[off]
		switch {
		case c == segEnd:
			off++
			if tag == tagIndex {
				if err := checkIndexContent(enc, start, n); err != nil {
					return 0, 0, 0, err
				}
			}
			return off, tag, n, nil
		case c == escByte:
			if off+1 >= len(enc) || enc[off+1] < escLimit || enc[off+1] >= 2*escLimit {
				return 0, 0, 0, dataErrf(enc, off, ErrMalformedKey, "invalid escape")
			}
			off += 2
		case c < escLimit:
			return 0, 0, 0, dataErrf(enc, off, ErrMalformedKey, "unescaped byte 0x%02x in segment", c)
		default:
			off++
		}
		n++
	}
}

// checkIndexContent validates an index segment: a length byte followed by
// exactly that many big-endian bytes without leading zeros.
func checkIndexContent(enc []byte, start int, n int) error {
	raw := unescapeSegment(nil, enc, start)
	if n < 1 || int(raw[0]) != n-1 || n-1 > maxIndexBytes {
		return dataErrf(enc, start, ErrMalformedKey, "invalid index segment length")
	}
	if n > 1 && raw[1] == 0 {
		return dataErrf(enc, start, ErrMalformedKey, "non-canonical index segment")
	}
	return nil
}

// unescapeSegment appends the content of an already validated segment
// starting at off (the tag position).
func unescapeSegment(buf []byte, enc []byte, off int) []byte {
	for off++; enc[off] != segEnd; off++ {
		c := enc[off]
		if c == escByte {
			off++
			c = enc[off] - escLimit
		}
		buf = append(buf, c)
	}
	return buf
}

func decodeSegment(enc []byte, off int) (Segment, int, error) {
	next, tag, n, err := skipSegment(enc, off)
	if err != nil {
		return Segment{}, 0, err
	}
	raw := unescapeSegment(make([]byte, 0, n), enc, off)
	if tag == tagKey {
		return KeySeg(string(raw)), next, nil
	}
	var be [maxIndexBytes]byte
	copy(be[maxIndexBytes-len(raw)+1:], raw[1:])
	return IndexSeg(binary.BigEndian.Uint64(be[:])), next, nil
}

// validatePath checks that enc is a sequence of well-formed segments.
func validatePath(enc []byte) error {
	for off := 0; off < len(enc); {
		next, _, _, err := skipSegment(enc, off)
		if err != nil {
			return err
		}
		off = next
	}
	return nil
}
