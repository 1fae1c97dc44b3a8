package treedb

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Segment is a single step of a Path: either a named key or a positional
// index.
type Segment struct {
	key     string
	index   uint64
	isIndex bool
}

func KeySeg(key string) Segment { return Segment{key: key} }
func IndexSeg(idx uint64) Segment { return Segment{index: idx, isIndex: true} }
func (s Segment) IsIndex() bool { return s.isIndex }
func (s Segment) Key() string { return s.key }
func (s Segment) Index() uint64 { return s.index }

// String returns the text form used by Path.String: "#N" for indexes,
// a percent-escaped key otherwise, and `""` for the empty key.
func (s Segment) String() string {
	if s.isIndex {
		return "#" + strconv.FormatUint(s.index, 10)
	}
	if s.key == "" {
		return `""`
	}
	return url.PathEscape(s.key)
}

// Path identifies a node of the tree. The zero value is the root.
//
// A Path holds its canonical encoding, so Paths are immutable, comparable with
// ==, usable as map keys, and Compare orders them depth-first (a node sorts
// before its descendants; among siblings indexes sort numerically before keys,
// and keys sort bytewise).
type Path struct {
	enc string
}

// Root is the empty path.
var Root = Path{}

func PathOf(segs ...Segment) Path {
	var buf []byte
	for _, seg := range segs {
		buf = appendSegment(buf, seg)
	}
	return Path{string(buf)}
}

// KeyPath builds a path of named keys, e.g. KeyPath("a", "b") is /a/b.
func KeyPath(keys ...string) Path {
	var buf []byte
	for _, k := range keys {
		buf = appendKeySegment(buf, k)
	}
	return Path{string(buf)}
}

func (p Path) Key(key string) Path {
	return Path{string(appendKeySegment([]byte(p.enc), key))}
}

func (p Path) Index(idx uint64) Path {
	return Path{string(appendIndexSegment([]byte(p.enc), idx))}
}

func (p Path) Child(seg Segment) Path {
	return Path{string(appendSegment([]byte(p.enc), seg))}
}

func (p Path) IsRoot() bool { return p.enc == "" }

func (p Path) Equal(q Path) bool { return p.enc == q.enc }

func (p Path) Compare(q Path) int { return strings.Compare(p.enc, q.enc) }

// IsAncestorOf reports whether q lies strictly below p.
func (p Path) IsAncestorOf(q Path) bool {
	return len(p.enc) < len(q.enc) && strings.HasPrefix(q.enc, p.enc)
}

// Encode returns the canonical byte encoding of the path.
func (p Path) Encode() []byte { return []byte(p.enc) }

func (p Path) appendEncoded(buf []byte) []byte { return append(buf, p.enc...) }

// DecodePath is the inverse of Path.Encode. It fails with an error wrapping
// ErrMalformedKey if data is not a canonical path encoding.
func DecodePath(data []byte) (Path, error) {
	if err := validatePath(data); err != nil {
		return Path{}, err
	}
	return Path{string(data)}, nil
}

// Segments decodes the path. The encoding is validated on construction, so
// decoding cannot fail.
func (p Path) Segments() []Segment {
	var segs []Segment
	enc := []byte(p.enc)
	for off := 0; off < len(enc); {
		seg, next, err := decodeSegment(enc, off)
		ensure(err)
		segs = append(segs, seg)
		off = next
	}
	return segs
}

func (p Path) Len() int {
	var n int
	enc := []byte(p.enc)
	for off := 0; off < len(enc); n++ {
		next, _, _, err := skipSegment(enc, off)
		ensure(err)
		off = next
	}
	return n
}

// Parent returns the path without its last segment; ok is false for the root.
func (p Path) Parent() (parent Path, ok bool) {
	last, ok := p.lastOffset()
	if !ok {
		return Root, false
	}
	return Path{p.enc[:last]}, true
}

// Last returns the final segment; ok is false for the root.
func (p Path) Last() (seg Segment, ok bool) {
	last, ok := p.lastOffset()
	if !ok {
		return Segment{}, false
	}
	seg, _, err := decodeSegment([]byte(p.enc), last)
	ensure(err)
	return seg, true
}

func (p Path) lastOffset() (int, bool) {
	if p.enc == "" {
		return 0, false
	}
	enc := []byte(p.enc)
	var last int
	for off := 0; off < len(enc); {
		next, _, _, err := skipSegment(enc, off)
		ensure(err)
		last, off = off, next
	}
	return last, true
}

func (p Path) String() string {
	if p.enc == "" {
		return "/"
	}
	var buf strings.Builder
	for _, seg := range p.Segments() {
		buf.WriteByte('/')
		buf.WriteString(seg.String())
	}
	return buf.String()
}

// ParsePath parses the text form produced by Path.String.
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("invalid path %q: must start with /", s)
	}
	if s == "/" {
		return Root, nil
	}
	var buf []byte
	for _, part := range strings.Split(s[1:], "/") {
		switch {
		case part == "":
			return Path{}, fmt.Errorf("invalid path %q: empty segment", s)
		case part == `""`:
			buf = appendKeySegment(buf, "")
		case part[0] == '#':
			idx, err := strconv.ParseUint(part[1:], 10, 64)
			if err != nil {
				return Path{}, fmt.Errorf("invalid path %q: bad index segment %q", s, part)
			}
			buf = appendIndexSegment(buf, idx)
		default:
			key, err := url.PathUnescape(part)
			if err != nil {
				return Path{}, fmt.Errorf("invalid path %q: %w", s, err)
			}
			buf = appendKeySegment(buf, key)
		}
	}
	return Path{string(buf)}, nil
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	return must(ParsePath(s))
}
