package treedb

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"
)

var samplePaths = []Path{
	Root,
	KeyPath(""),
	KeyPath("a"),
	KeyPath("a", "b"),
	KeyPath("a", "b", "c"),
	KeyPath("ab"),
	KeyPath("a\x00"),
	KeyPath("a\x01b"),
	KeyPath("\x02\x03"),
	KeyPath("", ""),
	KeyPath("10"),
	KeyPath("9"),
	KeyPath("héllo wörld", "x/y"),
	Root.Index(0),
	Root.Index(1),
	Root.Index(2),
	Root.Index(255),
	Root.Index(256),
	Root.Index(math.MaxUint64),
	KeyPath("a").Index(3).Key("b"),
	PathOf(IndexSeg(1), KeySeg("#1"), IndexSeg(65536)),
}

func TestPathEncoding(t *testing.T) {
	tests := []struct {
		path Path
		enc  []byte
	}{
		{Root, nil},
		{KeyPath("a"), x("20 61 01")},
		{KeyPath(""), x("20 01")},
		{KeyPath("\x00\x01\x02\x03"), x("20 0203 0204 0205 03 01")},
		{KeyPath("a", "b"), x("20 61 01 20 62 01")},
		{Root.Index(0), x("10 0203 01")},
		{Root.Index(1), x("10 0204 0204 01")},
		{Root.Index(5), x("10 0204 05 01")},
		{Root.Index(256), x("10 0205 0204 0203 01")},
		{Root.Index(math.MaxUint64), x("10 08 ff ff ff ff ff ff ff ff 01")},
	}
	for _, tt := range tests {
		enc := tt.path.Encode()
		if !bytes.Equal(enc, tt.enc) {
			t.Errorf("** %v encodes to %x, wanted %x", tt.path, enc, tt.enc)
		}
		if bytes.IndexByte(enc, keySep) >= 0 {
			t.Errorf("** %v encoding %x contains the key separator", tt.path, enc)
		}
	}
}

func TestPathRoundTrip(t *testing.T) {
	for _, p := range samplePaths {
		q, err := DecodePath(p.Encode())
		if err != nil {
			t.Errorf("** DecodePath(%x): %v", p.Encode(), err)
			continue
		}
		if q != p {
			t.Errorf("** DecodePath(Encode(%v)) = %v", p, q)
		}
		if r := PathOf(p.Segments()...); r != p {
			t.Errorf("** PathOf(Segments(%v)) = %v", p, r)
		}
		if r := MustParsePath(p.String()); r != p {
			t.Errorf("** ParsePath(%q) = %v, wanted %v", p.String(), r, p)
		}
		if bytes.IndexByte(p.Encode(), keySep) >= 0 {
			t.Errorf("** %v encoding contains the key separator", p)
		}
	}
}

func TestPathPrefixCorrectness(t *testing.T) {
	// extend the samples with descendants of every sample
	var all []Path
	for _, p := range samplePaths {
		all = append(all, p, p.Key("z"), p.Key(""), p.Index(0), p.Key("a").Key("b"))
	}
	for _, p1 := range all {
		prefix := descendantPrefix(p1)
		for _, p2 := range all {
			related := isAncestorBySegments(p1, p2)
			if p1.IsAncestorOf(p2) != related {
				t.Errorf("** %v.IsAncestorOf(%v) = %v", p1, p2, !related)
			}
			if got := bytes.HasPrefix(p2.Encode(), prefix) && p1 != p2; got != related {
				t.Errorf("** %v vs %v: prefix match = %v, ancestor = %v", p1, p2, got, related)
			}
			// the child prefix matches only the store keys of direct children
			for _, key := range []string{"", "k", "\x00"} {
				k := appendRowKey(nil, p2, key)
				if got, want := bytes.HasPrefix(k, childPrefix(p1)), p1 == p2; got != want {
					t.Errorf("** child prefix of %v vs row %v %q: %v, wanted %v", p1, p2, key, got, want)
				}
				if got, want := bytes.HasPrefix(k, prefix), p1 == p2 || related; got != want {
					t.Errorf("** descendant prefix of %v vs row %v %q: %v, wanted %v", p1, p2, key, got, want)
				}
			}
		}
	}
}

func TestPathOrder(t *testing.T) {
	ordered := []Path{
		Root,
		Root.Index(0),
		Root.Index(1),
		Root.Index(1).Key("a"),
		Root.Index(2),
		Root.Index(255),
		Root.Index(256),
		Root.Index(math.MaxUint64),
		KeyPath(""),
		KeyPath("", "x"),
		KeyPath("\x00"),
		KeyPath("\x01"),
		KeyPath("1"),
		KeyPath("10"),
		KeyPath("9"),
		KeyPath("a"),
		KeyPath("a").Index(1),
		KeyPath("a", "b"),
		KeyPath("a", "b", "c"),
		KeyPath("a\x00"),
		KeyPath("ab"),
		KeyPath("b"),
	}
	shuffled := slices.Clone(ordered)
	slices.Reverse(shuffled)
	shuffled[3], shuffled[10] = shuffled[10], shuffled[3]
	slices.SortFunc(shuffled, Path.Compare)
	deepEqual(t, shuffled, ordered)

	for i := 1; i < len(ordered); i++ {
		a, b := ordered[i-1].Encode(), ordered[i].Encode()
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("** encoding of %v >= encoding of %v", ordered[i-1], ordered[i])
		}
	}
}

func TestPathAccessors(t *testing.T) {
	p := KeyPath("a", "b").Index(7)

	deepEqual(t, p.Len(), 3)
	deepEqual(t, Root.Len(), 0)
	deepEqual(t, p.Segments(), []Segment{KeySeg("a"), KeySeg("b"), IndexSeg(7)})

	last, ok := p.Last()
	if !ok || !last.IsIndex() || last.Index() != 7 {
		t.Errorf("** Last = %v, %v", last, ok)
	}
	parent, ok := p.Parent()
	if !ok || parent != KeyPath("a", "b") {
		t.Errorf("** Parent = %v, %v", parent, ok)
	}
	if _, ok := Root.Parent(); ok {
		t.Errorf("** Root.Parent() reported ok")
	}
	if _, ok := Root.Last(); ok {
		t.Errorf("** Root.Last() reported ok")
	}

	if !Root.IsRoot() || p.IsRoot() || !(Path{}).Equal(Root) {
		t.Errorf("** IsRoot/Equal misbehave")
	}
	if !KeyPath("a").IsAncestorOf(p) || !Root.IsAncestorOf(p) || p.IsAncestorOf(p) || KeyPath("a", "b", "c").IsAncestorOf(p) {
		t.Errorf("** IsAncestorOf misbehaves")
	}
	if KeyPath("a").IsAncestorOf(KeyPath("ab")) {
		t.Errorf("** /a is not an ancestor of /ab")
	}
	deepEqual(t, KeyPath("a").Child(IndexSeg(4)), KeyPath("a").Index(4))
	deepEqual(t, KeyPath("a").Child(KeySeg("b")), KeyPath("a", "b"))
	deepEqual(t, Leaf(KeyPath("a"), "b", "v").Path(), KeyPath("a", "b"))
}

func TestPathString(t *testing.T) {
	tests := []struct {
		path Path
		str  string
	}{
		{Root, "/"},
		{KeyPath("a", "b"), "/a/b"},
		{KeyPath(""), `/""`},
		{KeyPath(`""`), "/%22%22"},
		{KeyPath("a b", "x/y"), "/a%20b/x%2Fy"},
		{KeyPath("#1").Index(1), "/%231/#1"},
		{KeyPath("\x00"), "/%00"},
	}
	for _, tt := range tests {
		if got := tt.path.String(); got != tt.str {
			t.Errorf("** %x String() = %q, wanted %q", tt.path.Encode(), got, tt.str)
		}
		if got := must(ParsePath(tt.str)); got != tt.path {
			t.Errorf("** ParsePath(%q) = %v, wanted %v", tt.str, got, tt.path)
		}
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, s := range []string{"", "a", "//", "/a/", "/#", "/#x", "/#-1", "/#18446744073709551616", "/%zz"} {
		if p, err := ParsePath(s); err == nil {
			t.Errorf("** ParsePath(%q) = %v, wanted error", s, p)
		}
	}
	assertPanics(t, func() {
		MustParsePath("nope")
	})
}

func TestDecodePathErrors(t *testing.T) {
	tests := []struct {
		enc []byte
		off int
	}{
		{x("30 61 01"), 0},
		{x("20 61"), 0},
		{x("20 61 01 20"), 3},
		{x("20 00 01"), 1},
		{x("20 01 01"), 2},
		{x("20 02 01"), 1},
		{x("20 02 09 01"), 1},
		{x("20 02"), 1},
		{x("10 01"), 0},
		{x("10 0204 0203 01"), 0},
		{x("10 0205 0204 01"), 0},
		{x("10 09 11 11 11 11 11 11 11 11 11 01"), 0},
		{x("10 0204 05 06 01"), 0},
	}
	for _, tt := range tests {
		_, err := DecodePath(tt.enc)
		if !errors.Is(err, ErrMalformedKey) {
			t.Errorf("** DecodePath(%x) = %v, wanted ErrMalformedKey", tt.enc, err)
			continue
		}
		var derr *DataError
		if !errors.As(err, &derr) {
			t.Errorf("** DecodePath(%x) = %T, wanted *DataError", tt.enc, err)
		} else if derr.Off != tt.off {
			t.Errorf("** DecodePath(%x) failed at %d, wanted %d: %v", tt.enc, derr.Off, tt.off, err)
		}
	}
}

func isAncestorBySegments(p1, p2 Path) bool {
	s1, s2 := p1.Segments(), p2.Segments()
	return len(s1) < len(s2) && slices.Equal(s1, s2[:len(s1)])
}
