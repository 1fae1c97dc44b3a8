package treedb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func fillSample(t testing.TB, s *Store) {
	t.Helper()
	update(t, s, func(tx *Tx) {
		ensure(tx.Insert(Leaf(Root, "x", "1")))
		ensure(tx.Insert(Container(Root, "y", 1)))
		ensure(tx.Insert(Leaf(KeyPath("y"), "0", "2")))
		ensure(tx.Insert(Leaf(KeyPath("y").Index(4), "", "a\x00b")))
		ensure(tx.Insert(Container(KeyPath("y"), "\x01", 9)))
	})
}

func TestExportImport(t *testing.T) {
	src := setup(t)
	fillSample(t, src)

	var buf bytes.Buffer
	var srcDigest uint64
	view(t, src, func(tx *Tx) {
		deepEqual(t, must(tx.Export(&buf)), 5)
		srcDigest = must(tx.Digest())
	})

	dst := must(Open(MemPrefix+t.Name()+"/dst", Options{}))
	t.Cleanup(func() { forget(dst) })
	update(t, dst, func(tx *Tx) {
		deepEqual(t, must(tx.Import(bytes.NewReader(buf.Bytes()))), 5)
	})
	view(t, dst, func(tx *Tx) {
		deepEqual(t, must(tx.Digest()), srcDigest)
	})
	view(t, src, func(tx *Tx) {
		srcRows := must(tx.SelectDescendants(Root))
		view(t, dst, func(dtx *Tx) {
			deepEqual(t, must(dtx.SelectDescendants(Root)), srcRows)
		})
	})

	// importing again collides with every row
	err := dst.Update(func(tx *Tx) error {
		_, err := tx.Import(bytes.NewReader(buf.Bytes()))
		return err
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("** second Import = %v, wanted ErrAlreadyExists", err)
	}
	view(t, dst, func(tx *Tx) {
		deepEqual(t, must(tx.Digest()), srcDigest)
	})
}

func TestDigestTracksContent(t *testing.T) {
	s := setup(t)
	var empty, one, two uint64
	view(t, s, func(tx *Tx) { empty = must(tx.Digest()) })
	update(t, s, func(tx *Tx) {
		ensure(tx.Insert(Leaf(Root, "a", "1")))
		one = must(tx.Digest())
		ensure(tx.DeleteSingle(Root, "a"))
		ensure(tx.Insert(Leaf(Root, "a", "2")))
		two = must(tx.Digest())
	})
	if empty == one || one == two || empty == two {
		t.Errorf("** digests collide: %x %x %x", empty, one, two)
	}
}

func TestImportErrors(t *testing.T) {
	good := func(hdr exportHeader, rows []exportRow, tr *exportTrailer) []byte {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		ensure(enc.Encode(&hdr))
		d := newDigest()
		for _, r := range rows {
			ensure(enc.Encode(&r))
			if parent, err := DecodePath(r.Parent); err == nil {
				d.addRow(Row{Parent: parent, Key: r.Key, Suffix: r.Suffix, Value: r.Value})
			}
		}
		if tr == nil {
			tr = &exportTrailer{Digest: d.Sum64()}
		}
		ensure(enc.Encode(tr))
		return buf.Bytes()
	}
	hdr := exportHeader{Format: exportFormat, Version: exportVersion, Count: 1}
	row := exportRow{Parent: KeyPath("a").Encode(), Key: "b", Value: "v"}

	tests := []struct {
		name   string
		stream []byte
		err    error
	}{
		{"ok", good(hdr, []exportRow{row}, nil), nil},
		{"garbage", []byte("hello"), ErrBadExport},
		{"format", good(exportHeader{Format: "nope", Version: exportVersion}, nil, nil), ErrBadExport},
		{"version", good(exportHeader{Format: exportFormat, Version: 99}, nil, nil), ErrBadExport},
		{"truncated", good(exportHeader{Format: exportFormat, Version: exportVersion, Count: 2}, []exportRow{row}, nil)[:20], ErrBadExport},
		{"digest", good(hdr, []exportRow{row}, &exportTrailer{Digest: 1}), ErrDigestMismatch},
		{"parent", good(hdr, []exportRow{{Parent: x("30 01"), Key: "b"}}, nil), ErrBadExport},
		{"invalid row", good(hdr, []exportRow{{Parent: nil, Key: "b", Suffix: 1, Value: "v"}}, nil), ErrInvalidRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t)
			err := s.Update(func(tx *Tx) error {
				_, err := tx.Import(bytes.NewReader(tt.stream))
				return err
			})
			if tt.err == nil {
				if err != nil {
					t.Fatalf("** Import: %v", err)
				}
				view(t, s, func(tx *Tx) {
					deepEqual(t, paths(must(tx.SelectAll())), []string{"/a/b"})
				})
				return
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("** Import = %v, wanted %v", err, tt.err)
			}
			view(t, s, func(tx *Tx) {
				isempty(t, must(tx.SelectAll()))
			})
		})
	}
}

func TestImportRequiresWriteTx(t *testing.T) {
	s := setup(t)
	view(t, s, func(tx *Tx) {
		if _, err := tx.Import(bytes.NewReader(nil)); !errors.Is(err, ErrReadOnly) {
			t.Errorf("** Import in read tx = %v, wanted ErrReadOnly", err)
		}
	})
}
