package treedb

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Export stream: exportHeader, Count exportRows, exportTrailer, each encoded
// with msgpack. Digest covers the store entries the rows map to, so a store
// rebuilt by Import has the same Tx.Digest as the exported one.
const (
	exportFormat  = "treedb-export"
	exportVersion = 1
)

type exportHeader struct {
	Format  string `msgpack:"f"`
	Version int    `msgpack:"v"`
	Count   int    `msgpack:"n"`
}

type exportRow struct {
	Parent []byte `msgpack:"p"`
	Key    string `msgpack:"k"`
	Suffix uint64 `msgpack:"s,omitempty"`
	Value  string `msgpack:"v,omitempty"`
}

type exportTrailer struct {
	Digest uint64 `msgpack:"d"`
}

type digest struct {
	h    *xxhash.Digest
	lbuf []byte
	kbuf []byte
	vbuf []byte
}

func newDigest() *digest {
	return &digest{h: xxhash.New()}
}

func (d *digest) add(k, v []byte) {
	d.lbuf = binary.AppendUvarint(d.lbuf[:0], uint64(len(k)))
	d.h.Write(d.lbuf)
	d.h.Write(k)
	d.lbuf = binary.AppendUvarint(d.lbuf[:0], uint64(len(v)))
	d.h.Write(d.lbuf)
	d.h.Write(v)
}

func (d *digest) addRow(row Row) {
	d.kbuf = appendRowKey(d.kbuf[:0], row.Parent, row.Key)
	d.vbuf = appendValue(d.vbuf[:0], row)
	d.add(d.kbuf, d.vbuf)
}

func (d *digest) Sum64() uint64 { return d.h.Sum64() }

// Digest returns an xxhash64 checksum of every stored entry in storage order.
// Two stores holding the same rows have the same digest.
func (tx *Tx) Digest() (uint64, error) {
	if err := tx.check(false); err != nil {
		return 0, err
	}
	d := newDigest()
	c := tx.scan(nil)
	for c.Next() {
		d.add(c.Key(), c.Value())
	}
	return d.Sum64(), nil
}

// Export writes every row to w and returns the number of rows written.
func (tx *Tx) Export(w io.Writer) (int, error) {
	rows, err := tx.SelectAll()
	if err != nil {
		return 0, err
	}
	enc := msgpack.NewEncoder(w)
	err = enc.Encode(&exportHeader{
		Format:  exportFormat,
		Version: exportVersion,
		Count:   len(rows),
	})
	if err != nil {
		return 0, fmt.Errorf("treedb: export: %w", err)
	}
	d := newDigest()
	for i, row := range rows {
		d.addRow(row)
		err := enc.Encode(&exportRow{
			Parent: row.Parent.Encode(),
			Key:    row.Key,
			Suffix: row.Suffix,
			Value:  row.Value,
		})
		if err != nil {
			return i, fmt.Errorf("treedb: export: %w", err)
		}
	}
	if err := enc.Encode(&exportTrailer{Digest: d.Sum64()}); err != nil {
		return len(rows), fmt.Errorf("treedb: export: %w", err)
	}
	if tx.isVerboseLoggingEnabled() {
		tx.store.logger.Debug("treedb: EXPORT", "store", tx.store.name, "rows", len(rows))
	}
	return len(rows), nil
}

// Import inserts every row of an export stream and returns the number of rows
// inserted. Rows that collide with existing ones fail with ErrAlreadyExists.
// On error the rows inserted so far stay in the transaction; Abort it to
// discard them.
func (tx *Tx) Import(r io.Reader) (int, error) {
	if err := tx.check(true); err != nil {
		return 0, err
	}
	dec := msgpack.NewDecoder(r)

	var hdr exportHeader
	if err := dec.Decode(&hdr); err != nil {
		return 0, fmt.Errorf("treedb: import: %w: header: %w", ErrBadExport, err)
	}
	if hdr.Format != exportFormat {
		return 0, fmt.Errorf("treedb: import: %w: format %q", ErrBadExport, hdr.Format)
	}
	if hdr.Version != exportVersion {
		return 0, fmt.Errorf("treedb: import: %w: unsupported version %d", ErrBadExport, hdr.Version)
	}
	if hdr.Count < 0 {
		return 0, fmt.Errorf("treedb: import: %w: negative row count", ErrBadExport)
	}

	d := newDigest()
	for i := 0; i < hdr.Count; i++ {
		var er exportRow
		if err := dec.Decode(&er); err != nil {
			return i, fmt.Errorf("treedb: import: %w: row %d: %w", ErrBadExport, i, err)
		}
		parent, err := DecodePath(er.Parent)
		if err != nil {
			return i, fmt.Errorf("treedb: import: %w: row %d: %w", ErrBadExport, i, err)
		}
		row := Row{Parent: parent, Key: er.Key, Suffix: er.Suffix, Value: er.Value}
		if err := tx.Insert(row); err != nil {
			return i, err
		}
		d.addRow(row)
	}

	var tr exportTrailer
	if err := dec.Decode(&tr); err != nil {
		return hdr.Count, fmt.Errorf("treedb: import: %w: trailer: %w", ErrBadExport, err)
	}
	if sum := d.Sum64(); tr.Digest != sum {
		return hdr.Count, fmt.Errorf("treedb: import: %w: got %016x, stream says %016x", ErrDigestMismatch, sum, tr.Digest)
	}
	if tx.isVerboseLoggingEnabled() {
		tx.store.logger.Debug("treedb: IMPORT", "store", tx.store.name, "rows", hdr.Count)
	}
	return hdr.Count, nil
}
