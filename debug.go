package treedb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpStats = DumpFlags(1 << iota)
	DumpRows
	DumpRawKeys

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump lists the store in storage order. Undecodable entries are reported
// inline rather than failing the dump.
func (tx *Tx) Dump(f DumpFlags) string {
	var buf strings.Builder
	if f.Contains(DumpStats) {
		s, err := tx.Stats()
		if err != nil {
			fmt.Fprintf(&buf, "%s: ** ERROR: %v\n", tx.store.name, err)
		} else {
			fmt.Fprintf(&buf, "%s (%d rows): leaves = %d, containers = %d, max_depth = %d, data_size = %d, data_alloc = %d\n", tx.store.name, s.Rows, s.Leaves, s.Containers, s.MaxDepth, s.DataSize, s.DataAlloc)
		}
	}
	if f.Contains(DumpRows) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(&buf, dumpSep)
		}
		if err := tx.check(false); err != nil {
			fmt.Fprintf(&buf, "** ERROR: %v\n", err)
			return buf.String()
		}
		c := tx.scan(nil)
		var rowPos int
		for c.Next() {
			rowPos++
			tx.dumpRow(&buf, f, rowPos, c.Key(), c.Value())
		}
	}
	return buf.String()
}

func (tx *Tx) dumpRow(w *strings.Builder, f DumpFlags, rowPos int, k, v []byte) {
	row, err := decodeRow(k, v)
	if err != nil {
		fmt.Fprintf(w, "%d: %s ** ERROR: %v\n", rowPos, hexstr(k), err)
		return
	}
	if f.Contains(DumpRawKeys) {
		fmt.Fprintf(w, "%d: %s [%x]\n", rowPos, row, k)
	} else {
		fmt.Fprintf(w, "%d: %s\n", rowPos, row)
	}
}

// DumpTree renders the rows under parent as an indented tree, one line per
// row, in SelectDescendants order.
func (tx *Tx) DumpTree(parent Path) (string, error) {
	rows, err := tx.SelectDescendants(parent)
	if err != nil {
		return "", err
	}
	base := parent.Len()
	var buf strings.Builder
	for _, row := range rows {
		depth := row.Parent.Len() - base
		buf.WriteString(strings.Repeat(indentStep, depth))
		buf.WriteString(KeySeg(row.Key).String())
		if row.Suffix != 0 {
			fmt.Fprintf(&buf, " <#%d>\n", row.Suffix)
		} else {
			fmt.Fprintf(&buf, " = %q\n", row.Value)
		}
	}
	return buf.String(), nil
}
