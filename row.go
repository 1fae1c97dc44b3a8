package treedb

import (
	"fmt"
	"strings"
)

// Row is the unit of storage: a leaf holding a scalar Value (Suffix == 0), or
// a container marker (Suffix != 0, Value empty) recording that a child
// subtree exists under Parent.Key(Key).
type Row struct {
	Parent Path
	Key    string
	Suffix uint64
	Value  string
}

func Leaf(parent Path, key, value string) Row {
	return Row{Parent: parent, Key: key, Value: value}
}

func Container(parent Path, key string, suffix uint64) Row {
	return Row{Parent: parent, Key: key, Suffix: suffix}
}

func (r Row) IsContainer() bool { return r.Suffix != 0 }

// Path returns the path of the node this row describes.
func (r Row) Path() Path { return r.Parent.Key(r.Key) }

func (r Row) validate() error {
	if r.Suffix != 0 && r.Value != "" {
		return fmt.Errorf("%w: container row with suffix %d carries a value", ErrInvalidRow, r.Suffix)
	}
	return nil
}

func (r Row) String() string {
	var buf strings.Builder
	buf.WriteString(r.Path().String())
	if r.Suffix != 0 {
		fmt.Fprintf(&buf, " = <container #%d>", r.Suffix)
	} else {
		fmt.Fprintf(&buf, " = %q", r.Value)
	}
	return buf.String()
}

// CompareRows orders rows depth-first by the path they describe. This is the
// order of Tx.SelectDescendants.
func CompareRows(a, b Row) int {
	return a.Path().Compare(b.Path())
}
