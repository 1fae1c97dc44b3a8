package treedb

import (
	"errors"
	"strings"
	"testing"
)

func TestRowError(t *testing.T) {
	err := rowErr("insert", KeyPath("a"), "k", ErrAlreadyExists)
	deepEqual(t, err.Error(), `treedb: insert /a "k": row already exists`)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("** RowError does not unwrap")
	}
	deepEqual(t, rowErr("allocate suffix", Root, "", nil).Error(), `treedb: allocate suffix / ""`)
}

func TestDataError(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	err := dataErrf(data, 1, ErrMalformedKey, "bad %s", "thing")
	data[0] = 0
	deepEqual(t, err.Error(), "bad thing: malformed key at 1: (2) aabb")
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("** DataError does not unwrap")
	}

	long := make([]byte, 200)
	msg := dataErrf(long, 5, nil, "long").Error()
	if !strings.HasPrefix(msg, "long at 5: (200) ") || !strings.Contains(msg, "...") {
		t.Errorf("** long DataError = %q", msg)
	}
}
