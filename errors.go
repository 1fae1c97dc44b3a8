package treedb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedKey means a stored key cannot be decoded. It signals
	// corruption and is never retried.
	ErrMalformedKey = errors.New("malformed key")

	// ErrMalformedValue means a stored value has an unknown tag or size.
	ErrMalformedValue = errors.New("malformed value")

	// ErrAlreadyExists is returned by Tx.Insert when the key is occupied.
	ErrAlreadyExists = errors.New("row already exists")

	// ErrInvalidRow is returned by Tx.Insert for a container row that also
	// carries a value.
	ErrInvalidRow = errors.New("invalid row")

	ErrReadOnly         = errors.New("transaction is read-only")
	ErrTxClosed         = errors.New("transaction closed")
	ErrSuffixExhausted  = errors.New("suffix space exhausted")
	ErrBadExport        = errors.New("invalid export stream")
	ErrDigestMismatch   = errors.New("export digest mismatch")
	ErrInvalidStoreName = errors.New("invalid store name")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{append([]byte(nil), data...), off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v at %d: (%d) %x", e.Msg, e.Err, e.Off, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v at %d: (%d) %x...%x", e.Msg, e.Err, e.Off, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// RowError describes a failed operation on a particular row.
type RowError struct {
	Op     string
	Parent Path
	Key    string
	Err    error
}

func rowErr(op string, parent Path, key string, err error) error {
	return &RowError{op, parent, key, err}
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func (e *RowError) Error() string {
	var buf strings.Builder
	buf.WriteString("treedb: ")
	buf.WriteString(e.Op)
	buf.WriteByte(' ')
	buf.WriteString(e.Parent.String())
	fmt.Fprintf(&buf, " %q", e.Key)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
