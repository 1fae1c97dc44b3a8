package treedb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Tx is a transaction on a Store. It must be ended exactly once, by Close
// (which commits a read-write transaction) or Abort. A Tx is not safe for
// concurrent use.
//
// Within a Tx, reads observe the Tx's own writes. AllocateSuffix followed by
// Insert is only race-free when both happen in the same read-write Tx.
type Tx struct {
	store *Store
	stx   storageTx
	rows  storageBucket

	writable bool
	closed   bool
	broken   error

	startTime time.Time
	stack     string
}

func (tx *Tx) Store() *Store { return tx.store }

func (tx *Tx) IsWritable() bool { return tx.writable }

// BoltTx returns the underlying Bolt transaction, or nil for in-memory stores.
func (tx *Tx) BoltTx() *bbolt.Tx {
	if btx, ok := tx.stx.(*boltTx); ok {
		return btx.Tx
	}
	return nil
}

// Close ends the transaction, committing it if it is writable. Closing a
// writable transaction that hit corrupted data rolls it back and returns the
// corruption error. Calling Close on an ended transaction does nothing.
func (tx *Tx) Close() error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	defer tx.store.removeTx(tx)

	if tx.broken != nil {
		tx.stx.Rollback()
		return tx.broken
	}
	if tx.writable {
		if err := tx.stx.Commit(); err != nil {
			return fmt.Errorf("treedb: %s: commit: %w", tx.store.name, err)
		}
		return nil
	}
	return tx.stx.Rollback()
}

// Abort ends the transaction discarding its writes.
func (tx *Tx) Abort() error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	defer tx.store.removeTx(tx)
	if tx.isVerboseLoggingEnabled() && tx.writable {
		tx.store.logger.Debug("treedb: ABORT", "store", tx.store.name)
	}
	return tx.stx.Rollback()
}

func (tx *Tx) check(write bool) error {
	if tx.closed {
		return ErrTxClosed
	}
	if tx.broken != nil {
		return tx.broken
	}
	if write && !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// corrupted marks the transaction as unusable. A key that fails to decode
// means prefix scans over this keyspace can no longer be trusted.
func (tx *Tx) corrupted(err error) error {
	err = fmt.Errorf("treedb: %s: corrupted data: %w", tx.store.name, err)
	tx.broken = err
	tx.store.logger.LogAttrs(context.Background(), slog.LevelError, "treedb: corrupted data", slog.String("store", tx.store.name), slog.Any("err", err))
	return err
}

func (tx *Tx) isVerboseLoggingEnabled() bool {
	return tx.store.verbose
}

func (tx *Tx) logMutation(op string, parent Path, key string) {
	if tx.isVerboseLoggingEnabled() {
		tx.store.logger.LogAttrs(context.Background(), slog.LevelDebug, "treedb: "+op, slog.Any("parent", parent), slog.String("key", key))
	}
}

func (tx *Tx) scan(prefix []byte) *rawRangeCursor {
	return (&rawRange{Prefix: prefix}).newCursor(tx.rows.Cursor(), tx.store.logger)
}

func (tx *Tx) collect(c *rawRangeCursor) ([]Row, error) {
	var rows []Row
	for c.Next() {
		row, err := decodeRow(c.Key(), c.Value())
		if err != nil {
			return nil, tx.corrupted(err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SelectAll returns every row in storage order.
func (tx *Tx) SelectAll() ([]Row, error) {
	if err := tx.check(false); err != nil {
		return nil, err
	}
	return tx.collect(tx.scan(nil))
}

// SelectSingle returns the row stored at parent/key. A missing row is
// reported as ok == false, not as an error.
func (tx *Tx) SelectSingle(parent Path, key string) (row Row, ok bool, err error) {
	if err := tx.check(false); err != nil {
		return Row{}, false, err
	}
	v := tx.rows.Get(appendRowKey(nil, parent, key))
	if v == nil {
		return Row{}, false, nil
	}
	suffix, value, err := decodeValue(v)
	if err != nil {
		return Row{}, false, tx.corrupted(err)
	}
	return Row{Parent: parent, Key: key, Suffix: suffix, Value: value}, true, nil
}

// SelectChildren returns the rows directly under parent, ordered bytewise by
// key (so "10" sorts before "9").
func (tx *Tx) SelectChildren(parent Path) ([]Row, error) {
	if err := tx.check(false); err != nil {
		return nil, err
	}
	return tx.collect(tx.scan(childPrefix(parent)))
}

// SelectDescendants returns every row at any depth under parent, in
// depth-first pre-order: each row precedes the rows under its path, and
// siblings are ordered bytewise by key. The row for parent itself is not
// included.
func (tx *Tx) SelectDescendants(parent Path) ([]Row, error) {
	if err := tx.check(false); err != nil {
		return nil, err
	}
	type ordered struct {
		order string
		row   Row
	}
	var items []ordered
	c := tx.scan(descendantPrefix(parent))
	for c.Next() {
		k, v := c.Key(), c.Value()
		parentEnc, key, err := splitRowKey(k)
		if err != nil {
			return nil, tx.corrupted(err)
		}
		suffix, value, err := decodeValue(v)
		if err != nil {
			return nil, tx.corrupted(err)
		}
		items = append(items, ordered{
			order: iterationKey(parentEnc, key),
			row: Row{
				Parent: Path{string(parentEnc)},
				Key:    string(key),
				Suffix: suffix,
				Value:  value,
			},
		})
	}
	slices.SortFunc(items, func(a, b ordered) int {
		return strings.Compare(a.order, b.order)
	})
	rows := make([]Row, len(items))
	for i, item := range items {
		rows[i] = item.row
	}
	return rows, nil
}

// AllocateSuffix returns one more than the largest container suffix among
// the children of parent, or 1 if there is none. Leaf children are ignored.
// The children are rescanned on every call.
func (tx *Tx) AllocateSuffix(parent Path) (uint64, error) {
	if err := tx.check(false); err != nil {
		return 0, err
	}
	var maxSuffix uint64
	c := tx.scan(childPrefix(parent))
	for c.Next() {
		if _, _, err := splitRowKey(c.Key()); err != nil {
			return 0, tx.corrupted(err)
		}
		suffix, err := decodeSuffix(c.Value())
		if err != nil {
			return 0, tx.corrupted(err)
		}
		maxSuffix = max(maxSuffix, suffix)
	}
	if maxSuffix == math.MaxUint64 {
		return 0, rowErr("allocate suffix", parent, "", ErrSuffixExhausted)
	}
	return maxSuffix + 1, nil
}

// Insert stores a new row. It fails with ErrAlreadyExists if the key is
// occupied, leaving the existing row intact.
func (tx *Tx) Insert(row Row) error {
	if err := tx.check(true); err != nil {
		return err
	}
	if err := row.validate(); err != nil {
		return rowErr("insert", row.Parent, row.Key, err)
	}
	k := appendRowKey(nil, row.Parent, row.Key)
	if tx.rows.Get(k) != nil {
		return rowErr("insert", row.Parent, row.Key, ErrAlreadyExists)
	}
	if err := tx.rows.Put(k, appendValue(nil, row)); err != nil {
		return rowErr("insert", row.Parent, row.Key, err)
	}
	tx.logMutation("INSERT", row.Parent, row.Key)
	return nil
}

// DeleteAll removes every row.
func (tx *Tx) DeleteAll() error {
	if err := tx.check(true); err != nil {
		return err
	}
	n, err := deleteRange(tx.rows.Cursor(), nil, nil)
	if err != nil {
		return fmt.Errorf("treedb: %s: delete all: %w", tx.store.name, err)
	}
	if tx.isVerboseLoggingEnabled() {
		tx.store.logger.Debug("treedb: DELETE.ALL", "store", tx.store.name, "rows", n)
	}
	return nil
}

// DeleteSingle removes the row at parent/key, if any.
func (tx *Tx) DeleteSingle(parent Path, key string) error {
	if err := tx.check(true); err != nil {
		return err
	}
	k := appendRowKey(nil, parent, key)
	if tx.rows.Get(k) == nil {
		tx.logMutation("DELETE.NOOP", parent, key)
		return nil
	}
	if err := tx.rows.Delete(k); err != nil {
		return rowErr("delete", parent, key, err)
	}
	tx.logMutation("DELETE", parent, key)
	return nil
}

// DeleteDescendants removes every row under parent at any depth. The row for
// parent itself and rows of siblings are kept.
func (tx *Tx) DeleteDescendants(parent Path) error {
	if err := tx.check(true); err != nil {
		return err
	}
	var corrupt error
	n, err := deleteRange(tx.rows.Cursor(), descendantPrefix(parent), func(k []byte) error {
		if _, _, err := splitRowKey(k); err != nil {
			corrupt = err
			return err
		}
		return nil
	})
	if corrupt != nil {
		return tx.corrupted(corrupt)
	}
	if err != nil {
		return fmt.Errorf("treedb: %s: delete descendants of %v: %w", tx.store.name, parent, err)
	}
	if tx.isVerboseLoggingEnabled() {
		tx.store.logger.Debug("treedb: DELETE.TREE", "parent", parent, "rows", n)
	}
	return nil
}
