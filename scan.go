package treedb

import (
	"bytes"
	"context"
	"log/slog"
)

const (
	debugLogRawScans = false
)

// rawRange is a forward scan over all keys starting with Prefix. A nil or
// empty Prefix covers the whole bucket.
type rawRange struct {
	Prefix []byte
}

func (r *rawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if len(r.Prefix) > 0 {
		k, v = bcur.Seek(r.Prefix)
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to prefix", hexAttr("prefix", r.Prefix), hexAttr("key", k), hexAttr("val", v))
		}
	} else {
		k, v = bcur.First()
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "FIRST", hexAttr("key", k), hexAttr("val", v))
		}
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	k, v := bcur.Next()
	if debugLogRawScans {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "NEXT", hexAttr("key", k), hexAttr("val", v))
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k, v []byte, logger *slog.Logger) bool {
	if !bytes.HasPrefix(k, r.Prefix) {
		if debugLogRawScans {
			logger.LogAttrs(context.Background(), slog.LevelDebug, "BAIL on prefix", hexAttr("prefix", r.Prefix), hexAttr("key", k), hexAttr("val", v))
		}
		return false
	}
	return true
}

func (r *rawRange) newCursor(bcur storageCursor, logger *slog.Logger) *rawRangeCursor {
	return &rawRangeCursor{rang: *r, bcur: bcur, logger: logger}
}

// rawRangeCursor walks a rawRange. The scan stops at the first key outside
// the prefix.
type rawRangeCursor struct {
	rang   rawRange
	bcur   storageCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
}

func (c *rawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	return c.k != nil
}

func (c *rawRangeCursor) Key() []byte   { return c.k }
func (c *rawRangeCursor) Value() []byte { return c.v }

// deleteRange removes every key starting with prefix and returns the number
// of deleted keys. The cursor is re-seeked after each deletion, since Bolt
// cursors may skip an element when advanced past a deleted one. check is
// called on each key before it is deleted.
func deleteRange(bcur storageCursor, prefix []byte, check func(k []byte) error) (int, error) {
	seek := func() []byte {
		var k []byte
		if len(prefix) > 0 {
			k, _ = bcur.Seek(prefix)
		} else {
			k, _ = bcur.First()
		}
		if k != nil && !bytes.HasPrefix(k, prefix) {
			return nil
		}
		return k
	}
	var n int
	for k := seek(); k != nil; k = seek() {
		if check != nil {
			if err := check(k); err != nil {
				return n, err
			}
		}
		if err := bcur.Delete(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
