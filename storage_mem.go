package treedb

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sync"
)

var errMemClosed = errors.New("in-memory store closed")

// memStorage is the engine behind "mem:" stores.
//
// The committed state is a map of buckets whose item slices are never
// modified after publication, so a transaction snapshot is just a reference
// to it. A writer copies a bucket's item slice on its first mutation of that
// bucket and publishes the new map on commit. Keys and values are copied on
// Put and shared by every version after that.
type memStorage struct {
	mu        sync.Mutex
	writerOut *sync.Cond
	committed map[string]*memBucket
	writer    bool
	closed    bool
}

type memBucket struct {
	items []memKV // sorted by key
	owner *memTx  // the writer that may mutate items in place, if any
}

type memKV struct {
	key, value []byte
}

func newMemStorage() storage {
	s := &memStorage{committed: make(map[string]*memBucket)}
	s.writerOut = sync.NewCond(&s.mu)
	return s
}

// BeginTx blocks while another writer is open. Readers never block.
func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for writable && s.writer && !s.closed {
		s.writerOut.Wait()
	}
	if s.closed {
		return nil, errMemClosed
	}
	tx := &memTx{store: s, writable: writable, buckets: s.committed}
	if writable {
		s.writer = true
		tx.buckets = maps.Clone(s.committed)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.committed = nil
	s.writerOut.Broadcast()
	return nil
}

type memTx struct {
	store    *memStorage
	writable bool
	done     bool
	buckets  map[string]*memBucket
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) Size() int64 { return 0 }

func (tx *memTx) Bucket(name string) storageBucket {
	if tx.buckets[name] == nil {
		return nil
	}
	return memBucketRef{tx, name}
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if !tx.writable {
		return nil, ErrReadOnly
	}
	if tx.buckets[name] == nil {
		tx.buckets[name] = &memBucket{owner: tx}
	}
	return memBucketRef{tx, name}, nil
}

// mutable returns the writer's private copy of the bucket, copying the
// committed items on first use.
func (tx *memTx) mutable(name string) (*memBucket, error) {
	if !tx.writable {
		return nil, ErrReadOnly
	}
	if tx.done {
		return nil, ErrTxClosed
	}
	b := tx.buckets[name]
	if b.owner != tx {
		b = &memBucket{items: slices.Clone(b.items), owner: tx}
		tx.buckets[name] = b
	}
	return b, nil
}

func (tx *memTx) Commit() error {
	if !tx.writable {
		return ErrReadOnly
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.done {
		return ErrTxClosed
	}
	tx.finishLocked()
	if s.closed {
		return errMemClosed
	}
	for _, b := range tx.buckets {
		if b.owner == tx {
			b.owner = nil
		}
	}
	s.committed = tx.buckets
	return nil
}

func (tx *memTx) Rollback() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.finishLocked()
	return nil
}

func (tx *memTx) finishLocked() {
	if tx.done {
		return
	}
	tx.done = true
	if tx.writable {
		tx.store.writer = false
		tx.store.writerOut.Broadcast()
	}
}

// memBucketRef resolves the bucket by name on every call, so that it follows
// the writer's copy once the first mutation has made one.
type memBucketRef struct {
	tx   *memTx
	name string
}

func (r memBucketRef) items() []memKV { return r.tx.buckets[r.name].items }

func (r memBucketRef) Get(key []byte) []byte {
	items := r.items()
	if i, ok := searchKV(items, key); ok {
		return items[i].value
	}
	return nil
}

func (r memBucketRef) Put(key, value []byte) error {
	if len(key) == 0 {
		return errors.New("empty key")
	}
	b, err := r.tx.mutable(r.name)
	if err != nil {
		return err
	}
	kv := memKV{slices.Clone(key), slices.Clone(value)}
	if i, ok := searchKV(b.items, key); ok {
		b.items[i] = kv
	} else {
		b.items = slices.Insert(b.items, i, kv)
	}
	return nil
}

func (r memBucketRef) Delete(key []byte) error {
	b, err := r.tx.mutable(r.name)
	if err != nil {
		return err
	}
	if i, ok := searchKV(b.items, key); ok {
		b.items = slices.Delete(b.items, i, i+1)
	}
	return nil
}

func (r memBucketRef) Cursor() storageCursor {
	return &memCursor{ref: r, pos: -1}
}

func (r memBucketRef) Stats() bucketStats {
	items := r.items()
	var n int64
	for _, kv := range items {
		n += int64(len(kv.key) + len(kv.value))
	}
	return bucketStats{KeyN: len(items), LeafInuse: n, LeafAlloc: n}
}

func searchKV(items []memKV, key []byte) (int, bool) {
	return slices.BinarySearchFunc(items, key, func(kv memKV, k []byte) int {
		return bytes.Compare(kv.key, k)
	})
}

// memCursor is a position in the bucket's current items. After Delete the
// position is undefined until the next First or Seek.
type memCursor struct {
	ref memBucketRef
	pos int
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	items := c.ref.items()
	c.pos = i
	if i < 0 || i >= len(items) {
		return nil, nil
	}
	return items[i].key, items[i].value
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := searchKV(c.ref.items(), seek)
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) { return c.at(c.pos + 1) }

func (c *memCursor) Delete() error {
	k, _ := c.at(c.pos)
	if k == nil {
		return nil
	}
	return c.ref.Delete(k)
}
