package treedb

import (
	"errors"

	"go.etcd.io/bbolt"
)

// boltStorage adapts a Bolt database to the engine interfaces. The Bolt types
// are embedded, so most methods pass straight through; only bucket lookup,
// rollback, cursors and stats need translating.
type boltStorage struct {
	*bbolt.DB
}

func newBoltStorage(bdb *bbolt.DB) storage {
	return boltStorage{bdb}
}

func (s boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx}, nil
}

// boltTx gets Writable, Commit and Size from *bbolt.Tx.
type boltTx struct {
	*bbolt.Tx
}

func (tx *boltTx) Bucket(name string) storageBucket {
	if b := tx.Tx.Bucket([]byte(name)); b != nil {
		return boltBucket{b}
	}
	return nil
}

func (tx *boltTx) CreateBucket(name string) (storageBucket, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

// Rollback tolerates transactions that are already closed.
func (tx *boltTx) Rollback() error {
	if err := tx.Tx.Rollback(); !errors.Is(err, bbolt.ErrTxClosed) {
		return err
	}
	return nil
}

// boltBucket gets Get, Put and Delete from *bbolt.Bucket.
type boltBucket struct {
	*bbolt.Bucket
}

func (b boltBucket) Cursor() storageCursor {
	return b.Bucket.Cursor()
}

// Stats counts inline bucket bytes as leaf bytes: Bolt keeps a small rows
// bucket inside its parent page and reports no leaf pages for it.
func (b boltBucket) Stats() bucketStats {
	s := b.Bucket.Stats()
	return bucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse + s.InlineBucketInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}
