package treedb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

const (
	trackTxns = true

	// MemPrefix selects the in-memory engine, e.g. Open("mem:scratch", ...).
	MemPrefix = "mem:"

	rowsBucket = "rows"
)

// Store is a named tree store backed by one Bolt file (or one in-memory
// engine). Store handles are process-wide: see Open.
type Store struct {
	name    string
	stor    storage
	logger  *slog.Logger
	verbose bool

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64

	txns     []*Tx
	txnsLock sync.Mutex
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// Timeout bounds the wait for the Bolt file lock on open.
	Timeout time.Duration
}

var (
	registryLock sync.Mutex
	registry     = make(map[string]*Store)
)

// Open returns the store registered under name, opening it on first use.
//
// The name is a file path, or MemPrefix followed by any label for an
// in-memory store. Options only apply to the first Open of a name.
//
// Handles are cached for the life of the process and never closed: opening
// the same Bolt file twice in one process would deadlock on its file lock.
// File names are made absolute first, so "tree.db" and "./tree.db" share a
// handle, and Store.Name reports the absolute path.
func Open(name string, opt Options) (*Store, error) {
	if name == "" || name == MemPrefix {
		return nil, fmt.Errorf("treedb: %w: %q", ErrInvalidStoreName, name)
	}
	if !strings.HasPrefix(name, MemPrefix) {
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, fmt.Errorf("treedb: %s: %w", name, err)
		}
		name = abs
	}

	registryLock.Lock()
	defer registryLock.Unlock()

	if s := registry[name]; s != nil {
		return s, nil
	}
	s, err := openStore(name, opt)
	if err != nil {
		return nil, err
	}
	registry[name] = s
	return s, nil
}

func openStore(name string, opt Options) (*Store, error) {
	var stor storage
	if strings.HasPrefix(name, MemPrefix) {
		stor = newMemStorage()
	} else {
		bdb, err := openBolt(name, opt)
		if err != nil {
			return nil, err
		}
		stor = newBoltStorage(bdb)
	}

	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	s := &Store{
		name:    name,
		stor:    stor,
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}

	if err := prepareRows(stor); err != nil {
		stor.Close()
		return nil, fmt.Errorf("treedb: %s: %w", name, err)
	}
	return s, nil
}

func prepareRows(stor storage) error {
	stx, err := stor.BeginTx(true)
	if err != nil {
		return err
	}
	if _, err := stx.CreateBucket(rowsBucket); err != nil {
		stx.Rollback()
		return err
	}
	return stx.Commit()
}

func openBolt(path string, opt Options) (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("treedb: %w", err)
	}

	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("treedb: %w", err)
	}
	return bdb, nil
}

func (s *Store) Name() string { return s.name }

// Close is a no-op: the handle stays registered for the life of the process.
func (s *Store) Close() error {
	return nil
}

// BeginRead starts a read-only transaction observing a consistent snapshot.
// Any number of them may be open at once.
func (s *Store) BeginRead() (*Tx, error) {
	return s.begin(false)
}

// BeginWrite starts a read-write transaction. Only one can be open at a time;
// BeginWrite blocks until the previous one is closed.
func (s *Store) BeginWrite() (*Tx, error) {
	return s.begin(true)
}

func (s *Store) begin(writable bool) (*Tx, error) {
	stx, err := s.stor.BeginTx(writable)
	if err != nil {
		return nil, fmt.Errorf("treedb: %s: begin: %w", s.name, err)
	}
	rows := stx.Bucket(rowsBucket)
	if rows == nil {
		stx.Rollback()
		return nil, fmt.Errorf("treedb: %s: %w", s.name, ErrBucketNotFound)
	}
	if writable {
		s.WriteCount.Add(1)
	} else {
		s.ReadCount.Add(1)
	}
	tx := &Tx{
		store:     s,
		stx:       stx,
		rows:      rows,
		writable:  writable,
		startTime: time.Now(),
	}
	if trackTxns {
		if s.verbose {
			tx.stack = string(debug.Stack())
		}
		s.addTx(tx)
	}
	return tx, nil
}

// View runs f inside a read-only transaction. A panic in f is returned as
// an error.
func (s *Store) View(f func(tx *Tx) error) error {
	tx, err := s.BeginRead()
	if err != nil {
		return err
	}
	funcErr := safelyCall(f, tx)
	closeErr := tx.Close()
	if funcErr != nil {
		return funcErr
	}
	return closeErr
}

// Update runs f inside a read-write transaction, committing if f returns nil
// and discarding all writes otherwise. A panic in f is returned as an error.
func (s *Store) Update(f func(tx *Tx) error) error {
	tx, err := s.BeginWrite()
	if err != nil {
		return err
	}
	funcErr := safelyCall(f, tx)
	if funcErr != nil {
		tx.Abort()
		return funcErr
	}
	return tx.Close()
}

func (s *Store) addTx(tx *Tx) {
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()
	s.txns = append(s.txns, tx)
}

func (s *Store) removeTx(tx *Tx) {
	if !trackTxns {
		return
	}
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()

	found := -1
	for i, t := range s.txns {
		if t == tx {
			found = i
			break
		}
	}
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(s.txns)
	s.txns[found] = s.txns[n-1]
	s.txns[n-1] = nil // ensure it gets collected
	s.txns = s.txns[:n-1]
}

func (s *Store) OpenTxnCount() int {
	s.txnsLock.Lock()
	defer s.txnsLock.Unlock()
	return len(s.txns)
}

func (s *Store) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TX TRACKING DISABLED"
	}

	s.txnsLock.Lock()
	txns := slices.Clone(s.txns)
	s.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		mode := "read"
		if tx.writable {
			mode = "write"
		}
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 || tx.stack == "" {
			fmt.Fprintf(&buf, "\n---\n%s open for %d ms\n", mode, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%s open for %d ms:\n%s", mode, ms, tx.stack)
		}
	}

	return buf.String()
}
