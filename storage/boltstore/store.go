// Package boltstore is a small MVCC-flavoured key-value store backed by
// github.com/boltdb/bolt, implementing core.Readable/core.Writable/
// core.Engine so the statistics and pipeline tests have a concrete,
// real storage engine to run the §8 end-to-end scenarios against — the
// same role the teacher gives boltdb in its own engine (go.mod direct dep).
// It is a reference/test implementation, not a production MVCC engine: the
// storage engine proper is an external collaborator (spec.md §1).
package boltstore

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	bolt "github.com/boltdb/bolt"

	"github.com/dolthub/typeql-core/core"
)

var dataBucket = []byte("data")

// Store is a versioned key-value store: every Put/Delete is recorded against
// the sequence number it commits at, and a Snapshot opened at sequence S
// sees the latest version of each key at or before S.
type Store struct {
	db  *bolt.DB
	mu  sync.Mutex
	seq uint64
}

// Open creates or opens a bolt-backed Store at path. path may be ":memory:"-
// style temp files in tests; bolt itself requires a real file path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(dataBucket)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func versionedKey(key []byte, seq uint64) []byte {
	buf := make([]byte, len(key)+8+1)
	copy(buf, key)
	buf[len(key)] = 0xff // separator guaranteed to sort after any user key byte range we use
	binary.BigEndian.PutUint64(buf[len(key)+1:], seq)
	return buf
}

// tombstone marks a value as deleted at a given version.
var tombstone = []byte{0}

// GetMapped implements core.Engine: reads the latest version of key at or
// before `at` and calls f with the raw value (nil if absent or deleted),
// returning whether f reported the value as present.
func (s *Store) GetMapped(key []byte, at core.SequenceNumber, f func(value []byte) bool) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		c := b.Cursor()
		// bolt's Seek lands on the first key >= seek; we want the latest
		// version <= at, so probe backward from one past the target.
		seek := versionedKey(key, uint64(at)+1) // the first position after (key, at)
		k, v := c.Seek(seek)
		if k != nil {
			k, v = c.Prev()
		} else {
			k, v = c.Last()
		}
		for k != nil && bytes.HasPrefix(k, append(append([]byte{}, key...), 0xff)) {
			if isTombstone(v) {
				return nil
			}
			found = f(v)
			return nil
		}
		return nil
	})
	return found, err
}

func isTombstone(v []byte) bool {
	return bytes.Equal(v, tombstone)
}

// pendingWrite tracks one buffered write plus its reinsert flag, shared with
// any BufferedWrite handed to the statistics updater.
type pendingWrite struct {
	kind     core.WriteKind
	value    []byte
	reinsert *atomic.Bool
}

// Snapshot is a single pipeline's exclusive view: reads are served from the
// store as of OpenSeq, writes go to an in-memory buffer visible only to this
// snapshot until Commit.
type Snapshot struct {
	store   *Store
	openSeq uint64
	buffer  map[string]*pendingWrite
	order   []string // insertion order, for deterministic iteration
}

// OpenSnapshot opens a new exclusive snapshot at the store's current
// sequence number.
func (s *Store) OpenSnapshot() *Snapshot {
	s.mu.Lock()
	open := s.seq
	s.mu.Unlock()
	return &Snapshot{store: s, openSeq: open, buffer: make(map[string]*pendingWrite)}
}

func (sn *Snapshot) OpenSequenceNumber() core.SequenceNumber { return core.SequenceNumber(sn.openSeq) }

// Get checks the local buffer first (a snapshot's own uncommitted writes are
// visible only to itself, spec.md §5), then falls back to committed storage.
func (sn *Snapshot) Get(key []byte) ([]byte, bool, error) {
	if w, ok := sn.buffer[string(key)]; ok {
		if w.kind == core.WriteDelete {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	var val []byte
	found, err := sn.store.GetMapped(key, core.SequenceNumber(sn.openSeq), func(v []byte) bool {
		val = append([]byte{}, v...)
		return true
	})
	if err != nil || !found {
		return nil, false, err
	}
	return val, true, nil
}

func (sn *Snapshot) Put(key []byte) error { return sn.PutVal(key, nil) }

func (sn *Snapshot) PutVal(key, value []byte) error {
	k := string(key)
	_, existedBefore, err := sn.Get(key)
	if err != nil {
		return err
	}
	r := &atomic.Bool{}
	r.Store(!existedBefore)
	if _, ok := sn.buffer[k]; !ok {
		sn.order = append(sn.order, k)
	}
	sn.buffer[k] = &pendingWrite{kind: core.WritePut, value: value, reinsert: r}
	return nil
}

// Insert records an unconditional insert write (no idempotence check
// against prior existence — callers are asserting the key is new).
func (sn *Snapshot) Insert(key, value []byte) error {
	k := string(key)
	if _, ok := sn.buffer[k]; !ok {
		sn.order = append(sn.order, k)
	}
	sn.buffer[k] = &pendingWrite{kind: core.WriteInsert, value: value}
	return nil
}

func (sn *Snapshot) Delete(key []byte) error {
	k := string(key)
	if _, ok := sn.buffer[k]; !ok {
		sn.order = append(sn.order, k)
	}
	sn.buffer[k] = &pendingWrite{kind: core.WriteDelete}
	return nil
}

// Iterate walks committed keys in [start, end) at the snapshot's open
// sequence number, in key order. Buffered (uncommitted) writes are not
// included — callers that need the merged view should consult the buffer
// separately, matching the storage interface split in spec.md §6.
func (sn *Snapshot) Iterate(start, end []byte) core.KVIterator {
	tx, err := sn.store.db.Begin(false)
	if err != nil {
		return &errIterator{err: err}
	}
	return newRangeIterator(tx, start, end, sn.openSeq)
}

func (sn *Snapshot) IterateBufferedWrites() core.WriteIterator {
	keys := append([]string{}, sn.order...)
	sort.Strings(keys)
	return &bufferIterator{snapshot: sn, keys: keys, idx: -1}
}

// Discard drops every buffered write without committing (spec.md §5: "
// in-flight writes to the snapshot buffer are discarded" on interrupt or
// write-execution failure).
func (sn *Snapshot) Discard() {
	sn.buffer = make(map[string]*pendingWrite)
	sn.order = nil
}

// Commit assigns the next sequence number to this snapshot's buffered
// writes and makes them durable. Returns the commit sequence number.
func (sn *Snapshot) Commit() (core.SequenceNumber, error) {
	s := sn.store
	s.mu.Lock()
	s.seq++
	commitSeq := s.seq
	s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		for _, k := range sn.order {
			w := sn.buffer[k]
			vk := versionedKey([]byte(k), commitSeq)
			if w.kind == core.WriteDelete {
				if err := b.Put(vk, tombstone); err != nil {
					return err
				}
				continue
			}
			v := w.value
			if v == nil {
				v = []byte{}
			}
			if err := b.Put(vk, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return core.SequenceNumber(commitSeq), nil
}

type bufferIterator struct {
	snapshot *Snapshot
	keys     []string
	idx      int
}

func (it *bufferIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *bufferIterator) Entry() core.BufferedWrite {
	k := it.keys[it.idx]
	w := it.snapshot.buffer[k]
	return core.BufferedWrite{Key: []byte(k), Value: w.value, Kind: w.kind, Reinsert: w.reinsert}
}

func (it *bufferIterator) Err() error { return nil }

type errIterator struct{ err error }

func (e *errIterator) Next() bool       { return false }
func (e *errIterator) Key() []byte      { return nil }
func (e *errIterator) Value() []byte    { return nil }
func (e *errIterator) Err() error       { return e.err }
func (e *errIterator) Close() error     { return nil }
