package boltstore

import (
	"bytes"
	"encoding/binary"
	"sort"

	bolt "github.com/boltdb/bolt"
)

type versionedEntry struct {
	value []byte
	seq   uint64
	tomb  bool
}

// computeLatest scans every stored version in [start, end) and keeps, per
// base key, the latest version at or before wantSeq — a simple reference
// implementation; a production MVCC store would seek directly instead of
// scanning every version.
func computeLatest(tx *bolt.Tx, start, end []byte, wantSeq uint64) ([]string, map[string][]byte) {
	b := tx.Bucket(dataBucket)
	latest := make(map[string]versionedEntry)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if len(k) < 9 {
			continue
		}
		base := k[:len(k)-9]
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		if seq > wantSeq {
			continue
		}
		if start != nil && bytes.Compare(base, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(base, end) >= 0 {
			continue
		}
		cur, ok := latest[string(base)]
		if !ok || seq > cur.seq {
			latest[string(base)] = versionedEntry{value: append([]byte{}, v...), seq: seq, tomb: isTombstone(v)}
		}
	}
	keys := make([]string, 0, len(latest))
	out := make(map[string][]byte, len(latest))
	for k, e := range latest {
		if e.tomb {
			continue
		}
		keys = append(keys, k)
		out[k] = e.value
	}
	sort.Strings(keys)
	return keys, out
}

type rangeIterator struct {
	tx     *bolt.Tx
	keys   []string
	values map[string][]byte
	idx    int
	err    error
}

func newRangeIterator(tx *bolt.Tx, start, end []byte, wantSeq uint64) *rangeIterator {
	keys, values := computeLatest(tx, start, end, wantSeq)
	return &rangeIterator{tx: tx, keys: keys, values: values, idx: -1}
}

func (it *rangeIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *rangeIterator) Key() []byte   { return []byte(it.keys[it.idx]) }
func (it *rangeIterator) Value() []byte { return it.values[it.keys[it.idx]] }
func (it *rangeIterator) Err() error    { return it.err }
func (it *rangeIterator) Close() error  { return it.tx.Rollback() }
