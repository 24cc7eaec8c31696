package core

import "sync/atomic"

// SequenceNumber is the monotonically increasing commit identifier imposing
// a total order over all commits (spec.md glossary).
type SequenceNumber uint64

func (s SequenceNumber) Previous() SequenceNumber {
	if s == 0 {
		return 0
	}
	return s - 1
}

// WriteKind tags one buffered write the way the storage layer exposes it
// (spec.md §6: Write ∈ {Insert, Put{reinsert}, Delete}).
type WriteKind uint8

const (
	WriteInsert WriteKind = iota
	WritePut
	WriteDelete
)

// BufferedWrite is one entry from ReadableSnapshot.iterate_buffered_writes.
// Reinsert is the writer's own cached flag consulted by the PUT-delta
// fallback (spec.md §4.2); it is a pointer so multiple readers of the same
// snapshot observe the same flag.
type BufferedWrite struct {
	Key      []byte
	Value    []byte
	Kind     WriteKind
	Reinsert *atomic.Bool
}

// KVIterator walks a key range in key order.
type KVIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// WriteIterator walks a snapshot's buffered writes.
type WriteIterator interface {
	Next() bool
	Entry() BufferedWrite
	Err() error
}

// Readable is the read capability a snapshot exposes (Design Notes §9:
// "capability interfaces" replacing deep Snapshot/Type API inheritance).
type Readable interface {
	Get(key []byte) ([]byte, bool, error)
	Iterate(start, end []byte) KVIterator
	IterateBufferedWrites() WriteIterator
	OpenSequenceNumber() SequenceNumber
}

// Writable is the write capability a snapshot exposes. Put/PutVal record an
// idempotent write (Write::Put{reinsert} in spec.md §6's buffered-write
// enum — the snapshot itself tracks whether the key existed immediately
// before this write, for the statistics PUT-delta fallback). Insert records
// an unconditional write for keys the caller has already guaranteed are
// fresh (e.g. a newly allocated object instance-id), recorded as
// Write::Insert so the statistics delta is +1 with no existence check.
type Writable interface {
	Put(key []byte) error
	PutVal(key, value []byte) error
	Insert(key, value []byte) error
	Delete(key []byte) error
}

// Engine is the durable storage engine consulted by the statistics PUT-delta
// fallback: get_mapped(key, at_sequence_number, f) (spec.md §6).
type Engine interface {
	GetMapped(key []byte, at SequenceNumber, f func(value []byte) bool) (bool, error)
}

// ThingManagerAPI is the minimal surface the write executors need from the
// concept layer's thing-manager: allocate a fresh object instance, or
// content-address a put attribute. Concrete implementations live in package
// schema; this interface exists in core purely to let ExecutionContext
// avoid importing schema (core is the lowest layer every other package
// builds on).
type ThingManagerAPI interface {
	AllocateObject(kind ThingKind, typ TypeID) (ThingRef, error)
	PutAttribute(typ TypeID, value Value) (ref ThingRef, reinsert bool, err error)
	PutHas(owner, attr ThingRef) error
	PutRolePlayer(relation, player ThingRef, role TypeID) error
	DeleteHas(owner, attr ThingRef) error
	DeleteRolePlayer(relation, player ThingRef, role TypeID) error
	DeleteThing(t ThingRef) error
}

// ExecutionContext is exclusively owned by one pipeline (spec.md §3
// Lifecycles): it bundles the snapshot capability the pipeline reads/writes
// through and the thing-manager used by write executors. It is consumed on
// final iteration for a read transaction, or handed back to the caller to
// commit for a write transaction.
type ExecutionContext struct {
	Snapshot Readable
	Writer   Writable // nil for a read-only pipeline
	Things   ThingManagerAPI
	Interrupt Interrupt
}

// Interrupt is a cancellation token shared by clone across every pipeline
// derived from the same query call (spec.md §5).
type Interrupt struct {
	flag *atomic.Bool
}

// NewInterrupt creates a fresh, untriggered token.
func NewInterrupt() Interrupt {
	return Interrupt{flag: &atomic.Bool{}}
}

// Trigger sets the shared flag; every clone observes it.
func (i Interrupt) Trigger() {
	if i.flag != nil {
		i.flag.Store(true)
	}
}

func (i Interrupt) Triggered() bool {
	return i.flag != nil && i.flag.Load()
}

// Check returns ErrInterrupted if the token has been triggered, the
// cooperative cancellation point polled at the top of the stack loop and
// injected into long-running filter predicates (spec.md §4.4, §5).
func (i Interrupt) Check() error {
	if i.Triggered() {
		return ErrInterrupted.New()
	}
	return nil
}
